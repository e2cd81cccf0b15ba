package dhdm

import (
	"errors"
	"fmt"

	"github.com/taigrr/dhdmgen/pkg/logging"
	"github.com/taigrr/dhdmgen/pkg/mesh"
	"github.com/taigrr/dhdmgen/pkg/subd"
	"github.com/taigrr/dhdmgen/pkg/tangent"
)

// DefaultThreshold is the displacement length at or below which a vertex
// is considered unmoved.
const DefaultThreshold = 1e-2

// ErrLevelMismatch reports an hd mesh whose face count implies a different
// level than the one it was declared with.
var ErrLevelMismatch = errors.New("subdivision level mismatch")

// Options tunes a Calculator.
type Options struct {
	// Threshold is the displacement length a vertex must exceed to get a
	// record. Zero means DefaultThreshold.
	Threshold float64

	// Translations holds one matching file per level, finest last. Refined
	// vertex indices are stable across levels, so only the table of the
	// computed level is consulted. Nil means the hd mesh uses the refiner's
	// vertex order.
	Translations []*TranslationTable

	// EditedMask restricts records to these hd vertex indices. Nil means
	// every vertex is eligible.
	EditedMask map[int]struct{}

	// ExpectedLevel, when non-zero, must equal the level derived from the
	// face counts.
	ExpectedLevel int

	Logger logging.Logger
}

// Calculator derives the displacements that turn a subdivided base mesh
// into an hd mesh.
type Calculator struct {
	base *mesh.Mesh
	hd   *mesh.Mesh
	opts Options
	log  logging.Logger
}

// NewCalculator validates both meshes and returns a Calculator. Neither
// mesh is modified.
func NewCalculator(base, hd *mesh.Mesh, opts Options) (*Calculator, error) {
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("base mesh: %w", err)
	}
	if err := hd.Validate(); err != nil {
		return nil, fmt.Errorf("hd mesh: %w", err)
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Threshold < 0 {
		return nil, fmt.Errorf("negative threshold %g", opts.Threshold)
	}
	return &Calculator{base: base, hd: hd, opts: opts, log: logging.OrDiscard(opts.Logger)}, nil
}

// Level returns the subdivision level separating the base and hd meshes.
func (c *Calculator) Level() (int, error) {
	lvl, err := RelativeSubdLevel(len(c.base.Faces), len(c.hd.Faces))
	if err != nil {
		return 0, err
	}
	if c.opts.ExpectedLevel != 0 && c.opts.ExpectedLevel != lvl {
		return 0, fmt.Errorf("%w: face counts give level %d, expected %d",
			ErrLevelMismatch, lvl, c.opts.ExpectedLevel)
	}
	return lvl, nil
}

// Calculate walks the levels from coarse to fine. At each level the base
// vertices are refined once more, every refined vertex that is still more
// than the threshold away from its hd counterpart gets a record in the
// frame of its base face corner, and the vertex is moved onto the hd
// position so finer levels only see the remaining detail. A level of zero
// yields a File without levels.
func (c *Calculator) Calculate() (*File, error) {
	levels, err := c.Level()
	if err != nil {
		return nil, err
	}
	if levels == 0 {
		c.log.Infof("hd mesh has the base resolution, no displacements")
		return &File{}, nil
	}
	if levels > MaxLevel {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidLevel, levels, MaxLevel)
	}

	var table *TranslationTable
	if n := len(c.opts.Translations); n > 0 {
		if n < levels {
			return nil, fmt.Errorf("%w: matching files with max level %d < subdivisions level %d",
				ErrMissingTranslation, n, levels)
		}
		table = c.opts.Translations[levels-1]
	}

	frames, err := tangent.Build(c.base)
	if err != nil {
		return nil, fmt.Errorf("tangent frames: %w", err)
	}
	if bad := frames.Degenerate(); len(bad) > 0 {
		c.log.Warningf("%d base faces have no tangent frame, first is face %d", len(bad), bad[0])
	}
	r, err := subd.NewRefiner(c.base, levels, subd.Options{})
	if err != nil {
		return nil, fmt.Errorf("refine base mesh: %w", err)
	}

	numBase := len(c.base.Faces)
	verts := append([]mesh.Vertex(nil), c.base.Vertices...)
	baseFace := make([]int, numBase)
	for i := range baseFace {
		baseFace[i] = i
	}

	f := &File{Levels: make([]Level, 0, levels)}
	tl := logging.NewTimeLog(c.log)
	for lvl := 1; lvl <= levels; lvl++ {
		if verts, err = subd.Interpolate(r, lvl, verts); err != nil {
			return nil, err
		}
		if baseFace, err = subd.InterpolateFaceUniform(r, lvl, baseFace); err != nil {
			return nil, err
		}

		l, err := c.level(r, frames, lvl, verts, baseFace, table)
		if err != nil {
			return nil, err
		}
		tl.Debugf("level %d: %d records in %d base faces", lvl, l.NumDisplacements(), len(l.Faces))
		f.Levels = append(f.Levels, *l)
	}
	return f, nil
}

// level emits the records of level lvl and moves the recorded vertices of
// verts onto the hd mesh.
func (c *Calculator) level(r *subd.Refiner, frames *tangent.Frames, lvl int,
	verts []mesh.Vertex, baseFace []int, table *TranslationTable,
) (*Level, error) {
	factor := 1 << (2 * (lvl - 1))
	visited := make([]bool, len(verts))
	groups := make(map[int]int)
	out := &Level{NumFaces: uint32(len(c.base.Faces)), Level: uint32(lvl)}

	for i := range r.NumFaces(lvl) {
		bf := baseFace[i]
		subface := i - frames.FirstLevelOffset(bf)*factor
		corner := subface / factor

		for j := range r.FaceSize(lvl, i) {
			v := r.FaceVertex(lvl, i, j)
			if visited[v] {
				continue
			}
			visited[v] = true

			target := v
			if table != nil {
				t, err := table.Lookup(v)
				if err != nil {
					return nil, err
				}
				target = t
			}
			if target < 0 || target >= len(c.hd.Vertices) {
				return nil, fmt.Errorf("%w: vertex index %d not found in hd mesh of %d vertices",
					mesh.ErrInvalidMesh, target, len(c.hd.Vertices))
			}
			if c.opts.EditedMask != nil {
				if _, ok := c.opts.EditedMask[target]; !ok {
					continue
				}
			}

			delta := c.hd.Vertices[target].Pos.Sub(verts[v].Pos)
			if delta.Len() <= c.opts.Threshold {
				continue
			}

			loc, err := PackLocation(lvl, subface, j)
			if err != nil {
				return nil, fmt.Errorf("face %d of level %d: %w", i, lvl, err)
			}
			local, err := frames.ToLocal(bf, corner, delta)
			if err != nil {
				return nil, fmt.Errorf("vertex %d of level %d: %w", v, lvl, err)
			}
			g, ok := groups[bf]
			if !ok {
				g = len(out.Faces)
				groups[bf] = g
				out.Faces = append(out.Faces, FaceDisplacements{FaceIdx: uint32(bf)})
			}
			out.Faces[g].Vertices = append(out.Faces[g].Vertices, VertexDisplacement{
				X:   float32(local.X),
				Y:   float32(local.Y),
				Z:   float32(local.Z),
				Loc: loc,
			})
			verts[v].Pos = verts[v].Pos.Add(delta)
		}
	}
	return out, nil
}
