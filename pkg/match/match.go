// Package match pairs the vertices of a refined base mesh with the vertices
// of an hd mesh produced by another subdivider, yielding the translation
// tables the displacement calculator needs when vertex orders differ.
package match

import (
	"errors"
	"fmt"
	"math"

	"github.com/taigrr/dhdmgen/pkg/dhdm"
	"github.com/taigrr/dhdmgen/pkg/logging"
	"github.com/taigrr/dhdmgen/pkg/mesh"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultMaxDistance is the pairing distance, in base mesh units, above
	// which a vertex counts as a miss.
	DefaultMaxDistance = 3e-3

	// DefaultMaxMisses is how many misses Build tolerates when
	// Options.MaxMisses is zero.
	DefaultMaxMisses = 50
)

// ErrNoMatch reports meshes whose vertices could not be paired.
var ErrNoMatch = errors.New("no match between meshes")

// Options tunes Build.
type Options struct {
	// MaxDistance is the distance above which a pairing counts as a miss.
	MaxDistance float64

	// MaxMisses is how many misses are tolerated before Build gives up.
	MaxMisses int

	Logger logging.Logger
}

func (o *Options) defaults() {
	if o.MaxDistance == 0 {
		o.MaxDistance = DefaultMaxDistance
	}
	if o.MaxMisses == 0 {
		o.MaxMisses = DefaultMaxMisses
	}
}

// Build maps every vertex of refined to the nearest vertex of target. Both
// meshes must have the same vertex count.
func Build(refined, target *mesh.Mesh, opts Options) (*dhdm.TranslationTable, error) {
	opts.defaults()
	log := logging.OrDiscard(opts.Logger)
	if err := mesh.CheckSameVertexCount(refined, target); err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}

	pts := make(points, len(target.Vertices))
	for i, v := range target.Vertices {
		pts[i] = point{pos: r3.Vec(v.Pos), idx: i}
	}
	tree := kdtree.New(pts, false)

	table := &dhdm.TranslationTable{Source: target.Name, Index: make(map[int]int, len(refined.Vertices))}
	misses := 0
	for i, v := range refined.Vertices {
		got, d2 := tree.Nearest(point{pos: r3.Vec(v.Pos)})
		if got == nil {
			return nil, fmt.Errorf("%w: empty target mesh", ErrNoMatch)
		}
		if dist := math.Sqrt(d2); dist > opts.MaxDistance {
			misses++
			if misses > opts.MaxMisses {
				return nil, fmt.Errorf("%w: more than %d vertices farther than %g", ErrNoMatch, opts.MaxMisses, opts.MaxDistance)
			}
			log.Warningf("vertex %d matched at distance %g", i, dist)
		}
		table.Index[i] = got.(point).idx
	}
	return table, nil
}

// point is a target vertex in the kd-tree.
type point struct {
	pos r3.Vec
	idx int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.pos.X - q.pos.X
	case 1:
		return p.pos.Y - q.pos.Y
	case 2:
		return p.pos.Z - q.pos.Z
	}
	panic("unreachable")
}

func (p point) Dims() int { return 3 }

// Distance returns the squared distance to c.
func (p point) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.pos, c.(point).pos))
}

type points []point

func (p points) Index(i int) kdtree.Comparable { return p[i] }
func (p points) Len() int                      { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p points) Pivot(d kdtree.Dim) int {
	pl := plane{points: p, dim: d}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

// plane sorts points along one dimension.
type plane struct {
	points
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.points[i].Compare(p.points[j], p.dim) < 0
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], dim: p.dim}
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}
