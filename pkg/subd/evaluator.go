package subd

import (
	"fmt"

	"github.com/taigrr/dhdmgen/pkg/mesh"
)

// refinedAttributes is everything about a refined mesh that does not depend
// on vertex positions.
type refinedAttributes struct {
	faces    []mesh.Face
	uvLayers [][]mesh.UV
	vweights []mesh.VertexWeights
}

// refineAttributes refines the faces, UV layers and vertex weights of base
// to the refiner's finest level. Material ids always follow their parent
// face.
func refineAttributes(r *Refiner, base *mesh.Mesh) (*refinedAttributes, error) {
	out := &refinedAttributes{}

	if base.UsesVGroups {
		weights, err := interpolateAll(r, base.VWeights, Interpolate[mesh.VertexWeights])
		if err != nil {
			return nil, fmt.Errorf("refine vertex weights: %w", err)
		}
		out.vweights = weights
	}

	if r.HasUVs() {
		for i, layer := range base.UVLayers {
			refined, err := interpolateAll(r, layer, InterpolateFaceVarying[mesh.UV])
			if err != nil {
				return nil, fmt.Errorf("refine uv layer %d: %w", i, err)
			}
			out.uvLayers = append(out.uvLayers, refined)
		}
	}

	matIDs := make([]int, len(base.Faces))
	for i, f := range base.Faces {
		matIDs[i] = f.MatID
	}
	matIDs, err := interpolateAll(r, matIDs, InterpolateFaceUniform[int])
	if err != nil {
		return nil, fmt.Errorf("refine material ids: %w", err)
	}

	l := r.level(r.MaxLevel())
	out.faces = make([]mesh.Face, len(l.faceVerts))
	for i := range out.faces {
		verts := l.faceVerts[i]
		f := mesh.Face{Vertices: make([]mesh.FaceVertex, len(verts)), MatID: matIDs[i]}
		for j, v := range verts {
			f.Vertices[j].Vertex = v
			if l.faceUVs != nil {
				f.Vertices[j].UV = l.faceUVs[i][j]
			}
		}
		out.faces[i] = f
	}
	return out, nil
}

// install replaces the non-vertex data of m with copies of a.
func (a *refinedAttributes) install(m *mesh.Mesh) {
	m.Faces = make([]mesh.Face, len(a.faces))
	for i, f := range a.faces {
		m.Faces[i] = mesh.Face{
			Vertices: append([]mesh.FaceVertex(nil), f.Vertices...),
			MatID:    f.MatID,
		}
	}

	m.UVLayers = nil
	for _, layer := range a.uvLayers {
		m.UVLayers = append(m.UVLayers, append([]mesh.UV(nil), layer...))
	}
	m.UsesUVs = len(m.UVLayers) > 0

	m.VWeights = nil
	if a.vweights != nil {
		m.VWeights = make([]mesh.VertexWeights, len(a.vweights))
		for i, w := range a.vweights {
			m.VWeights[i] = w.Clone()
		}
	}
	m.UsesVGroups = len(m.VWeights) > 0
}

// Evaluator subdivides meshes that share one base topology. Topology
// refinement, stencil composition and all non-vertex attributes are computed
// once by NewEvaluator; Subdivide only applies the stencils. An Evaluator is
// not safe for concurrent use.
type Evaluator struct {
	level    int
	numBase  int
	stencils *StencilTable
	attrs    *refinedAttributes
}

// NewEvaluator prepares repeated subdivision of meshes with the topology of
// base to the given level.
func NewEvaluator(base *mesh.Mesh, level int) (*Evaluator, error) {
	r, err := NewRefiner(base, level, Options{UVs: base.UsesUVs})
	if err != nil {
		return nil, fmt.Errorf("new evaluator: %w", err)
	}

	stencils := r.refinements[0].vertex
	for lvl := 2; lvl <= level; lvl++ {
		stencils, err = r.refinements[lvl-1].vertex.Compose(stencils)
		if err != nil {
			return nil, fmt.Errorf("new evaluator: level %d: %w", lvl, err)
		}
	}

	attrs, err := refineAttributes(r, base)
	if err != nil {
		return nil, fmt.Errorf("new evaluator: %w", err)
	}

	return &Evaluator{
		level:    level,
		numBase:  len(base.Vertices),
		stencils: stencils,
		attrs:    attrs,
	}, nil
}

// Level returns the subdivision level.
func (e *Evaluator) Level() int {
	return e.level
}

// Stencils returns the table mapping base vertices to final vertices.
func (e *Evaluator) Stencils() *StencilTable {
	return e.stencils
}

// Subdivide replaces target's vertices with their subdivided positions and
// installs the precomputed faces, UV layers and vertex weights. target must
// have the base mesh's vertex count.
func (e *Evaluator) Subdivide(target *mesh.Mesh) error {
	if len(target.Vertices) != e.numBase {
		return fmt.Errorf("%w: evaluator expects %d base vertices, %q has %d",
			mesh.ErrVertexCountMismatch, e.numBase, target.Name, len(target.Vertices))
	}

	verts, err := Apply(e.stencils, target.Vertices)
	if err != nil {
		return err
	}
	target.Vertices = verts
	e.attrs.install(target)
	return nil
}

// Subdivide refines m in place to the given level with a full refinement
// pass. Level 0 leaves m unchanged.
func Subdivide(m *mesh.Mesh, level int) error {
	if level == 0 {
		return nil
	}

	r, err := NewRefiner(m, level, Options{UVs: m.UsesUVs})
	if err != nil {
		return fmt.Errorf("subdivide: %w", err)
	}

	attrs, err := refineAttributes(r, m)
	if err != nil {
		return fmt.Errorf("subdivide: %w", err)
	}
	verts, err := interpolateAll(r, m.Vertices, Interpolate[mesh.Vertex])
	if err != nil {
		return fmt.Errorf("subdivide: %w", err)
	}

	m.Vertices = verts
	attrs.install(m)
	return nil
}
