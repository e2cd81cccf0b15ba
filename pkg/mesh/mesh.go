// Package mesh provides the polygon mesh model shared by the subdivision and
// displacement packages, plus readers and writers for the OBJ, GLB, DSF and
// STL formats.
package mesh

import (
	"errors"
	"fmt"

	"github.com/taigrr/dhdmgen/pkg/math3d"
)

var (
	// ErrInvalidMesh reports a mesh whose attribute flags, arrays or indices
	// are inconsistent.
	ErrInvalidMesh = errors.New("invalid mesh")

	// ErrVertexCountMismatch reports two meshes that should correspond 1:1
	// but have different vertex counts.
	ErrVertexCountMismatch = errors.New("vertex count mismatch")
)

// FaceVertex is one face corner: a vertex id and a UV id into the UV layers.
type FaceVertex struct {
	Vertex int
	UV     int
}

// Face is an ordered polygon. Subdivision accepts triangles and quads only.
type Face struct {
	Vertices []FaceVertex
	MatID    int // Index into Mesh.MaterialNames when UsesMaterials is set
}

// Mesh holds positions, faces and the optional UV, material and vertex
// group channels. The Uses* flags select which channels take part in
// subdivision and export; Validate checks they agree with the arrays.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Faces    []Face

	UsesUVs  bool
	UVLayers [][]UV // every layer is indexed by FaceVertex.UV

	UsesMaterials bool
	MaterialNames []string

	UsesVGroups bool
	VGroupNames []string
	VWeights    []VertexWeights // one entry per vertex
}

// NewMesh creates an empty mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:     name,
		Vertices: make([]Vertex, 0),
		Faces:    make([]Face, 0),
	}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// FaceCount returns the number of faces.
func (m *Mesh) FaceCount() int {
	return len(m.Faces)
}

// Positions returns a copy of the vertex positions.
func (m *Mesh) Positions() []math3d.Vec3 {
	out := make([]math3d.Vec3, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = v.Pos
	}
	return out
}

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() (min, max math3d.Vec3) {
	if len(m.Vertices) == 0 {
		return math3d.Zero3(), math3d.Zero3()
	}

	min = m.Vertices[0].Pos
	max = m.Vertices[0].Pos
	for _, v := range m.Vertices[1:] {
		min = min.Min(v.Pos)
		max = max.Max(v.Pos)
	}
	return min, max
}

// Transform applies a transformation matrix to all vertices.
func (m *Mesh) Transform(mat math3d.Mat4) {
	for i := range m.Vertices {
		m.Vertices[i].Pos = mat.MulVec3(m.Vertices[i].Pos)
	}
}

// Clone creates a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	clone := &Mesh{
		Name:          m.Name,
		Vertices:      make([]Vertex, len(m.Vertices)),
		Faces:         make([]Face, len(m.Faces)),
		UsesUVs:       m.UsesUVs,
		UsesMaterials: m.UsesMaterials,
		UsesVGroups:   m.UsesVGroups,
	}
	copy(clone.Vertices, m.Vertices)
	for i, f := range m.Faces {
		clone.Faces[i] = Face{
			Vertices: append([]FaceVertex(nil), f.Vertices...),
			MatID:    f.MatID,
		}
	}
	for _, layer := range m.UVLayers {
		clone.UVLayers = append(clone.UVLayers, append([]UV(nil), layer...))
	}
	clone.MaterialNames = append([]string(nil), m.MaterialNames...)
	clone.VGroupNames = append([]string(nil), m.VGroupNames...)
	if m.VWeights != nil {
		clone.VWeights = make([]VertexWeights, len(m.VWeights))
		for i, w := range m.VWeights {
			clone.VWeights[i] = w.Clone()
		}
	}
	return clone
}

// Validate checks channel flags against array contents and every index
// against the array it refers to.
func (m *Mesh) Validate() error {
	if m.UsesUVs != (len(m.UVLayers) > 0) {
		return fmt.Errorf("%w: uses_uvs=%t with %d uv layers", ErrInvalidMesh, m.UsesUVs, len(m.UVLayers))
	}
	if m.UsesVGroups != (len(m.VWeights) > 0) {
		return fmt.Errorf("%w: uses_vgroups=%t with %d weight entries", ErrInvalidMesh, m.UsesVGroups, len(m.VWeights))
	}
	if !m.UsesMaterials && len(m.MaterialNames) > 0 {
		return fmt.Errorf("%w: %d material names without uses_materials", ErrInvalidMesh, len(m.MaterialNames))
	}

	numUVs := 0
	if m.UsesUVs {
		numUVs = len(m.UVLayers[0])
		for i, layer := range m.UVLayers[1:] {
			if len(layer) != numUVs {
				return fmt.Errorf("%w: uv layer %d has %d values, layer 0 has %d", ErrInvalidMesh, i+1, len(layer), numUVs)
			}
		}
	}

	for fi, f := range m.Faces {
		if len(f.Vertices) < 3 {
			return fmt.Errorf("%w: face %d has %d vertices", ErrInvalidMesh, fi, len(f.Vertices))
		}
		for _, fv := range f.Vertices {
			if fv.Vertex < 0 || fv.Vertex >= len(m.Vertices) {
				return fmt.Errorf("%w: face %d references vertex %d of %d", ErrInvalidMesh, fi, fv.Vertex, len(m.Vertices))
			}
			if m.UsesUVs && (fv.UV < 0 || fv.UV >= numUVs) {
				return fmt.Errorf("%w: face %d references uv %d of %d", ErrInvalidMesh, fi, fv.UV, numUVs)
			}
		}
		if m.UsesMaterials {
			if f.MatID < 0 || (len(m.MaterialNames) > 0 && f.MatID >= len(m.MaterialNames)) {
				return fmt.Errorf("%w: face %d references material %d of %d", ErrInvalidMesh, fi, f.MatID, len(m.MaterialNames))
			}
		}
	}

	if m.UsesVGroups {
		if len(m.VWeights) != len(m.Vertices) {
			return fmt.Errorf("%w: %d weight entries for %d vertices", ErrInvalidMesh, len(m.VWeights), len(m.Vertices))
		}
		for vi, w := range m.VWeights {
			for group := range w {
				if group < 0 || group >= len(m.VGroupNames) {
					return fmt.Errorf("%w: vertex %d references group %d of %d", ErrInvalidMesh, vi, group, len(m.VGroupNames))
				}
			}
		}
	}
	return nil
}

// Triangulate splits every quad into two triangles (0-1-2 and 2-3-0). The
// second triangle of each quad is appended after the original faces.
func (m *Mesh) Triangulate() {
	n := len(m.Faces)
	for i := range n {
		f := &m.Faces[i]
		if len(f.Vertices) != 4 {
			continue
		}
		m.Faces = append(m.Faces, Face{
			Vertices: []FaceVertex{f.Vertices[2], f.Vertices[3], f.Vertices[0]},
			MatID:    f.MatID,
		})
		// m.Faces may have been reallocated by the append above.
		m.Faces[i].Vertices = m.Faces[i].Vertices[:3]
	}
}

// EdgeCount returns the number of distinct undirected edges.
func (m *Mesh) EdgeCount() int {
	edges := make(map[[2]int]struct{}, len(m.Faces)*2)
	for _, f := range m.Faces {
		n := len(f.Vertices)
		for i := range n {
			a, b := f.Vertices[i].Vertex, f.Vertices[(i+1)%n].Vertex
			if a > b {
				a, b = b, a
			}
			edges[[2]int{a, b}] = struct{}{}
		}
	}
	return len(edges)
}

// Fingerprint identifies a topology as "<vertices>-<edges>-<faces>". Matching
// files are named after it.
func (m *Mesh) Fingerprint() string {
	return fmt.Sprintf("%d-%d-%d", len(m.Vertices), m.EdgeCount(), len(m.Faces))
}

// CheckSameVertexCount returns ErrVertexCountMismatch unless a and b have the
// same number of vertices.
func CheckSameVertexCount(a, b *Mesh) error {
	if len(a.Vertices) != len(b.Vertices) {
		return fmt.Errorf("%w: %q has %d vertices, %q has %d",
			ErrVertexCountMismatch, a.Name, len(a.Vertices), b.Name, len(b.Vertices))
	}
	return nil
}
