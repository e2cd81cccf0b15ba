package mesh

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Triangles returns the mesh surface as sdfx triangles with positions
// multiplied by scale. Quads are split along their 0-2 diagonal.
func (m *Mesh) Triangles(scale float64) []*sdf.Triangle3 {
	if scale == 0 {
		scale = 1
	}
	tris := make([]*sdf.Triangle3, 0, len(m.Faces)*2)
	for _, f := range m.Faces {
		for i := 1; i+1 < len(f.Vertices); i++ {
			tris = append(tris, &sdf.Triangle3{
				m.sdfVec(f.Vertices[0].Vertex, scale),
				m.sdfVec(f.Vertices[i].Vertex, scale),
				m.sdfVec(f.Vertices[i+1].Vertex, scale),
			})
		}
	}
	return tris
}

func (m *Mesh) sdfVec(id int, scale float64) v3.Vec {
	p := m.Vertices[id].Pos.Scale(scale)
	return v3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// SaveSTL writes the mesh as binary STL. UVs and materials are dropped.
func (m *Mesh) SaveSTL(path string, scale float64) error {
	if err := render.SaveSTL(path, m.Triangles(scale)); err != nil {
		return fmt.Errorf("save stl %s: %w", path, err)
	}
	return nil
}
