package mesh

import "github.com/taigrr/dhdmgen/pkg/math3d"

// Interpolable is implemented by per-vertex and per-corner attributes that
// subdivision blends across levels. Zero returns the empty accumulator and
// AddWithWeight returns the accumulator plus weight*src.
type Interpolable[T any] interface {
	Zero() T
	AddWithWeight(src T, weight float64) T
}

// Compile-time interface checks.
var (
	_ Interpolable[Vertex]        = Vertex{}
	_ Interpolable[UV]            = UV{}
	_ Interpolable[VertexWeights] = VertexWeights{}
)

// Vertex is a position in mesh units.
type Vertex struct {
	Pos math3d.Vec3
}

// V creates a Vertex from its coordinates.
func V(x, y, z float64) Vertex {
	return Vertex{Pos: math3d.V3(x, y, z)}
}

// Zero returns the origin.
func (Vertex) Zero() Vertex {
	return Vertex{}
}

// AddWithWeight returns v + weight*src.
func (v Vertex) AddWithWeight(src Vertex, weight float64) Vertex {
	return Vertex{Pos: v.Pos.Add(src.Pos.Scale(weight))}
}

// UV is a texture coordinate.
type UV struct {
	Pos math3d.Vec2
}

// Zero returns (0, 0).
func (UV) Zero() UV {
	return UV{}
}

// AddWithWeight returns uv + weight*src.
func (uv UV) AddWithWeight(src UV, weight float64) UV {
	return UV{Pos: uv.Pos.Add(src.Pos.Scale(weight))}
}

// VertexWeights maps a vertex group (joint) id to its skin weight.
type VertexWeights map[int]float64

// Zero returns an empty weight set.
func (VertexWeights) Zero() VertexWeights {
	return VertexWeights{}
}

// AddWithWeight merges weight*src into w, adding per group id. The receiver
// is updated in place and returned; a nil receiver allocates.
func (w VertexWeights) AddWithWeight(src VertexWeights, weight float64) VertexWeights {
	if w == nil {
		w = make(VertexWeights, len(src))
	}
	for group, value := range src {
		w[group] += value * weight
	}
	return w
}

// Clone returns an independent copy.
func (w VertexWeights) Clone() VertexWeights {
	if w == nil {
		return nil
	}
	c := make(VertexWeights, len(w))
	for k, v := range w {
		c[k] = v
	}
	return c
}
