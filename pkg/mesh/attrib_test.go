package mesh

import (
	"math"
	"testing"

	"github.com/taigrr/dhdmgen/pkg/math3d"
)

// blend accumulates srcs with weights through the Interpolable contract.
func blend[T Interpolable[T]](srcs []T, weights []float64) T {
	var zero T
	acc := zero.Zero()
	for i, s := range srcs {
		acc = acc.AddWithWeight(s, weights[i])
	}
	return acc
}

func TestVertexAddWithWeight(t *testing.T) {
	got := blend([]Vertex{V(0, 0, 0), V(2, 0, 0), V(2, 2, 0), V(0, 2, 0)}, []float64{0.25, 0.25, 0.25, 0.25})
	if !got.Pos.Approx(math3d.V3(1, 1, 0), 1e-12) {
		t.Errorf("face average = %v, want (1,1,0)", got.Pos)
	}
}

func TestUVAddWithWeight(t *testing.T) {
	got := blend([]UV{{Pos: math3d.V2(0, 0)}, {Pos: math3d.V2(1, 0.5)}}, []float64{0.5, 0.5})
	if math.Abs(got.Pos.X-0.5) > 1e-12 || math.Abs(got.Pos.Y-0.25) > 1e-12 {
		t.Errorf("midpoint = %v, want (0.5,0.25)", got.Pos)
	}
}

func TestVertexWeightsMergePerGroup(t *testing.T) {
	a := VertexWeights{0: 1}
	b := VertexWeights{0: 0.5, 3: 0.5}

	got := blend([]VertexWeights{a, b}, []float64{0.5, 0.5})

	tests := []struct {
		group int
		want  float64
	}{
		{0, 0.75},
		{3, 0.25},
	}
	for _, tt := range tests {
		if math.Abs(got[tt.group]-tt.want) > 1e-12 {
			t.Errorf("group %d = %f, want %f", tt.group, got[tt.group], tt.want)
		}
	}
	if len(got) != 2 {
		t.Errorf("expected 2 groups, got %d", len(got))
	}
	if a[0] != 1 || len(a) != 1 {
		t.Errorf("source weights mutated: %v", a)
	}
}

func TestVertexWeightsNilAccumulator(t *testing.T) {
	var acc VertexWeights
	acc = acc.AddWithWeight(VertexWeights{2: 1}, 0.5)
	if acc[2] != 0.5 {
		t.Errorf("acc[2] = %f, want 0.5", acc[2])
	}
}
