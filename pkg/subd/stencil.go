package subd

import (
	"fmt"
	"slices"

	"github.com/taigrr/dhdmgen/pkg/mesh"
)

// StencilTable expresses each destination value as a weighted sum of
// control values. Stencils are stored back to back: stencil i covers
// indices[offsets[i]:offsets[i+1]].
type StencilTable struct {
	numControl int
	offsets    []int
	indices    []int
	weights    []float64
}

func newStencilTable(numControl, sizeHint int) *StencilTable {
	return &StencilTable{
		numControl: numControl,
		offsets:    append(make([]int, 0, sizeHint+1), 0),
	}
}

// NumStencils returns the number of destination values.
func (t *StencilTable) NumStencils() int {
	return len(t.offsets) - 1
}

// NumControlVertices returns the number of source values a stencil may
// reference.
func (t *StencilTable) NumControlVertices() int {
	return t.numControl
}

// NumEntries returns the total number of (index, weight) pairs.
func (t *StencilTable) NumEntries() int {
	return len(t.indices)
}

// Stencil returns copies of the control indices and weights of stencil i.
func (t *StencilTable) Stencil(i int) ([]int, []float64) {
	lo, hi := t.offsets[i], t.offsets[i+1]
	return slices.Clone(t.indices[lo:hi]), slices.Clone(t.weights[lo:hi])
}

// push appends one stencil.
func (t *StencilTable) push(s *stencil) {
	t.indices = append(t.indices, s.indices...)
	t.weights = append(t.weights, s.weights...)
	t.offsets = append(t.offsets, len(t.indices))
}

// Compose returns the table mapping prev's control values directly to t's
// destination values, where prev produces t's control values.
func (t *StencilTable) Compose(prev *StencilTable) (*StencilTable, error) {
	if prev.NumStencils() != t.numControl {
		return nil, fmt.Errorf("compose stencils: %d control values, previous table has %d stencils",
			t.numControl, prev.NumStencils())
	}

	out := newStencilTable(prev.numControl, t.NumStencils())
	scratch := make([]float64, prev.numControl)
	seen := make([]bool, prev.numControl)
	var touched []int
	var s stencil

	for i := range t.NumStencils() {
		touched = touched[:0]
		for k := t.offsets[i]; k < t.offsets[i+1]; k++ {
			mid, w := t.indices[k], t.weights[k]
			for j := prev.offsets[mid]; j < prev.offsets[mid+1]; j++ {
				idx := prev.indices[j]
				if !seen[idx] {
					seen[idx] = true
					touched = append(touched, idx)
				}
				scratch[idx] += w * prev.weights[j]
			}
		}

		slices.Sort(touched)
		s.reset()
		for _, idx := range touched {
			if scratch[idx] != 0 {
				s.indices = append(s.indices, idx)
				s.weights = append(s.weights, scratch[idx])
			}
			scratch[idx] = 0
			seen[idx] = false
		}
		out.push(&s)
	}
	return out, nil
}

// Apply evaluates every stencil against src.
func Apply[T mesh.Interpolable[T]](t *StencilTable, src []T) ([]T, error) {
	if len(src) != t.numControl {
		return nil, fmt.Errorf("apply stencils: %d source values, table expects %d", len(src), t.numControl)
	}

	var zero T
	dst := make([]T, t.NumStencils())
	for i := range dst {
		acc := zero.Zero()
		for k := t.offsets[i]; k < t.offsets[i+1]; k++ {
			acc = acc.AddWithWeight(src[t.indices[k]], t.weights[k])
		}
		dst[i] = acc
	}
	return dst, nil
}

// stencil is a scratch accumulator for one destination value.
type stencil struct {
	indices []int
	weights []float64
}

func (s *stencil) reset() {
	s.indices = s.indices[:0]
	s.weights = s.weights[:0]
}

// add merges weight into the entry for idx.
func (s *stencil) add(idx int, weight float64) {
	for i, x := range s.indices {
		if x == idx {
			s.weights[i] += weight
			return
		}
	}
	s.indices = append(s.indices, idx)
	s.weights = append(s.weights, weight)
}
