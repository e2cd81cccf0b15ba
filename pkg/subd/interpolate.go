package subd

import (
	"fmt"

	"github.com/taigrr/dhdmgen/pkg/mesh"
)

// Interpolate refines per-vertex values of level lvl-1 into the vertices of
// level lvl using the Catmull-Clark weights.
func Interpolate[T mesh.Interpolable[T]](r *Refiner, lvl int, src []T) ([]T, error) {
	t, err := r.Stencils(lvl)
	if err != nil {
		return nil, err
	}
	dst, err := Apply(t, src)
	if err != nil {
		return nil, fmt.Errorf("interpolate level %d: %w", lvl, err)
	}
	return dst, nil
}

// InterpolateFaceVarying refines per-UV-value data of level lvl-1 into the
// UV values of level lvl using linear weights.
func InterpolateFaceVarying[T mesh.Interpolable[T]](r *Refiner, lvl int, src []T) ([]T, error) {
	if !r.uvs {
		return nil, ErrNoUVLayer
	}
	if lvl < 1 || lvl > r.MaxLevel() {
		return nil, fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidLevel, lvl, r.MaxLevel())
	}
	dst, err := Apply(r.refinements[lvl-1].uv, src)
	if err != nil {
		return nil, fmt.Errorf("interpolate face-varying level %d: %w", lvl, err)
	}
	return dst, nil
}

// InterpolateFaceUniform copies per-face values of level lvl-1 to the child
// faces of level lvl. Values are categorical and never blended.
func InterpolateFaceUniform[T any](r *Refiner, lvl int, src []T) ([]T, error) {
	if lvl < 1 || lvl > r.MaxLevel() {
		return nil, fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidLevel, lvl, r.MaxLevel())
	}
	if want := r.NumFaces(lvl - 1); len(src) != want {
		return nil, fmt.Errorf("interpolate face-uniform level %d: %d source values, want %d", lvl, len(src), want)
	}

	parents := r.refinements[lvl-1].faceParent
	dst := make([]T, len(parents))
	for i, p := range parents {
		dst[i] = src[p]
	}
	return dst, nil
}

// interpolateAll refines level 0 values to the finest level with step.
func interpolateAll[T any](r *Refiner, src []T, step func(r *Refiner, lvl int, src []T) ([]T, error)) ([]T, error) {
	for lvl := 1; lvl <= r.MaxLevel(); lvl++ {
		dst, err := step(r, lvl, src)
		if err != nil {
			return nil, err
		}
		src = dst
	}
	return src, nil
}
