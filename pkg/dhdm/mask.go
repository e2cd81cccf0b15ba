package dhdm

import (
	"fmt"

	"github.com/taigrr/dhdmgen/pkg/mesh"
)

// EditedMaskFromReference returns the indices of the hd vertices that moved
// more than eps away from the unedited reference mesh ref.
func EditedMaskFromReference(hd, ref *mesh.Mesh, eps float64) (map[int]struct{}, error) {
	if err := mesh.CheckSameVertexCount(hd, ref); err != nil {
		return nil, fmt.Errorf("edited mask: %w", err)
	}

	edited := make(map[int]struct{})
	for i := range hd.Vertices {
		if hd.Vertices[i].Pos.Distance(ref.Vertices[i].Pos) > eps {
			edited[i] = struct{}{}
		}
	}
	return edited, nil
}
