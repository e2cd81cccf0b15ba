// Package tangent builds the per face corner frames that express
// displacement vectors independently of the mesh's orientation.
package tangent

import (
	"errors"
	"fmt"
	"slices"

	"github.com/taigrr/dhdmgen/pkg/math3d"
	"github.com/taigrr/dhdmgen/pkg/mesh"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateFace reports a face whose corners do not span a plane.
var ErrDegenerateFace = errors.New("degenerate face")

const minAxisLen = 1e-12

// Frames holds, for every face of a base mesh and every corner of that
// face, the matrix mapping world vectors into the corner's frame. Faces
// without a usable frame keep the reason instead.
type Frames struct {
	mats    [][]math3d.Mat3
	bad     []error
	offsets []int
}

// Build computes the frames of every face of m. The frame of corner i has
// the face normal as its second axis and the unit vector towards the
// previous corner as its first; the third completes a right-handed basis
// with the sign flipped. A face whose normal or edges have zero length is
// not an error here: its corners report ErrDegenerateFace when queried.
// Build fails only when a face references a vertex m does not have.
func Build(m *mesh.Mesh) (*Frames, error) {
	fr := &Frames{
		mats:    make([][]math3d.Mat3, len(m.Faces)),
		bad:     make([]error, len(m.Faces)),
		offsets: make([]int, len(m.Faces)),
	}

	offset := 0
	corners := make([]math3d.Vec3, 0, 4)
	for f, face := range m.Faces {
		fr.offsets[f] = offset
		offset += len(face.Vertices)

		corners = corners[:0]
		for _, fv := range face.Vertices {
			if fv.Vertex < 0 || fv.Vertex >= len(m.Vertices) {
				return nil, fmt.Errorf("%w: face %d references vertex %d of %d",
					mesh.ErrInvalidMesh, f, fv.Vertex, len(m.Vertices))
			}
			corners = append(corners, m.Vertices[fv.Vertex].Pos)
		}

		mats, err := faceFrames(corners)
		if err != nil {
			fr.bad[f] = fmt.Errorf("%w: face %d %v", ErrDegenerateFace, f, err)
			continue
		}
		fr.mats[f] = mats
	}
	return fr, nil
}

// faceFrames returns the world-to-frame matrices of the corners of one face.
func faceFrames(corners []math3d.Vec3) ([]math3d.Mat3, error) {
	n := len(corners)
	if n < 3 {
		return nil, fmt.Errorf("has %d corners", n)
	}

	normal := corners[1].Sub(corners[0]).Cross(corners[n-1].Sub(corners[0]))
	if normal.Len() < minAxisLen {
		return nil, errors.New("has no normal")
	}
	z := normal.Normalize()

	mats := make([]math3d.Mat3, n)
	for i := range n {
		toPrev := corners[(i+n-1)%n].Sub(corners[i])
		if toPrev.Len() < minAxisLen {
			return nil, fmt.Errorf("corner %d has a zero length edge", i)
		}
		x := toPrev.Normalize()
		y := z.Cross(x).Normalize()

		inv, err := inverse(math3d.Mat3FromColumns(x, z, y.Negate()))
		if err != nil {
			return nil, fmt.Errorf("corner %d: %v", i, err)
		}
		mats[i] = inv
	}
	return mats, nil
}

// inverse inverts a 3x3 matrix.
func inverse(m math3d.Mat3) (math3d.Mat3, error) {
	d := mat.NewDense(3, 3, nil)
	for row := range 3 {
		for col := range 3 {
			d.Set(row, col, m.Get(row, col))
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return math3d.Mat3{}, err
	}

	var out math3d.Mat3
	for row := range 3 {
		for col := range 3 {
			out.Set(row, col, inv.At(row, col))
		}
	}
	return out, nil
}

// NumFaces returns the number of faces the frames were built for.
func (fr *Frames) NumFaces() int {
	return len(fr.mats)
}

// Matrix returns the world-to-frame matrix of a face corner, or
// ErrDegenerateFace when the face has no frame.
func (fr *Frames) Matrix(face, corner int) (math3d.Mat3, error) {
	if err := fr.bad[face]; err != nil {
		return math3d.Mat3{}, err
	}
	return fr.mats[face][corner], nil
}

// ToLocal expresses world vector v in the frame of a face corner.
func (fr *Frames) ToLocal(face, corner int, v math3d.Vec3) (math3d.Vec3, error) {
	m, err := fr.Matrix(face, corner)
	if err != nil {
		return math3d.Vec3{}, err
	}
	return m.MulVec3(v), nil
}

// Degenerate returns the faces that have no frame, in ascending order.
func (fr *Frames) Degenerate() []int {
	var out []int
	for f, err := range fr.bad {
		if err != nil {
			out = append(out, f)
		}
	}
	return out
}

// FirstLevelOffset returns the index of the first level 1 child face of
// face. Children of a face are contiguous, one per corner.
func (fr *Frames) FirstLevelOffset(face int) int {
	return fr.offsets[face]
}

// FirstLevelOffsets returns the first level 1 child face of every face.
func (fr *Frames) FirstLevelOffsets() []int {
	return slices.Clone(fr.offsets)
}
