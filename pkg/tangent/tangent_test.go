package tangent

import (
	"errors"
	"math"
	"testing"

	"github.com/taigrr/dhdmgen/pkg/math3d"
	"github.com/taigrr/dhdmgen/pkg/mesh"
)

func quadMesh(corners ...math3d.Vec3) *mesh.Mesh {
	m := mesh.NewMesh("quad")
	f := mesh.Face{}
	for i, c := range corners {
		m.Vertices = append(m.Vertices, mesh.Vertex{Pos: c})
		f.Vertices = append(f.Vertices, mesh.FaceVertex{Vertex: i})
	}
	m.Faces = []mesh.Face{f}
	return m
}

func unitQuad() *mesh.Mesh {
	return quadMesh(math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(1, 1, 0), math3d.V3(0, 1, 0))
}

func TestBuildUnitQuad(t *testing.T) {
	fr, err := Build(unitQuad())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Corner 0 points towards corner 3, so world +Y is frame X and the
	// normal +Z is frame Y.
	tests := []struct {
		name  string
		world math3d.Vec3
		want  math3d.Vec3
	}{
		{"edge direction", math3d.V3(0, 1, 0), math3d.V3(1, 0, 0)},
		{"normal", math3d.V3(0, 0, 1), math3d.V3(0, 1, 0)},
		{"binormal", math3d.V3(1, 0, 0), math3d.V3(0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fr.ToLocal(0, 0, tt.world)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Approx(tt.want, 1e-12) {
				t.Errorf("ToLocal(%v) = %v, want %v", tt.world, got, tt.want)
			}
		})
	}
}

func TestNormalComponentSharedByCorners(t *testing.T) {
	fr, err := Build(unitQuad())
	if err != nil {
		t.Fatal(err)
	}
	for corner := range 4 {
		got, err := fr.ToLocal(0, corner, math3d.V3(0, 0, 0.05))
		if err != nil {
			t.Fatal(err)
		}
		if !got.Approx(math3d.V3(0, 0.05, 0), 1e-12) {
			t.Errorf("corner %d normal = %v", corner, got)
		}
	}
}

func TestFramesAreRotationInvariant(t *testing.T) {
	base := quadMesh(math3d.V3(0, 0, 0), math3d.V3(2, 0, 0.3), math3d.V3(2, 1, 0.1), math3d.V3(0, 1.5, 0))
	rot := math3d.Rotate(math3d.V3(1, 2, 3), 0.7)
	rotated := base.Clone()
	rotated.Transform(rot)

	a, err := Build(base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(rotated)
	if err != nil {
		t.Fatal(err)
	}

	v := math3d.V3(0.3, -0.2, 0.5)
	rv := rot.MulVec3Dir(v)
	for corner := range 4 {
		got, err := b.ToLocal(0, corner, rv)
		if err != nil {
			t.Fatal(err)
		}
		want, err := a.ToLocal(0, corner, v)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Approx(want, 1e-9) {
			t.Errorf("corner %d: rotated %v, original %v", corner, got, want)
		}
	}
}

func TestFramesAreOrthonormal(t *testing.T) {
	fr, err := Build(quadMesh(math3d.V3(0, 0, 0), math3d.V3(3, 0, 0), math3d.V3(3, 1, 0), math3d.V3(0, 2, 0)))
	if err != nil {
		t.Fatal(err)
	}
	for corner := range 4 {
		m, err := fr.Matrix(0, corner)
		if err != nil {
			t.Fatal(err)
		}
		axes := []math3d.Vec3{m.MulVec3(math3d.V3(1, 0, 0)), m.MulVec3(math3d.V3(0, 1, 0)), m.MulVec3(math3d.V3(0, 0, 1))}
		for i, a := range axes {
			if math.Abs(a.Len()-1) > 1e-9 {
				t.Errorf("corner %d axis %d length = %f", corner, i, a.Len())
			}
			b := axes[(i+1)%3]
			if d := a.Dot(b); math.Abs(d) > 1e-9 {
				t.Errorf("corner %d axes %d and %d dot = %f", corner, i, (i+1)%3, d)
			}
		}
	}
}

func TestFirstLevelOffsets(t *testing.T) {
	m := unitQuad()
	m.Vertices = append(m.Vertices, mesh.V(2, 0, 0))
	m.Faces = append(m.Faces, mesh.Face{Vertices: []mesh.FaceVertex{{Vertex: 1}, {Vertex: 4}, {Vertex: 2}}})
	m.Faces = append(m.Faces, m.Faces[0])

	fr, err := Build(m)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 4, 7}
	got := fr.FirstLevelOffsets()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offset %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDegenerateFaceFailsOnUse(t *testing.T) {
	tests := []struct {
		name string
		m    *mesh.Mesh
	}{
		{"collinear", quadMesh(math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(2, 0, 0), math3d.V3(3, 0, 0))},
		{"repeated corner", quadMesh(math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(1, 1, 0), math3d.V3(1, 1, 0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr, err := Build(tt.m)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if got := fr.Degenerate(); len(got) != 1 || got[0] != 0 {
				t.Errorf("Degenerate() = %v, want [0]", got)
			}
			if _, err := fr.ToLocal(0, 0, math3d.V3(0, 0, 1)); !errors.Is(err, ErrDegenerateFace) {
				t.Errorf("ToLocal() error = %v, want ErrDegenerateFace", err)
			}
		})
	}
}

func TestDegenerateFaceLeavesOthersUsable(t *testing.T) {
	m := unitQuad()
	m.Vertices = append(m.Vertices, mesh.V(2, 0, 0), mesh.V(3, 0, 0))
	m.Faces = append(m.Faces, mesh.Face{Vertices: []mesh.FaceVertex{{Vertex: 1}, {Vertex: 4}, {Vertex: 5}}})

	fr, err := Build(m)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := fr.Degenerate(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Degenerate() = %v, want [1]", got)
	}
	got, err := fr.ToLocal(0, 0, math3d.V3(0, 0, 1))
	if err != nil {
		t.Fatalf("ToLocal on the quad failed: %v", err)
	}
	if !got.Approx(math3d.V3(0, 1, 0), 1e-12) {
		t.Errorf("ToLocal = %v, want normal on frame Y", got)
	}
	if fr.FirstLevelOffset(1) != 4 {
		t.Errorf("FirstLevelOffset(1) = %d, want 4", fr.FirstLevelOffset(1))
	}
}

func TestBuildRejectsMissingVertex(t *testing.T) {
	m := unitQuad()
	m.Faces[0].Vertices[2].Vertex = 9
	if _, err := Build(m); !errors.Is(err, mesh.ErrInvalidMesh) {
		t.Errorf("Build() error = %v, want ErrInvalidMesh", err)
	}
}
