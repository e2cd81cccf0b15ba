package subd

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/taigrr/dhdmgen/pkg/math3d"
	"github.com/taigrr/dhdmgen/pkg/mesh"
)

func unitQuad() *mesh.Mesh {
	m := mesh.NewMesh("quad")
	m.Vertices = []mesh.Vertex{mesh.V(0, 0, 0), mesh.V(1, 0, 0), mesh.V(1, 1, 0), mesh.V(0, 1, 0)}
	m.Faces = []mesh.Face{{Vertices: []mesh.FaceVertex{{Vertex: 0, UV: 0}, {Vertex: 1, UV: 1}, {Vertex: 2, UV: 2}, {Vertex: 3, UV: 3}}}}
	m.UsesUVs = true
	m.UVLayers = [][]mesh.UV{{
		{Pos: math3d.V2(0, 0)}, {Pos: math3d.V2(1, 0)},
		{Pos: math3d.V2(1, 1)}, {Pos: math3d.V2(0, 1)},
	}}
	return m
}

func cube() *mesh.Mesh {
	m := mesh.NewMesh("cube")
	m.Vertices = []mesh.Vertex{
		mesh.V(-1, -1, -1), mesh.V(1, -1, -1), mesh.V(1, 1, -1), mesh.V(-1, 1, -1),
		mesh.V(-1, -1, 1), mesh.V(1, -1, 1), mesh.V(1, 1, 1), mesh.V(-1, 1, 1),
	}
	quads := [][4]int{
		{0, 3, 2, 1}, {4, 5, 6, 7},
		{0, 1, 5, 4}, {1, 2, 6, 5},
		{2, 3, 7, 6}, {3, 0, 4, 7},
	}
	for i, q := range quads {
		f := mesh.Face{MatID: i}
		for _, v := range q {
			f.Vertices = append(f.Vertices, mesh.FaceVertex{Vertex: v})
		}
		m.Faces = append(m.Faces, f)
	}
	return m
}

func TestRefinerCounts(t *testing.T) {
	tests := []struct {
		name      string
		m         *mesh.Mesh
		level     int
		wantVerts int
		wantFaces int
		wantEdges int
	}{
		{"quad level 1", unitQuad(), 1, 9, 4, 12},
		{"quad level 2", unitQuad(), 2, 25, 16, 40},
		{"cube level 1", cube(), 1, 26, 24, 48},
		{"cube level 2", cube(), 2, 98, 96, 192},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRefiner(tt.m, tt.level, Options{})
			if err != nil {
				t.Fatalf("NewRefiner failed: %v", err)
			}
			if r.MaxLevel() != tt.level {
				t.Errorf("MaxLevel() = %d, want %d", r.MaxLevel(), tt.level)
			}
			if got := r.NumVertices(tt.level); got != tt.wantVerts {
				t.Errorf("NumVertices = %d, want %d", got, tt.wantVerts)
			}
			if got := r.NumFaces(tt.level); got != tt.wantFaces {
				t.Errorf("NumFaces = %d, want %d", got, tt.wantFaces)
			}
			if got := r.NumEdges(tt.level); got != tt.wantEdges {
				t.Errorf("NumEdges = %d, want %d", got, tt.wantEdges)
			}
		})
	}
}

func TestRefinerErrors(t *testing.T) {
	pentagon := mesh.NewMesh("pentagon")
	pentagon.Vertices = make([]mesh.Vertex, 5)
	pentagon.Faces = []mesh.Face{{Vertices: []mesh.FaceVertex{{Vertex: 0, UV: 0}, {Vertex: 1, UV: 0}, {Vertex: 2, UV: 0}, {Vertex: 3, UV: 0}, {Vertex: 4, UV: 0}}}}

	noUVs := unitQuad()
	noUVs.UsesUVs = false
	noUVs.UVLayers = nil

	tests := []struct {
		name  string
		m     *mesh.Mesh
		level int
		opts  Options
		want  error
	}{
		{"pentagon", pentagon, 1, Options{}, ErrUnsupportedArity},
		{"level zero", unitQuad(), 0, Options{}, ErrInvalidLevel},
		{"uvs without layer", noUVs, 1, Options{UVs: true}, ErrNoUVLayer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRefiner(tt.m, tt.level, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewRefiner() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChildFaceLayout(t *testing.T) {
	r, err := NewRefiner(unitQuad(), 2, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Base vertices 0-3, face point 4, edge points 5-8 for edges
	// (0,1), (1,2), (2,3), (3,0). Child j holds parent corner j at corner j,
	// the next edge point after it and the face point opposite.
	want := [][]int{
		{0, 5, 4, 8},
		{5, 1, 6, 4},
		{4, 6, 2, 7},
		{8, 4, 7, 3},
	}
	for j, w := range want {
		if got := r.FaceVertices(1, j); !slices.Equal(got, w) {
			t.Errorf("child %d = %v, want %v", j, got, w)
		}
		if p := r.FaceParent(1, j); p != 0 {
			t.Errorf("FaceParent(1, %d) = %d", j, p)
		}
	}

	// Children of one parent are contiguous.
	for f := range r.NumFaces(2) {
		if p := r.FaceParent(2, f); p != f/4 {
			t.Errorf("FaceParent(2, %d) = %d, want %d", f, p, f/4)
		}
	}

	// Base vertices keep their index and their corner: level 1 face v has
	// vertex v at corner v, and so does its child v.
	for v := range 4 {
		if got := r.FaceVertex(2, 4*v+v, v); got != v {
			t.Errorf("level 2 face %d corner %d = %d, want %d", 4*v+v, v, got, v)
		}
	}
}

func TestChildEdgeNumbering(t *testing.T) {
	r, err := NewRefiner(unitQuad(), 1, Options{})
	if err != nil {
		t.Fatal(err)
	}
	l := r.level(0)
	wantBase := [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}
	if !slices.Equal(l.edges, wantBase) {
		t.Errorf("base edges = %v, want %v", l.edges, wantBase)
	}

	// Edges split from the face come first, face point to edge point,
	// then both halves of every parent edge starting at the edge point.
	c := r.level(1)
	want := [][2]int{
		{4, 5}, {4, 6}, {4, 7}, {4, 8},
		{5, 0}, {5, 1},
		{6, 1}, {6, 2},
		{7, 2}, {7, 3},
		{8, 3}, {8, 0},
	}
	if !slices.Equal(c.edges, want) {
		t.Errorf("level 1 edges = %v, want %v", c.edges, want)
	}

	// Face edge k joins corners k and k+1.
	for f := range r.NumFaces(1) {
		fv := c.faceVerts[f]
		for k, e := range c.faceEdges[f] {
			a, b := fv[k], fv[(k+1)%4]
			if ev := c.edges[e]; !(ev == [2]int{a, b} || ev == [2]int{b, a}) {
				t.Errorf("face %d edge %d = %v, want corners %d-%d", f, k, ev, a, b)
			}
		}
	}
}

func TestFaceVerticesIsCopy(t *testing.T) {
	r, err := NewRefiner(unitQuad(), 1, Options{})
	if err != nil {
		t.Fatal(err)
	}
	fv := r.FaceVertices(1, 0)
	fv[0] = 99
	if r.FaceVertices(1, 0)[0] == 99 {
		t.Error("FaceVertices exposes internal storage")
	}
}

func TestQuadPositions(t *testing.T) {
	m := unitQuad()
	if err := Subdivide(m, 1); err != nil {
		t.Fatalf("Subdivide failed: %v", err)
	}

	tests := []struct {
		name string
		idx  int
		want math3d.Vec3
	}{
		{"corner uses boundary rule", 0, math3d.V3(0.125, 0.125, 0)},
		{"face point", 4, math3d.V3(0.5, 0.5, 0)},
		{"boundary edge midpoint", 5, math3d.V3(0.5, 0, 0)},
		{"boundary edge midpoint 3", 8, math3d.V3(0, 0.5, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Vertices[tt.idx].Pos; !got.Approx(tt.want, 1e-12) {
				t.Errorf("vertex %d = %v, want %v", tt.idx, got, tt.want)
			}
		})
	}
}

func TestCubeInteriorRule(t *testing.T) {
	m := cube()
	if err := Subdivide(m, 1); err != nil {
		t.Fatalf("Subdivide failed: %v", err)
	}

	// Corner of a cube with half-size 1: n=3, neighbour average and face
	// point average each sit at 1/3 and 2/3 of the corner. Result is 5/9.
	want := 5.0 / 9.0
	for v := range 8 {
		p := m.Vertices[v].Pos
		for _, c := range []float64{p.X, p.Y, p.Z} {
			if math.Abs(math.Abs(c)-want) > 1e-12 {
				t.Errorf("vertex %d = %v, want components of magnitude %f", v, p, want)
			}
		}
	}

	// Edge point of an interior edge: (v0+v1+f0+f1)/4.
	// Edge 0 joins vertex 0 and 3; its faces are 0 and 5.
	e := m.Vertices[8+6].Pos
	if !e.Approx(math3d.V3(-0.75, 0, -0.75), 1e-12) {
		t.Errorf("edge point = %v, want (-0.75, 0, -0.75)", e)
	}

	if m.FaceCount() != 24 {
		t.Errorf("FaceCount() = %d, want 24", m.FaceCount())
	}
	for f := range m.Faces {
		if m.Faces[f].MatID != f/4 {
			t.Errorf("face %d MatID = %d, want %d", f, m.Faces[f].MatID, f/4)
		}
	}
}

func TestTriangleRefinesToQuads(t *testing.T) {
	m := mesh.NewMesh("tri")
	m.Vertices = []mesh.Vertex{mesh.V(0, 0, 0), mesh.V(1, 0, 0), mesh.V(0, 1, 0)}
	m.Faces = []mesh.Face{{Vertices: []mesh.FaceVertex{{Vertex: 0, UV: 0}, {Vertex: 1, UV: 0}, {Vertex: 2, UV: 0}}}}

	if err := Subdivide(m, 1); err != nil {
		t.Fatalf("Subdivide failed: %v", err)
	}
	if m.VertexCount() != 7 || m.FaceCount() != 3 {
		t.Fatalf("got %d vertices, %d faces", m.VertexCount(), m.FaceCount())
	}
	// Triangle children are not rotated: the parent vertex is corner 0.
	for i, f := range m.Faces {
		if len(f.Vertices) != 4 {
			t.Fatalf("face %d has %d corners", i, len(f.Vertices))
		}
		if f.Vertices[0].Vertex != i {
			t.Errorf("face %d corner 0 = %d, want %d", i, f.Vertices[0].Vertex, i)
		}
	}
}

func TestUVInterpolationIsLinear(t *testing.T) {
	m := unitQuad()
	if err := Subdivide(m, 2); err != nil {
		t.Fatalf("Subdivide failed: %v", err)
	}
	if !m.UsesUVs || len(m.UVLayers) != 1 {
		t.Fatal("Expected one refined uv layer")
	}

	// The quad's UVs equal its planar positions before smoothing, so each
	// refined UV is the bilinear location of its corner in the base face.
	uvs := m.UVLayers[0]
	if len(uvs) != 25 {
		t.Fatalf("Expected 25 uv values, got %d", len(uvs))
	}
	if got := uvs[4].Pos; got.Sub(math3d.V2(0.5, 0.5)).Len() > 1e-12 {
		t.Errorf("face uv = %v, want (0.5, 0.5)", got)
	}
	if got := uvs[0].Pos; got.Sub(math3d.V2(0, 0)).Len() > 1e-12 {
		t.Errorf("corner uv moved to %v", got)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("refined mesh invalid: %v", err)
	}
}

func TestUVSeamIsPreserved(t *testing.T) {
	// Two quads sharing an edge whose UVs are split along it.
	m := mesh.NewMesh("seam")
	m.Vertices = []mesh.Vertex{
		mesh.V(0, 0, 0), mesh.V(1, 0, 0), mesh.V(1, 1, 0), mesh.V(0, 1, 0),
		mesh.V(2, 0, 0), mesh.V(2, 1, 0),
	}
	m.Faces = []mesh.Face{
		{Vertices: []mesh.FaceVertex{{Vertex: 0, UV: 0}, {Vertex: 1, UV: 1}, {Vertex: 2, UV: 2}, {Vertex: 3, UV: 3}}},
		{Vertices: []mesh.FaceVertex{{Vertex: 1, UV: 4}, {Vertex: 4, UV: 5}, {Vertex: 5, UV: 6}, {Vertex: 2, UV: 7}}},
	}
	m.UsesUVs = true
	m.UVLayers = [][]mesh.UV{make([]mesh.UV, 8)}

	r, err := NewRefiner(m, 1, Options{UVs: true})
	if err != nil {
		t.Fatal(err)
	}
	// 8 copied values, 2 face values, 7 edges with the shared edge split
	// into two values.
	if got := r.NumUVs(1); got != 8+2+8 {
		t.Errorf("NumUVs(1) = %d, want 18", got)
	}
	if got := r.NumVertices(1); got != 6+2+7 {
		t.Errorf("NumVertices(1) = %d, want 15", got)
	}
}

func TestVertexWeightsInterpolation(t *testing.T) {
	m := unitQuad()
	m.UsesVGroups = true
	m.VGroupNames = []string{"left", "right"}
	m.VWeights = []mesh.VertexWeights{{0: 1}, {1: 1}, {1: 1}, {0: 1}}

	if err := Subdivide(m, 1); err != nil {
		t.Fatalf("Subdivide failed: %v", err)
	}
	if len(m.VWeights) != 9 {
		t.Fatalf("Expected 9 weight entries, got %d", len(m.VWeights))
	}
	center := m.VWeights[4]
	if math.Abs(center[0]-0.5) > 1e-12 || math.Abs(center[1]-0.5) > 1e-12 {
		t.Errorf("center weights = %v, want 0.5/0.5", center)
	}
}

func TestInterpolateFaceUniform(t *testing.T) {
	r, err := NewRefiner(cube(), 2, Options{})
	if err != nil {
		t.Fatal(err)
	}
	names := []string{"a", "b", "c", "d", "e", "f"}
	lvl1, err := InterpolateFaceUniform(r, 1, names)
	if err != nil {
		t.Fatal(err)
	}
	lvl2, err := InterpolateFaceUniform(r, 2, lvl1)
	if err != nil {
		t.Fatal(err)
	}
	if len(lvl2) != 96 {
		t.Fatalf("Expected 96 values, got %d", len(lvl2))
	}
	for i, v := range lvl2 {
		if v != names[i/16] {
			t.Errorf("face %d = %q, want %q", i, v, names[i/16])
		}
	}

	if _, err := InterpolateFaceUniform(r, 1, names[:3]); err == nil {
		t.Error("Expected error for short source")
	}
	if _, err := InterpolateFaceUniform(r, 3, lvl2); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("Expected ErrInvalidLevel, got %v", err)
	}
}

func TestEvaluatorMatchesSubdivide(t *testing.T) {
	base := cube()
	eval, err := NewEvaluator(base, 3)
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	// A different position buffer with the same topology.
	target := base.Clone()
	for i := range target.Vertices {
		target.Vertices[i].Pos = target.Vertices[i].Pos.Scale(1 + 0.1*float64(i))
	}
	want := target.Clone()
	if err := Subdivide(want, 3); err != nil {
		t.Fatal(err)
	}

	if err := eval.Subdivide(target); err != nil {
		t.Fatalf("Evaluator.Subdivide failed: %v", err)
	}
	if target.VertexCount() != want.VertexCount() || target.FaceCount() != want.FaceCount() {
		t.Fatalf("got %d/%d, want %d/%d", target.VertexCount(), target.FaceCount(), want.VertexCount(), want.FaceCount())
	}
	for i := range want.Vertices {
		if !target.Vertices[i].Pos.Approx(want.Vertices[i].Pos, 1e-9) {
			t.Fatalf("vertex %d = %v, want %v", i, target.Vertices[i].Pos, want.Vertices[i].Pos)
		}
	}
	for i := range want.Faces {
		if target.Faces[i].Vertices[2] != want.Faces[i].Vertices[2] || target.Faces[i].MatID != want.Faces[i].MatID {
			t.Fatalf("face %d differs", i)
		}
	}
}

func TestEvaluatorVertexCountMismatch(t *testing.T) {
	eval, err := NewEvaluator(cube(), 1)
	if err != nil {
		t.Fatal(err)
	}
	err = eval.Subdivide(unitQuad())
	if !errors.Is(err, mesh.ErrVertexCountMismatch) {
		t.Errorf("Expected ErrVertexCountMismatch, got %v", err)
	}
}

func TestStencilsSumToOne(t *testing.T) {
	eval, err := NewEvaluator(cube(), 2)
	if err != nil {
		t.Fatal(err)
	}
	st := eval.Stencils()
	if st.NumControlVertices() != 8 || st.NumStencils() != 98 {
		t.Fatalf("table is %d x %d", st.NumStencils(), st.NumControlVertices())
	}
	for i := range st.NumStencils() {
		_, weights := st.Stencil(i)
		sum := 0.0
		for _, w := range weights {
			sum += w
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("stencil %d sums to %f", i, sum)
		}
	}
}

func TestSubdivideLevelZero(t *testing.T) {
	m := unitQuad()
	if err := Subdivide(m, 0); err != nil {
		t.Fatal(err)
	}
	if m.VertexCount() != 4 {
		t.Errorf("level 0 changed the mesh")
	}
}

func BenchmarkEvaluatorSubdivide(b *testing.B) {
	base := cube()
	eval, err := NewEvaluator(base, 4)
	if err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		target := base.Clone()
		if err := eval.Subdivide(target); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkNewRefiner(b *testing.B) {
	base := cube()
	for b.Loop() {
		if _, err := NewRefiner(base, 4, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
