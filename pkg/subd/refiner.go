// Package subd implements uniform Catmull-Clark refinement of triangle and
// quad meshes, generic attribute interpolation across refinement levels,
// and a reusable stencil evaluator for repeated subdivision of meshes that
// share one topology.
//
// Boundaries follow the edge-only rule: boundary edges stay sharp and
// boundary vertices use the crease rule. Non-manifold vertices do not move.
// UVs are interpolated linearly, so UV seams are preserved.
//
// Child vertices of level k+1 are numbered children of level k vertices
// first, then children of faces, then children of edges. A vertex therefore
// keeps its index in every finer level. The four children of a face are
// contiguous; child j of a quad has the parent's corner j at its own corner
// j, child j of a triangle has it at corner 0. Child edges split from faces
// precede those split from parent edges.
package subd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/taigrr/dhdmgen/pkg/mesh"
)

var (
	// ErrUnsupportedArity reports a face that is not a triangle or a quad.
	ErrUnsupportedArity = errors.New("mesh must have triangles or quads only")

	// ErrNoUVLayer reports a UV refinement request on a mesh without UVs.
	ErrNoUVLayer = errors.New("uv refinement requested without a uv layer")

	// ErrInvalidLevel reports a refinement level below 1 or a level outside
	// the refined range.
	ErrInvalidLevel = errors.New("invalid refinement level")
)

// Options configures a Refiner.
type Options struct {
	// UVs refines the face-varying UV topology alongside the vertices.
	UVs bool
}

// refinement holds what one refinement pass produced from its parent level.
type refinement struct {
	vertex     *StencilTable // parent vertices to child vertices
	uv         *StencilTable // parent uv values to child uv values, nil without UVs
	faceParent []int
}

// Refiner owns the topology of a base mesh refined uniformly to a fixed
// level. Accessors return copies; no internal slice escapes.
type Refiner struct {
	levels      []*level      // 0..maxLevel
	refinements []*refinement // refinements[k] produces level k+1
	uvs         bool
}

// NewRefiner builds the base topology of m and refines it to maxLevel.
func NewRefiner(m *mesh.Mesh, maxLevel int, opts Options) (*Refiner, error) {
	if maxLevel < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, maxLevel)
	}
	if opts.UVs && (!m.UsesUVs || len(m.UVLayers) == 0) {
		return nil, ErrNoUVLayer
	}

	faceVerts := make([][]int, len(m.Faces))
	var faceUVs [][]int
	numUVs := 0
	if opts.UVs {
		faceUVs = make([][]int, len(m.Faces))
		numUVs = len(m.UVLayers[0])
	}

	for i, f := range m.Faces {
		n := len(f.Vertices)
		if n != 3 && n != 4 {
			return nil, fmt.Errorf("%w: face %d has %d vertices", ErrUnsupportedArity, i, n)
		}
		faceVerts[i] = make([]int, n)
		for j, fv := range f.Vertices {
			if fv.Vertex < 0 || fv.Vertex >= len(m.Vertices) {
				return nil, fmt.Errorf("%w: face %d references vertex %d of %d",
					mesh.ErrInvalidMesh, i, fv.Vertex, len(m.Vertices))
			}
			faceVerts[i][j] = fv.Vertex
		}
		if opts.UVs {
			faceUVs[i] = make([]int, n)
			for j, fv := range f.Vertices {
				if fv.UV < 0 || fv.UV >= numUVs {
					return nil, fmt.Errorf("%w: face %d references uv %d of %d",
						mesh.ErrInvalidMesh, i, fv.UV, numUVs)
				}
				faceUVs[i][j] = fv.UV
			}
		}
	}

	r := &Refiner{
		levels: []*level{buildBaseLevel(len(m.Vertices), numUVs, faceVerts, faceUVs)},
		uvs:    opts.UVs,
	}
	for range maxLevel {
		child, ref := refine(r.levels[len(r.levels)-1], opts.UVs)
		r.levels = append(r.levels, child)
		r.refinements = append(r.refinements, ref)
	}
	return r, nil
}

// MaxLevel returns the finest refined level.
func (r *Refiner) MaxLevel() int {
	return len(r.levels) - 1
}

// HasUVs reports whether the UV topology is refined.
func (r *Refiner) HasUVs() bool {
	return r.uvs
}

func (r *Refiner) level(lvl int) *level {
	if lvl < 0 || lvl >= len(r.levels) {
		panic(fmt.Sprintf("subd: level %d outside [0, %d]", lvl, r.MaxLevel()))
	}
	return r.levels[lvl]
}

// NumVertices returns the vertex count of level lvl.
func (r *Refiner) NumVertices(lvl int) int {
	return r.level(lvl).numVerts
}

// NumFaces returns the face count of level lvl.
func (r *Refiner) NumFaces(lvl int) int {
	return len(r.level(lvl).faceVerts)
}

// NumEdges returns the edge count of level lvl.
func (r *Refiner) NumEdges(lvl int) int {
	return len(r.level(lvl).edges)
}

// NumUVs returns the UV value count of level lvl, zero without UVs.
func (r *Refiner) NumUVs(lvl int) int {
	return r.level(lvl).numUVs
}

// FaceVertices returns the vertex ids of face f at level lvl.
func (r *Refiner) FaceVertices(lvl, f int) []int {
	return slices.Clone(r.level(lvl).faceVerts[f])
}

// FaceSize returns the corner count of face f at level lvl.
func (r *Refiner) FaceSize(lvl, f int) int {
	return len(r.level(lvl).faceVerts[f])
}

// FaceVertex returns the vertex id at corner j of face f at level lvl.
func (r *Refiner) FaceVertex(lvl, f, j int) int {
	return r.level(lvl).faceVerts[f][j]
}

// FaceUVs returns the UV value ids of face f at level lvl, nil without UVs.
func (r *Refiner) FaceUVs(lvl, f int) []int {
	l := r.level(lvl)
	if l.faceUVs == nil {
		return nil
	}
	return slices.Clone(l.faceUVs[f])
}

// FaceParent returns the level lvl-1 face that face f of level lvl was
// split from.
func (r *Refiner) FaceParent(lvl, f int) int {
	if lvl < 1 || lvl > r.MaxLevel() {
		panic(fmt.Sprintf("subd: no parent faces at level %d", lvl))
	}
	return r.refinements[lvl-1].faceParent[f]
}

// Stencils returns the table mapping level lvl-1 vertices to level lvl
// vertices.
func (r *Refiner) Stencils(lvl int) (*StencilTable, error) {
	if lvl < 1 || lvl > r.MaxLevel() {
		return nil, fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidLevel, lvl, r.MaxLevel())
	}
	return r.refinements[lvl-1].vertex, nil
}

// refine performs one uniform Catmull-Clark pass over parent.
func refine(p *level, uvs bool) (*level, *refinement) {
	nV, nF, nE := p.numVerts, len(p.faceVerts), len(p.edges)
	faceChild := func(f int) int { return nV + f }
	edgeChild := func(e int) int { return nV + nF + e }

	ref := &refinement{
		vertex:     vertexStencils(p),
		faceParent: make([]int, 0, nF*4),
	}

	// Face-interior child edges come first, then the two halves of each
	// parent edge.
	interiorBase := make([]int, nF)
	numInterior := 0
	for f, verts := range p.faceVerts {
		interiorBase[f] = numInterior
		numInterior += len(verts)
	}

	c := &level{
		numVerts: nV + nF + nE,
		edges:    make([][2]int, numInterior+2*nE),
	}
	for f, verts := range p.faceVerts {
		for j := range verts {
			c.edges[interiorBase[f]+j] = [2]int{faceChild(f), edgeChild(p.faceEdges[f][j])}
		}
	}
	// Both halves of a parent edge start at its edge point.
	for e, ev := range p.edges {
		c.edges[numInterior+2*e] = [2]int{edgeChild(e), ev[0]}
		c.edges[numInterior+2*e+1] = [2]int{edgeChild(e), ev[1]}
	}

	// halfEdge returns the half of parent edge e that touches vertex v.
	halfEdge := func(e, v int) int {
		if p.edges[e][0] == v {
			return numInterior + 2*e
		}
		return numInterior + 2*e + 1
	}

	var edgeUV [][]int
	if uvs {
		c.numUVs, edgeUV, ref.uv = uvStencils(p)
		c.faceUVs = make([][]int, 0, nF*4)
	}

	for f, verts := range p.faceVerts {
		n := len(verts)
		for j := range n {
			prev := (j + n - 1) % n
			ej, eprev := p.faceEdges[f][j], p.faceEdges[f][prev]
			v := verts[j]

			// Children of a quad keep the parent's orientation: child j
			// has the parent vertex at corner j. Children of a triangle
			// start at the parent vertex.
			rot := 0
			if n == 4 {
				rot = j
			}

			c.faceVerts = append(c.faceVerts, rotate(rot, v, edgeChild(ej), faceChild(f), edgeChild(eprev)))
			c.faceEdges = append(c.faceEdges, rotate(rot,
				halfEdge(ej, v),
				interiorBase[f]+j,
				interiorBase[f]+prev,
				halfEdge(eprev, v),
			))
			ref.faceParent = append(ref.faceParent, f)

			if uvs {
				c.faceUVs = append(c.faceUVs, rotate(rot,
					p.faceUVs[f][j],
					edgeUV[f][j],
					p.numUVs+f,
					edgeUV[f][prev],
				))
			}
		}
	}

	c.buildAdjacency()
	return c, ref
}

// rotate returns the quad (a, b, c, d) with a moved to corner r.
func rotate(r, a, b, c, d int) []int {
	out := make([]int, 4)
	for k, id := range [4]int{a, b, c, d} {
		out[(k+r)%4] = id
	}
	return out
}

// vertexStencils computes the Catmull-Clark weights of every child vertex in
// terms of parent vertices.
func vertexStencils(p *level) *StencilTable {
	nV, nF, nE := p.numVerts, len(p.faceVerts), len(p.edges)
	t := newStencilTable(nV, nV+nF+nE)
	var s stencil

	// addFacePoint adds weight times the centroid of face f.
	addFacePoint := func(f int, weight float64) {
		verts := p.faceVerts[f]
		w := weight / float64(len(verts))
		for _, v := range verts {
			s.add(v, w)
		}
	}

	for v := range nV {
		s.reset()
		kind, boundary := p.classify(v)
		switch kind {
		case vertexSmooth:
			n := float64(len(p.vertEdges[v]))
			s.add(v, (n-2)/n)
			for _, e := range p.vertEdges[v] {
				s.add(p.otherEnd(e, v), 1/(n*n))
			}
			for _, f := range p.vertFaces[v] {
				addFacePoint(f, 1/(n*n))
			}
		case vertexBoundary:
			s.add(v, 6.0/8.0)
			s.add(p.otherEnd(boundary[0], v), 1.0/8.0)
			s.add(p.otherEnd(boundary[1], v), 1.0/8.0)
		default:
			s.add(v, 1)
		}
		t.push(&s)
	}

	for f := range nF {
		s.reset()
		addFacePoint(f, 1)
		t.push(&s)
	}

	for e, ev := range p.edges {
		s.reset()
		if faces := p.edgeFaces[e]; len(faces) == 2 {
			s.add(ev[0], 0.25)
			s.add(ev[1], 0.25)
			addFacePoint(faces[0], 0.25)
			addFacePoint(faces[1], 0.25)
		} else {
			s.add(ev[0], 0.5)
			s.add(ev[1], 0.5)
		}
		t.push(&s)
	}
	return t
}

// uvStencils computes the linear face-varying refinement of the parent UV
// values. Parent values are copied first, then one value per face centroid,
// then one midpoint per distinct (edge, end values) pair in edge order.
// edgeUV[f][j] is the child value on edge j of face f.
func uvStencils(p *level) (numUVs int, edgeUV [][]int, t *StencilTable) {
	nF := len(p.faceVerts)
	t = newStencilTable(p.numUVs, p.numUVs+nF+len(p.edges))
	var s stencil

	for i := range p.numUVs {
		s.reset()
		s.add(i, 1)
		t.push(&s)
	}

	for f := range nF {
		s.reset()
		uvs := p.faceUVs[f]
		for _, uv := range uvs {
			s.add(uv, 1/float64(len(uvs)))
		}
		t.push(&s)
	}

	edgeUV = make([][]int, nF)
	for f, verts := range p.faceVerts {
		edgeUV[f] = make([]int, len(verts))
	}

	next := p.numUVs + nF
	type edgeValue struct{ edge, a, b int }
	ids := make(map[edgeValue]int)
	for e, ev := range p.edges {
		for _, f := range p.edgeFaces[e] {
			n := len(p.faceVerts[f])
			for j := range n {
				if p.faceEdges[f][j] != e {
					continue
				}
				a, b := p.faceUVs[f][j], p.faceUVs[f][(j+1)%n]
				if p.faceVerts[f][j] != ev[0] {
					a, b = b, a
				}
				key := edgeValue{e, a, b}
				id, ok := ids[key]
				if !ok {
					id = next
					next++
					ids[key] = id
					s.reset()
					s.add(a, 0.5)
					s.add(b, 0.5)
					t.push(&s)
				}
				edgeUV[f][j] = id
			}
		}
	}
	return next, edgeUV, t
}
