package subd

// level is the connectivity of one refinement level. Vertex, edge and face
// ids are dense indices into the level's arrays.
type level struct {
	numVerts int
	numUVs   int

	faceVerts [][]int
	faceUVs   [][]int // nil when UVs are not refined
	faceEdges [][]int // faceEdges[f][j] joins corner j and corner j+1

	edges [][2]int

	edgeFaces [][]int
	vertEdges [][]int
	vertFaces [][]int
}

// buildBaseLevel assembles level 0 from face corner lists. Edges are
// numbered in the order face traversal first meets them.
func buildBaseLevel(numVerts, numUVs int, faceVerts, faceUVs [][]int) *level {
	l := &level{
		numVerts:  numVerts,
		numUVs:    numUVs,
		faceVerts: faceVerts,
		faceUVs:   faceUVs,
		faceEdges: make([][]int, len(faceVerts)),
	}

	ids := make(map[[2]int]int, len(faceVerts)*2)
	for f, verts := range faceVerts {
		n := len(verts)
		l.faceEdges[f] = make([]int, n)
		for j := range n {
			a, b := verts[j], verts[(j+1)%n]
			key := [2]int{min(a, b), max(a, b)}
			id, ok := ids[key]
			if !ok {
				id = len(l.edges)
				ids[key] = id
				l.edges = append(l.edges, [2]int{a, b})
			}
			l.faceEdges[f][j] = id
		}
	}

	l.buildAdjacency()
	return l
}

// buildAdjacency derives the edge-face, vertex-edge and vertex-face
// relations from faceVerts, faceEdges and edges.
func (l *level) buildAdjacency() {
	l.edgeFaces = make([][]int, len(l.edges))
	l.vertEdges = make([][]int, l.numVerts)
	l.vertFaces = make([][]int, l.numVerts)

	for f, edges := range l.faceEdges {
		for _, e := range edges {
			l.edgeFaces[e] = append(l.edgeFaces[e], f)
		}
		for _, v := range l.faceVerts[f] {
			l.vertFaces[v] = append(l.vertFaces[v], f)
		}
	}
	for e, ev := range l.edges {
		l.vertEdges[ev[0]] = append(l.vertEdges[ev[0]], e)
		l.vertEdges[ev[1]] = append(l.vertEdges[ev[1]], e)
	}
}

// otherEnd returns the endpoint of edge e that is not v.
func (l *level) otherEnd(e, v int) int {
	if l.edges[e][0] == v {
		return l.edges[e][1]
	}
	return l.edges[e][0]
}

// vertexKind classifies a vertex for the Catmull-Clark vertex rule.
type vertexKind int

const (
	vertexSmooth vertexKind = iota
	vertexBoundary
	vertexFixed // non-manifold, isolated or degenerate valence
)

// classify returns the rule for vertex v and, for boundary vertices, the two
// boundary edges.
func (l *level) classify(v int) (vertexKind, [2]int) {
	edges := l.vertEdges[v]
	if len(edges) == 0 || len(l.vertFaces[v]) == 0 {
		return vertexFixed, [2]int{}
	}

	var boundary []int
	for _, e := range edges {
		switch len(l.edgeFaces[e]) {
		case 1:
			boundary = append(boundary, e)
		case 2:
		default:
			return vertexFixed, [2]int{}
		}
	}

	switch len(boundary) {
	case 0:
		if len(edges) < 3 || len(edges) != len(l.vertFaces[v]) {
			return vertexFixed, [2]int{}
		}
		return vertexSmooth, [2]int{}
	case 2:
		return vertexBoundary, [2]int{boundary[0], boundary[1]}
	default:
		return vertexFixed, [2]int{}
	}
}
