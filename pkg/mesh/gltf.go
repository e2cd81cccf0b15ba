package mesh

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"path/filepath"
	"slices"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/taigrr/dhdmgen/pkg/math3d"
)

// LoadGLB loads a binary glTF (.glb) file. The triangle primitives of every
// mesh instanced by the default scene are merged into one Mesh, placed by
// their node transforms; positions are then divided by scale. Files
// without a scene contribute each mesh once, untransformed. TEXCOORD_0
// becomes a single UV layer sharing the vertex indices.
//
// Skinned primitives contribute vertex groups: one group per joint node of
// the skin, named after the node, with weights read from every
// JOINTS_n/WEIGHTS_n set. A joint slot outside the skin's joint list fails
// the load.
func LoadGLB(path string, scale float64) (*Mesh, error) {
	if scale == 0 {
		scale = 1
	}
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	l := &glbLoader{
		doc:    doc,
		m:      NewMesh(filepath.Base(path)),
		scale:  scale,
		groups: make(map[int]int),
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("load glb %s: %w", path, err)
	}

	m := l.m
	// UVs are only kept when every primitive provided them.
	if len(l.uvs) == len(m.Vertices) && len(l.uvs) > 0 {
		m.UsesUVs = true
		m.UVLayers = [][]UV{l.uvs}
	}
	if len(m.VGroupNames) > 0 {
		m.UsesVGroups = true
		m.VWeights = l.weights
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("load glb %s: %w", path, err)
	}
	return m, nil
}

type glbLoader struct {
	doc     *gltf.Document
	m       *Mesh
	scale   float64
	uvs     []UV
	weights []VertexWeights // one entry per loaded vertex
	groups  map[int]int     // joint node -> vertex group
}

func (l *glbLoader) load() error {
	roots := sceneRoots(l.doc)
	if roots == nil {
		var skin *gltf.Skin
		if len(l.doc.Skins) == 1 {
			skin = l.doc.Skins[0]
		}
		for i := range l.doc.Meshes {
			if err := l.addMesh(i, math3d.Identity(), skin); err != nil {
				return err
			}
		}
		return nil
	}

	visited := make([]bool, len(l.doc.Nodes))
	var walk func(idx int, parent math3d.Mat4) error
	walk = func(idx int, parent math3d.Mat4) error {
		if idx < 0 || idx >= len(l.doc.Nodes) {
			return fmt.Errorf("node index %d out of range", idx)
		}
		if visited[idx] {
			return fmt.Errorf("node %d is reachable twice", idx)
		}
		visited[idx] = true

		n := l.doc.Nodes[idx]
		xf := parent.Mul(nodeMatrix(n))
		if n.Mesh != nil {
			meshXF := xf
			var skin *gltf.Skin
			if n.Skin != nil {
				if *n.Skin < 0 || *n.Skin >= len(l.doc.Skins) {
					return fmt.Errorf("skin index %d out of range", *n.Skin)
				}
				skin = l.doc.Skins[*n.Skin]
				// A skinned mesh is posed by its joints, not by its node.
				meshXF = math3d.Identity()
			}
			if err := l.addMesh(*n.Mesh, meshXF, skin); err != nil {
				return err
			}
		}
		for _, c := range n.Children {
			if err := walk(c, xf); err != nil {
				return err
			}
		}
		return nil
	}
	for _, idx := range roots {
		if err := walk(idx, math3d.Identity()); err != nil {
			return err
		}
	}
	return nil
}

// sceneRoots returns the root nodes of the default scene, or nil when the
// document has no usable scene.
func sceneRoots(doc *gltf.Document) []int {
	scene := 0
	if doc.Scene != nil {
		scene = *doc.Scene
	}
	if scene < 0 || scene >= len(doc.Scenes) || len(doc.Scenes[scene].Nodes) == 0 {
		return nil
	}
	return doc.Scenes[scene].Nodes
}

// nodeMatrix returns the local transform of n. A matrix other than the
// identity wins over TRS properties; unset properties are treated as their
// glTF defaults.
func nodeMatrix(n *gltf.Node) math3d.Mat4 {
	if mat := math3d.Mat4(n.Matrix); mat != (math3d.Mat4{}) && mat != math3d.Identity() {
		return mat
	}
	t := math3d.V3(n.Translation[0], n.Translation[1], n.Translation[2])
	s := math3d.V3(n.Scale[0], n.Scale[1], n.Scale[2])
	if s == (math3d.Vec3{}) {
		s = math3d.V3(1, 1, 1)
	}
	return math3d.TRS(t, n.Rotation, s)
}

// addMesh appends the geometry of one glTF mesh transformed by xf.
func (l *glbLoader) addMesh(meshIdx int, xf math3d.Mat4, skin *gltf.Skin) error {
	if meshIdx < 0 || meshIdx >= len(l.doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", meshIdx)
	}
	gm := l.doc.Meshes[meshIdx]
	m := l.m
	for _, prim := range gm.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			// Lines and points carry no faces.
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3Accessor(l.doc, posIdx)
		if err != nil {
			return fmt.Errorf("mesh %q: read positions: %w", gm.Name, err)
		}

		if uvIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok && len(l.uvs) == len(m.Vertices) {
			texcoords, err := readVec2Accessor(l.doc, uvIdx)
			if err != nil {
				return fmt.Errorf("mesh %q: read uvs: %w", gm.Name, err)
			}
			for _, t := range texcoords {
				// glTF puts V=0 at the top.
				l.uvs = append(l.uvs, UV{Pos: math3d.V2(t.X, 1-t.Y)})
			}
		}

		weights, err := l.readWeights(prim, skin, len(positions))
		if err != nil {
			return fmt.Errorf("mesh %q: %w", gm.Name, err)
		}
		l.weights = append(l.weights, weights...)

		base := len(m.Vertices)
		for _, p := range positions {
			m.Vertices = append(m.Vertices, Vertex{Pos: xf.MulVec3(p).Div(l.scale)})
		}

		var indices []int
		if prim.Indices != nil {
			indices, err = readIndices(l.doc, *prim.Indices)
			if err != nil {
				return fmt.Errorf("mesh %q: read indices: %w", gm.Name, err)
			}
		} else {
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}

		for i := 0; i+2 < len(indices); i += 3 {
			f := Face{Vertices: make([]FaceVertex, 3)}
			for j := range 3 {
				id := base + indices[i+j]
				f.Vertices[j] = FaceVertex{Vertex: id, UV: id}
			}
			m.Faces = append(m.Faces, f)
		}
	}
	return nil
}

// readWeights returns one VertexWeights per vertex of prim. Vertices of an
// unskinned primitive get nil entries.
func (l *glbLoader) readWeights(prim *gltf.Primitive, skin *gltf.Skin, count int) ([]VertexWeights, error) {
	out := make([]VertexWeights, count)
	for set := 0; ; set++ {
		jointsKey, weightsKey := fmt.Sprintf("JOINTS_%d", set), fmt.Sprintf("WEIGHTS_%d", set)
		jIdx, hasJoints := prim.Attributes[jointsKey]
		wIdx, hasWeights := prim.Attributes[weightsKey]
		if !hasJoints && !hasWeights {
			return out, nil
		}
		if hasJoints != hasWeights {
			return nil, fmt.Errorf("%w: %s and %s must be paired", ErrInvalidMesh, jointsKey, weightsKey)
		}
		if skin == nil {
			return nil, fmt.Errorf("%w: %s on a primitive without a skin", ErrInvalidMesh, jointsKey)
		}
		if err := l.addSkin(skin); err != nil {
			return nil, err
		}

		joints, err := readVec4Accessor(l.doc, jIdx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", jointsKey, err)
		}
		weights, err := readVec4Accessor(l.doc, wIdx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", weightsKey, err)
		}
		if len(joints) != count || len(weights) != count {
			return nil, fmt.Errorf("%w: %s/%s hold %d/%d entries for %d vertices",
				ErrInvalidMesh, jointsKey, weightsKey, len(joints), len(weights), count)
		}

		for i := range count {
			for k := range 4 {
				w := weights[i][k]
				if w == 0 {
					continue
				}
				slot := int(joints[i][k])
				if slot >= len(skin.Joints) {
					return nil, fmt.Errorf("%w: vertex %d references joint %d of %d",
						ErrInvalidMesh, i, slot, len(skin.Joints))
				}
				if out[i] == nil {
					out[i] = VertexWeights{}
				}
				out[i][l.groups[skin.Joints[slot]]] += w
			}
		}
	}
}

// addSkin registers a vertex group for every joint of skin not seen yet,
// in joint order.
func (l *glbLoader) addSkin(skin *gltf.Skin) error {
	for _, node := range skin.Joints {
		if node < 0 || node >= len(l.doc.Nodes) {
			return fmt.Errorf("%w: joint node %d out of range", ErrInvalidMesh, node)
		}
		if _, ok := l.groups[node]; ok {
			continue
		}
		name := l.doc.Nodes[node].Name
		if name == "" {
			name = fmt.Sprintf("joint%d", node)
		}
		l.groups[node] = len(l.m.VGroupNames)
		l.m.VGroupNames = append(l.m.VGroupNames, name)
	}
	return nil
}

// readVec3Accessor reads VEC3 float data from a glTF accessor.
func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec3 {
		return nil, fmt.Errorf("expected VEC3, got %v", accessor.Type)
	}
	floats, err := readFloatAccessor(doc, accessor, 3)
	if err != nil {
		return nil, err
	}

	result := make([]math3d.Vec3, accessor.Count)
	for i := range result {
		result[i] = math3d.V3(floats[i*3], floats[i*3+1], floats[i*3+2])
	}
	return result, nil
}

// readVec2Accessor reads VEC2 float data from a glTF accessor.
func readVec2Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec2, error) {
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec2 {
		return nil, fmt.Errorf("expected VEC2, got %v", accessor.Type)
	}
	floats, err := readFloatAccessor(doc, accessor, 2)
	if err != nil {
		return nil, err
	}

	result := make([]math3d.Vec2, accessor.Count)
	for i := range result {
		result[i] = math3d.V2(floats[i*2], floats[i*2+1])
	}
	return result, nil
}

// readFloatAccessor returns count*width float32 components widened to
// float64.
func readFloatAccessor(doc *gltf.Document, accessor *gltf.Accessor, width int) ([]float64, error) {
	if accessor.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("unsupported component type %v", accessor.ComponentType)
	}
	data, start, stride, err := accessorBytes(doc, accessor, width*4)
	if err != nil {
		return nil, err
	}

	out := make([]float64, accessor.Count*width)
	for i := range accessor.Count {
		offset := start + i*stride
		if offset+width*4 > len(data) {
			return nil, fmt.Errorf("accessor overruns buffer")
		}
		for j := range width {
			bits := binary.LittleEndian.Uint32(data[offset+j*4:])
			out[i*width+j] = float64(math.Float32frombits(bits))
		}
	}
	return out, nil
}

// readIndices reads scalar index data from a glTF accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("expected SCALAR indices, got %v", accessor.Type)
	}

	var size int
	switch accessor.ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("unexpected index type: %v", accessor.ComponentType)
	}

	data, start, stride, err := accessorBytes(doc, accessor, size)
	if err != nil {
		return nil, err
	}

	result := make([]int, accessor.Count)
	for i := range result {
		offset := start + i*stride
		if offset+size > len(data) {
			return nil, fmt.Errorf("accessor overruns buffer")
		}
		switch size {
		case 1:
			result[i] = int(data[offset])
		case 2:
			result[i] = int(binary.LittleEndian.Uint16(data[offset:]))
		case 4:
			result[i] = int(binary.LittleEndian.Uint32(data[offset:]))
		}
	}
	return result, nil
}

// readVec4Accessor reads VEC4 data of float, unsigned byte or unsigned
// short components. Normalized integer components are mapped to [0, 1].
func readVec4Accessor(doc *gltf.Document, accessorIdx int) ([][4]float64, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec4 {
		return nil, fmt.Errorf("expected VEC4, got %v", accessor.Type)
	}

	var size int
	var unit float64
	switch accessor.ComponentType {
	case gltf.ComponentFloat:
		size, unit = 4, 1
	case gltf.ComponentUbyte:
		size, unit = 1, math.MaxUint8
	case gltf.ComponentUshort:
		size, unit = 2, math.MaxUint16
	default:
		return nil, fmt.Errorf("unsupported component type %v", accessor.ComponentType)
	}
	if !accessor.Normalized {
		unit = 1
	}

	data, start, stride, err := accessorBytes(doc, accessor, 4*size)
	if err != nil {
		return nil, err
	}
	out := make([][4]float64, accessor.Count)
	for i := range out {
		offset := start + i*stride
		if offset+4*size > len(data) {
			return nil, fmt.Errorf("accessor overruns buffer")
		}
		for k := range 4 {
			p := data[offset+k*size:]
			var v float64
			switch size {
			case 1:
				v = float64(p[0])
			case 2:
				v = float64(binary.LittleEndian.Uint16(p))
			case 4:
				v = float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
			}
			out[i][k] = v / unit
		}
	}
	return out, nil
}

// accessorBytes resolves the buffer backing an accessor, returning the data,
// the first element offset and the element stride.
func accessorBytes(doc *gltf.Document, accessor *gltf.Accessor, elemSize int) ([]byte, int, int, error) {
	if accessor.BufferView == nil {
		return nil, 0, 0, fmt.Errorf("accessor has no buffer view")
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]
	if buffer.Data == nil {
		return nil, 0, 0, fmt.Errorf("buffer has no data")
	}

	stride := bufferView.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	return buffer.Data, bufferView.ByteOffset + accessor.ByteOffset, stride, nil
}

// SaveGLB writes the mesh as a single-primitive binary glTF. Quads are split
// into triangles. Face-varying UVs are written by splitting vertices at UV
// seams. Positions are multiplied by scale. Vertex groups become a skin
// with one joint node per group.
func (m *Mesh) SaveGLB(path string, scale float64) error {
	if scale == 0 {
		scale = 1
	}

	tri := m.Clone()
	tri.Triangulate()

	type corner struct{ v, uv int }
	remap := make(map[corner]uint32, len(tri.Vertices))
	var positions [][3]float32
	var texcoords [][2]float32
	var vertOf []int
	indices := make([]uint32, 0, len(tri.Faces)*3)

	for _, f := range tri.Faces {
		for _, fv := range f.Vertices {
			key := corner{v: fv.Vertex, uv: -1}
			if tri.UsesUVs {
				key.uv = fv.UV
			}
			id, ok := remap[key]
			if !ok {
				id = uint32(len(positions))
				remap[key] = id
				vertOf = append(vertOf, fv.Vertex)
				positions = append(positions, tri.Vertices[fv.Vertex].Pos.Scale(scale).Float32())
				if tri.UsesUVs {
					uv := tri.UVLayers[0][fv.UV].Pos
					texcoords = append(texcoords, [2]float32{float32(uv.X), float32(1 - uv.Y)})
				}
			}
			indices = append(indices, id)
		}
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "dhdmgen"

	prim := &gltf.Primitive{
		Attributes: map[string]int{
			gltf.POSITION: modeler.WritePosition(doc, positions),
		},
		Indices: gltf.Index(modeler.WriteIndices(doc, indices)),
	}
	if tri.UsesUVs {
		prim.Attributes[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, texcoords)
	}

	doc.Meshes = []*gltf.Mesh{{Name: m.Name, Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Name: m.Name, Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	if tri.UsesVGroups {
		if len(tri.VGroupNames) > math.MaxUint16+1 {
			return fmt.Errorf("save glb %s: %d vertex groups exceed the joint limit", path, len(tri.VGroupNames))
		}
		skin := writeSkin(doc, prim, tri, vertOf)
		doc.Nodes[0].Skin = gltf.Index(skin)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, doc.Skins[skin].Joints...)
	}

	if err := gltf.SaveBinary(doc, path); err != nil {
		return fmt.Errorf("save glb %s: %w", path, err)
	}
	return nil
}

// writeSkin stores the vertex weights of m as JOINTS_n/WEIGHTS_n sets on
// prim, four influences per set, and adds one joint node per vertex group
// plus the skin binding them. vertOf maps written vertices to vertices of m.
func writeSkin(doc *gltf.Document, prim *gltf.Primitive, m *Mesh, vertOf []int) int {
	groups := make([][]int, len(vertOf))
	sets := 1
	for i, v := range vertOf {
		for _, g := range slices.Sorted(maps.Keys(m.VWeights[v])) {
			if m.VWeights[v][g] != 0 {
				groups[i] = append(groups[i], g)
			}
		}
		sets = max(sets, (len(groups[i])+3)/4)
	}

	for set := range sets {
		joints := make([][4]uint16, len(vertOf))
		weights := make([][4]float32, len(vertOf))
		for i, v := range vertOf {
			for k := range 4 {
				slot := set*4 + k
				if slot >= len(groups[i]) {
					break
				}
				g := groups[i][slot]
				joints[i][k] = uint16(g)
				weights[i][k] = float32(m.VWeights[v][g])
			}
		}
		prim.Attributes[fmt.Sprintf("JOINTS_%d", set)] = modeler.WriteJoints(doc, joints)
		prim.Attributes[fmt.Sprintf("WEIGHTS_%d", set)] = modeler.WriteWeights(doc, weights)
	}

	skin := &gltf.Skin{Name: m.Name}
	for _, name := range m.VGroupNames {
		skin.Joints = append(skin.Joints, len(doc.Nodes))
		doc.Nodes = append(doc.Nodes, &gltf.Node{Name: name})
	}
	doc.Skins = append(doc.Skins, skin)
	return len(doc.Skins) - 1
}
