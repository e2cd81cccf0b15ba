package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/taigrr/dhdmgen/pkg/fileio"
	"github.com/taigrr/dhdmgen/pkg/math3d"
)

// OBJOptions selects which channels ReadOBJ keeps.
type OBJOptions struct {
	// Scale divides every position on load. Zero means 1.
	Scale float64

	// LoadUVs reads vt records and the uv index of each face corner. A file
	// without vt records or without corner uv indices loads without UVs.
	LoadUVs bool

	// LoadMaterials assigns material ids from usemtl statements.
	LoadMaterials bool

	// FaceIDAsMaterial stores each face's own index in Face.MatID when
	// materials are not loaded. Displacement extraction uses this to track
	// which base face a refined face descends from.
	FaceIDAsMaterial bool
}

// LoadOBJ reads a Wavefront OBJ file.
func LoadOBJ(path string, opts OBJOptions) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obj: %w", err)
	}
	defer f.Close()

	m, err := ReadOBJ(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read obj %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// ReadOBJ parses a single-object OBJ stream. Faces must be triangles or
// quads; normals and other statements are ignored.
func ReadOBJ(r io.Reader, opts OBJOptions) (*Mesh, error) {
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	m := NewMesh("")
	var uvs []UV
	materials := make(map[string]int)
	currMat := -1
	hasObject := false
	withUV, withoutUV := 0, 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "o":
			if hasObject {
				return nil, fmt.Errorf("%w: line %d: obj file contains multiple meshes", ErrInvalidMesh, lineNo)
			}
			hasObject = true
			m.Name = strings.TrimSpace(strings.TrimPrefix(line, "o"))

		case "v":
			vals, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid vertex %q: %w", lineNo, line, err)
			}
			m.Vertices = append(m.Vertices, Vertex{Pos: math3d.V3(vals[0], vals[1], vals[2]).Div(scale)})

		case "vt":
			if !opts.LoadUVs {
				continue
			}
			vals, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid texture coordinate %q: %w", lineNo, line, err)
			}
			uvs = append(uvs, UV{Pos: math3d.V2(vals[0], vals[1])})

		case "f":
			corners := fields[1:]
			if len(corners) != 3 && len(corners) != 4 {
				return nil, fmt.Errorf("%w: line %d: invalid face %q", ErrInvalidMesh, lineNo, line)
			}
			face := Face{Vertices: make([]FaceVertex, len(corners))}
			for i, c := range corners {
				fv, hasUV, err := parseCorner(c, opts.LoadUVs)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid face %q: %w", lineNo, line, err)
				}
				if hasUV {
					withUV++
				} else {
					withoutUV++
				}
				face.Vertices[i] = fv
			}
			switch {
			case opts.LoadMaterials:
				face.MatID = currMat
			case opts.FaceIDAsMaterial:
				face.MatID = len(m.Faces)
			}
			m.Faces = append(m.Faces, face)

		case "usemtl":
			if !opts.LoadMaterials {
				continue
			}
			name := strings.TrimSpace(strings.TrimPrefix(line, "usemtl"))
			id, ok := materials[name]
			if !ok {
				id = len(m.MaterialNames)
				m.MaterialNames = append(m.MaterialNames, name)
				materials[name] = id
			}
			currMat = id
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan obj: %w", err)
	}

	if opts.LoadUVs && withUV > 0 && withoutUV > 0 {
		return nil, fmt.Errorf("%w: %d face corners have uv indices, %d do not",
			ErrInvalidMesh, withUV, withoutUV)
	}
	if opts.LoadUVs && withUV > 0 {
		m.UsesUVs = true
		m.UVLayers = [][]UV{uvs}
	} else {
		for i := range m.Faces {
			for j := range m.Faces[i].Vertices {
				m.Faces[i].Vertices[j].UV = 0
			}
		}
	}
	if opts.LoadMaterials {
		// Faces before the first usemtl, or in a file without one, get
		// material 0.
		m.UsesMaterials = len(m.MaterialNames) > 0
		for i := range m.Faces {
			if m.Faces[i].MatID < 0 {
				m.Faces[i].MatID = 0
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseCorner parses "v", "v/vt", "v//vn" or "v/vt/vn" into 0-based ids.
// hasUV reports whether the corner carries a uv index; it is only parsed
// when wantUV is set.
func parseCorner(s string, wantUV bool) (fv FaceVertex, hasUV bool, err error) {
	parts := strings.Split(s, "/")
	v, err := strconv.Atoi(parts[0])
	if err != nil || v < 1 {
		return FaceVertex{}, false, fmt.Errorf("%w: vertex index %q", ErrInvalidMesh, parts[0])
	}
	fv = FaceVertex{Vertex: v - 1}
	if !wantUV || len(parts) < 2 || parts[1] == "" {
		return fv, false, nil
	}
	uv, err := strconv.Atoi(parts[1])
	if err != nil || uv < 1 {
		return FaceVertex{}, false, fmt.Errorf("%w: uv index %q", ErrInvalidMesh, parts[1])
	}
	fv.UV = uv - 1
	return fv, true, nil
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("%w: want %d values, got %d", ErrInvalidMesh, n, len(fields))
	}
	out := make([]float64, n)
	for i := range n {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// SaveOBJ writes the mesh to path as OBJ with positions multiplied by scale.
func (m *Mesh) SaveOBJ(path string, scale float64) error {
	if err := fileio.WriteAtomic(path, func(w io.Writer) error {
		return m.WriteOBJ(w, scale)
	}); err != nil {
		return fmt.Errorf("save obj: %w", err)
	}
	return nil
}

// WriteOBJ writes positions as float32, the first UV layer, and faces. With
// materials enabled, faces are grouped by material under usemtl statements.
func (m *Mesh) WriteOBJ(w io.Writer, scale float64) error {
	if scale == 0 {
		scale = 1
	}
	bw := bufio.NewWriter(w)

	if m.Name != "" {
		fmt.Fprintf(bw, "o %s\n", m.Name)
	}
	for _, v := range m.Vertices {
		p := v.Pos.Scale(scale).Float32()
		fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(p[0]), formatFloat(p[1]), formatFloat(p[2]))
	}
	if m.UsesUVs && len(m.UVLayers) > 0 {
		for _, uv := range m.UVLayers[0] {
			t := uv.Pos.Float32()
			fmt.Fprintf(bw, "vt %s %s\n", formatFloat(t[0]), formatFloat(t[1]))
		}
	}

	if !m.UsesMaterials {
		for _, f := range m.Faces {
			m.writeOBJFace(bw, f)
		}
		return bw.Flush()
	}

	var groups [][]Face
	for _, f := range m.Faces {
		for f.MatID >= len(groups) {
			groups = append(groups, nil)
		}
		groups[f.MatID] = append(groups[f.MatID], f)
	}
	for i, faces := range groups {
		if i < len(m.MaterialNames) {
			fmt.Fprintf(bw, "usemtl %s\n", m.MaterialNames[i])
		} else {
			fmt.Fprintf(bw, "usemtl SLOT_%d\n", i)
		}
		for _, f := range faces {
			m.writeOBJFace(bw, f)
		}
	}
	return bw.Flush()
}

func (m *Mesh) writeOBJFace(w io.Writer, f Face) {
	var sb strings.Builder
	sb.WriteString("f")
	for _, fv := range f.Vertices {
		if m.UsesUVs {
			fmt.Fprintf(&sb, " %d/%d", fv.Vertex+1, fv.UV+1)
		} else {
			fmt.Fprintf(&sb, " %d", fv.Vertex+1)
		}
	}
	sb.WriteByte('\n')
	io.WriteString(w, sb.String())
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
