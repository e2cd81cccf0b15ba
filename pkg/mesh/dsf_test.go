package mesh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taigrr/dhdmgen/pkg/fileio"
	"github.com/taigrr/dhdmgen/pkg/math3d"
)

const dsfGeometryJSON = `{
  "geometry_library": [{
    "id": "Body",
    "vertices": {"values": [[0,0,0],[1,0,0],[1,0,-1],[0,0,-1]]},
    "polylist": {"values": [[0,0,0,1,2,3]]}
  }]
}`

const dsfUVJSON = `{
  "uv_set_library": [{
    "uvs": {"values": [[0,0],[1,0],[1,1],[0,1],[0.5,0.5]]},
    "polygon_vertex_indices": [[0,3,4]]
  }]
}`

func TestLoadDSF(t *testing.T) {
	dir := t.TempDir()
	geoPath := filepath.Join(dir, "body.dsf")
	uvPath := filepath.Join(dir, "uv.dsf")
	if err := os.WriteFile(geoPath, []byte(dsfGeometryJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	// The uv file is stored compressed, as the content tools ship it.
	var uvDoc any
	if err := fileio.DecodeJSON(strings.NewReader(dsfUVJSON), &uvDoc); err != nil {
		t.Fatal(err)
	}
	if err := fileio.SaveJSON(uvPath, uvDoc, true); err != nil {
		t.Fatal(err)
	}

	m, err := LoadDSF(geoPath, uvPath, 1)
	if err != nil {
		t.Fatalf("LoadDSF failed: %v", err)
	}
	if m.Name != "Body" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.VertexCount() != 4 || m.FaceCount() != 1 {
		t.Fatalf("got %d vertices, %d faces", m.VertexCount(), m.FaceCount())
	}

	// Y-up (x, y, z) becomes Z-up (x, -z, y).
	if p := m.Vertices[2].Pos; !p.Approx(math3d.V3(1, 1, 0), 1e-12) {
		t.Errorf("vertex 2 = %v, want (1,1,0)", p)
	}

	corners := m.Faces[0].Vertices
	if corners[0].UV != 0 || corners[2].UV != 2 {
		t.Errorf("default uv ids = %d, %d", corners[0].UV, corners[2].UV)
	}
	if corners[3].UV != 4 {
		t.Errorf("override uv id = %d, want 4", corners[3].UV)
	}
}

func TestLoadDSFMissingLibrary(t *testing.T) {
	dir := t.TempDir()
	geoPath := filepath.Join(dir, "body.dsf")
	uvPath := filepath.Join(dir, "uv.dsf")
	os.WriteFile(geoPath, []byte(`{}`), 0o644)
	os.WriteFile(uvPath, []byte(dsfUVJSON), 0o644)

	if _, err := LoadDSF(geoPath, uvPath, 1); err == nil {
		t.Error("Expected error for missing geometry_library")
	}
}
