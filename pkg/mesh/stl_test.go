package mesh

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTriangles(t *testing.T) {
	tris := cube().Triangles(2)
	if len(tris) != 12 {
		t.Fatalf("Expected 12 triangles, got %d", len(tris))
	}
	if v := tris[0][2]; v.X != 2 || v.Y != 2 || v.Z != 0 {
		t.Errorf("scaled corner = %v, want (2,2,0)", v)
	}
}

func TestSaveSTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cube.stl")
	if err := cube().SaveSTL(path, 1); err != nil {
		t.Fatalf("SaveSTL failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	// Binary STL: 80 byte header, uint32 count, 50 bytes per triangle.
	if want := int64(84 + 12*50); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}
}
