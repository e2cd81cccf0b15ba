package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/taigrr/dhdmgen/pkg/logging"
	"github.com/taigrr/dhdmgen/pkg/mesh"
)

// ErrUnsupportedFormat reports a mesh path with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported mesh format")

// MeshSource names a mesh on disk. UVSet is only used by DSF geometry,
// whose UVs live in a separate file.
type MeshSource struct {
	Path  string
	UVSet string
}

// loadMesh reads a mesh by extension. faceIDs stores each face's index as
// its material id and skips UVs and materials.
func loadMesh(src MeshSource, scale float64, faceIDs bool) (*mesh.Mesh, error) {
	switch ext := strings.ToLower(filepath.Ext(src.Path)); ext {
	case ".obj":
		opts := mesh.OBJOptions{Scale: scale, LoadUVs: true, LoadMaterials: true}
		if faceIDs {
			opts = mesh.OBJOptions{Scale: scale, FaceIDAsMaterial: true}
		}
		return mesh.LoadOBJ(src.Path, opts)
	case ".glb", ".gltf":
		return mesh.LoadGLB(src.Path, scale)
	case ".dsf", ".duf":
		if src.UVSet == "" {
			return nil, fmt.Errorf("%w: %s needs a uv set file", ErrUnsupportedFormat, src.Path)
		}
		return mesh.LoadDSF(src.Path, src.UVSet, scale)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// loadPolygonMesh is loadMesh for inputs whose face layout must survive:
// displacement bases, hd meshes and their references, and matching bases.
// glTF only stores triangles, so a quad would come back as two faces and
// the subdivision level would be off by one.
func loadPolygonMesh(src MeshSource, scale float64) (*mesh.Mesh, error) {
	switch ext := strings.ToLower(filepath.Ext(src.Path)); ext {
	case ".glb", ".gltf":
		return nil, fmt.Errorf("%w: %s stores triangles only, use obj or dsf", ErrUnsupportedFormat, src.Path)
	}
	return loadMesh(src, scale, true)
}

// saveMesh writes m by extension.
func saveMesh(m *mesh.Mesh, path string, scale float64) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		return m.SaveOBJ(path, scale)
	case ".glb":
		return m.SaveGLB(path, scale)
	case ".stl":
		return m.SaveSTL(path, scale)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// logWritten reports the size of a freshly written file.
func logWritten(log logging.Logger, path string) {
	info, err := os.Stat(path)
	if err != nil {
		log.Warningf("stat %s: %v", path, err)
		return
	}
	log.Infof("wrote %s (%s)", path, humanize.Bytes(uint64(info.Size())))
}
