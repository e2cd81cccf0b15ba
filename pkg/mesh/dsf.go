package mesh

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/taigrr/dhdmgen/pkg/fileio"
	"github.com/taigrr/dhdmgen/pkg/math3d"
)

// dsfGeometry is the subset of a DSF geometry_library file that is read.
type dsfGeometry struct {
	GeometryLibrary []struct {
		ID       string `json:"id"`
		Vertices struct {
			Values [][3]float64 `json:"values"`
		} `json:"vertices"`
		Polylist struct {
			Values [][]int `json:"values"`
		} `json:"polylist"`
	} `json:"geometry_library"`
}

// dsfUVSet is the subset of a DSF uv_set_library file that is read.
type dsfUVSet struct {
	UVSetLibrary []struct {
		UVs struct {
			Values [][2]float64 `json:"values"`
		} `json:"uvs"`
		PolygonVertexIndices [][3]int `json:"polygon_vertex_indices"`
	} `json:"uv_set_library"`
}

// LoadDSF builds a mesh from a DSF geometry file and its UV set file. Both
// may be gzip-compressed. Positions are converted from Y-up to Z-up and
// divided by scale. Each polylist entry is [group, material, v0, v1, ...];
// polygon_vertex_indices entries [face, vertex, uv] override the UV of one
// corner, all other corners use the vertex index as UV index.
func LoadDSF(geoPath, uvPath string, scale float64) (*Mesh, error) {
	if scale == 0 {
		scale = 1
	}

	var uvDoc dsfUVSet
	if err := fileio.LoadJSON(uvPath, &uvDoc); err != nil {
		return nil, fmt.Errorf("load dsf uvs: %w", err)
	}
	if len(uvDoc.UVSetLibrary) == 0 {
		return nil, fmt.Errorf("%w: %s has no uv_set_library entry", ErrInvalidMesh, uvPath)
	}
	uvSet := uvDoc.UVSetLibrary[0]

	var geoDoc dsfGeometry
	if err := fileio.LoadJSON(geoPath, &geoDoc); err != nil {
		return nil, fmt.Errorf("load dsf geometry: %w", err)
	}
	if len(geoDoc.GeometryLibrary) == 0 {
		return nil, fmt.Errorf("%w: %s has no geometry_library entry", ErrInvalidMesh, geoPath)
	}
	geo := geoDoc.GeometryLibrary[0]

	name := geo.ID
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(geoPath), filepath.Ext(geoPath))
	}
	m := NewMesh(name)

	uvs := make([]UV, len(uvSet.UVs.Values))
	for i, uv := range uvSet.UVs.Values {
		uvs[i] = UV{Pos: math3d.V2(uv[0], uv[1])}
	}
	m.UsesUVs = true
	m.UVLayers = [][]UV{uvs}

	type corner struct{ face, vertex int }
	overrides := make(map[corner]int, len(uvSet.PolygonVertexIndices))
	for _, p := range uvSet.PolygonVertexIndices {
		overrides[corner{p[0], p[1]}] = p[2]
	}

	for _, v := range geo.Vertices.Values {
		pos := math3d.V3(v[0], -v[2], v[1])
		m.Vertices = append(m.Vertices, Vertex{Pos: pos.Div(scale)})
	}

	for _, poly := range geo.Polylist.Values {
		if len(poly) < 5 {
			return nil, fmt.Errorf("%w: polylist entry %d has %d values", ErrInvalidMesh, len(m.Faces), len(poly))
		}
		faceIdx := len(m.Faces)
		face := Face{Vertices: make([]FaceVertex, 0, len(poly)-2)}
		for _, vi := range poly[2:] {
			uv, ok := overrides[corner{faceIdx, vi}]
			if !ok {
				uv = vi
			}
			face.Vertices = append(face.Vertices, FaceVertex{Vertex: vi, UV: uv})
		}
		m.Faces = append(m.Faces, face)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("load dsf %s: %w", geoPath, err)
	}
	return m, nil
}
