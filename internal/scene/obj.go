package scene

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

type vertexKey struct {
	vertex, uv int
}

// LoadOBJ decodes a Wavefront OBJ mesh. mtl may be nil when the mesh has no
// material library. Polygons are fanned into triangles and vertices sharing
// a position and texture coordinate are merged.
func LoadOBJ(mesh io.Reader, mtl io.Reader) (*Mesh, error) {
	if mtl == nil {
		mtl = strings.NewReader("")
	}

	decoder, err := obj.DecodeReader(mesh, mtl)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	m := &Mesh{}
	unique := make(map[vertexKey]uint32)

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					if err := m.addVertex(decoder, unique, face, corner); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	return m, m.Validate()
}

func (m *Mesh) addVertex(decoder *obj.Decoder, unique map[vertexKey]uint32, face obj.Face, faceIndex int) error {
	key := vertexKey{vertex: face.Vertices[faceIndex], uv: -1}
	if faceIndex < len(face.Uvs) {
		key.uv = face.Uvs[faceIndex]
	}

	index, exists := unique[key]
	if !exists {
		if (key.vertex+1)*3 > len(decoder.Vertices) {
			return errors.Newf("face references vertex %d of %d", key.vertex, len(decoder.Vertices)/3)
		}

		vert := Vertex{Position: mgl32.Vec3{
			decoder.Vertices[key.vertex*3],
			decoder.Vertices[key.vertex*3+1],
			decoder.Vertices[key.vertex*3+2],
		}, Color: white}

		if key.uv >= 0 && (key.uv+1)*2 <= len(decoder.Uvs) {
			vert.TexCoord = mgl32.Vec2{
				decoder.Uvs[key.uv*2],
				1.0 - decoder.Uvs[key.uv*2+1],
			}
		}

		index = uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, vert)
		unique[key] = index
	}

	m.Indices = append(m.Indices, index)
	return nil
}

// LoadOBJFile reads path and, if present, the .mtl file next to it.
func LoadOBJFile(path string) (*Mesh, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open mesh")
	}
	defer meshFile.Close()

	var mtl io.Reader
	mtlPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
	if matFile, err := os.Open(mtlPath); err == nil {
		defer matFile.Close()
		mtl = matFile
	}

	mesh, err := LoadOBJ(meshFile, mtl)
	return mesh, errors.Wrapf(err, "load %s", path)
}
