package scene

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

var white = mgl32.Vec3{1, 1, 1}

// NewMesh builds a white mesh from parallel position and texture coordinate
// lists. uvs may be empty.
func NewMesh(positions []mgl32.Vec3, uvs []mgl32.Vec2, indices []uint32) (*Mesh, error) {
	if len(uvs) != 0 && len(uvs) != len(positions) {
		return nil, errors.Newf("%d texture coordinates for %d positions", len(uvs), len(positions))
	}

	mesh := &Mesh{Vertices: make([]Vertex, len(positions)), Indices: indices}
	for i, pos := range positions {
		mesh.Vertices[i] = Vertex{Position: pos, Color: white}
		if len(uvs) != 0 {
			mesh.Vertices[i].TexCoord = uvs[i]
		}
	}
	return mesh, mesh.Validate()
}

// DefaultQuads is two colored quads, one above the other along Z.
func DefaultQuads() *Mesh {
	corners := []struct {
		x, y  float32
		color mgl32.Vec3
		uv    mgl32.Vec2
	}{
		{-0.5, -0.5, mgl32.Vec3{1, 0, 0}, mgl32.Vec2{1, 0}},
		{0.5, -0.5, mgl32.Vec3{0, 1, 0}, mgl32.Vec2{0, 0}},
		{0.5, 0.5, mgl32.Vec3{0, 0, 1}, mgl32.Vec2{0, 1}},
		{-0.5, 0.5, mgl32.Vec3{1, 1, 1}, mgl32.Vec2{1, 1}},
	}

	mesh := &Mesh{}
	for _, z := range []float32{0, -0.5} {
		for _, c := range corners {
			mesh.Vertices = append(mesh.Vertices, Vertex{
				Position: mgl32.Vec3{c.x, c.y, z},
				Color:    c.color,
				TexCoord: c.uv,
			})
		}
	}
	mesh.Indices = []uint32{
		0, 1, 2, 2, 3, 0,
		4, 5, 6, 6, 7, 4,
	}
	return mesh
}

func (m *Mesh) Validate() error {
	if len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return errors.Newf("mesh has %d vertices and %d indices", len(m.Vertices), len(m.Indices))
	}
	if len(m.Indices)%3 != 0 {
		return errors.Newf("index count %d is not a multiple of 3", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return errors.Newf("index %d at %d out of range for %d vertices", idx, i, len(m.Vertices))
		}
	}
	return nil
}

// IndexType is 16-bit when every index fits, 32-bit otherwise.
func (m *Mesh) IndexType() core1_0.IndexType {
	if len(m.Vertices) <= math.MaxUint16 {
		return core1_0.IndexTypeUInt16
	}
	return core1_0.IndexTypeUInt32
}

// VertexData encodes the vertices in the device byte order.
func (m *Mesh) VertexData() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, m.Vertices); err != nil {
		return nil, errors.Wrap(err, "encode vertices")
	}
	return buf.Bytes(), nil
}

// IndexData encodes the indices at the width IndexType reports.
func (m *Mesh) IndexData() ([]byte, error) {
	buf := &bytes.Buffer{}

	var err error
	if m.IndexType() == core1_0.IndexTypeUInt16 {
		narrow := make([]uint16, len(m.Indices))
		for i, idx := range m.Indices {
			narrow[i] = uint16(idx)
		}
		err = binary.Write(buf, common.ByteOrder, narrow)
	} else {
		err = binary.Write(buf, common.ByteOrder, m.Indices)
	}
	if err != nil {
		return nil, errors.Wrap(err, "encode indices")
	}
	return buf.Bytes(), nil
}
