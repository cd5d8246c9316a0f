package scene

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

const quadOBJ = `o quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
f 1/1 2/2 3/3 4/4
`

func TestLoadOBJFansPolygons(t *testing.T) {
	mesh, err := LoadOBJ(strings.NewReader(quadOBJ), nil)
	require.NoError(t, err)

	require.Len(t, mesh.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
	require.Equal(t, mgl32.Vec3{1, 1, 0}, mesh.Vertices[2].Position)
	require.Equal(t, white, mesh.Vertices[2].Color)
	// V is flipped for top-down images
	require.Equal(t, mgl32.Vec2{1, 0}, mesh.Vertices[2].TexCoord)
	require.Equal(t, mgl32.Vec2{0, 1}, mesh.Vertices[0].TexCoord)
}

func TestLoadOBJSplitsSeams(t *testing.T) {
	src := `o seam
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
vt 0.5 0.5
f 1/1 2/2 3/3
f 1/4 3/3 2/2
`
	mesh, err := LoadOBJ(strings.NewReader(src), nil)
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 3, 2, 1}, mesh.Indices)
}

func TestLoadOBJRejectsEmpty(t *testing.T) {
	_, err := LoadOBJ(strings.NewReader("o nothing\n"), nil)
	require.Error(t, err)
}

func TestLoadOBJFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quad.obj")
	require.NoError(t, os.WriteFile(path, []byte(quadOBJ), 0o644))

	mesh, err := LoadOBJFile(path)
	require.NoError(t, err)
	require.Len(t, mesh.Indices, 6)

	_, err = LoadOBJFile(filepath.Join(dir, "missing.obj"))
	require.Error(t, err)
}
