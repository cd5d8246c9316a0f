package transform

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestSize(t *testing.T) {
	require.Equal(t, 192, Size)
}

func TestClipFlipsYAndHalvesDepth(t *testing.T) {
	p := Clip.Mul4x1(mgl32.Vec4{0.25, 0.5, -1, 1})
	require.InDelta(t, 0.25, p.X(), 1e-6)
	require.InDelta(t, -0.5, p.Y(), 1e-6)
	require.InDelta(t, 0, p.Z(), 1e-6)

	p = Clip.Mul4x1(mgl32.Vec4{0, 0, 1, 1})
	require.InDelta(t, 1, p.Z(), 1e-6)
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := Perspective(mgl32.DegToRad(45), 1, 0.1, 10)

	near := proj.Mul4x1(mgl32.Vec4{0, 0, -0.1, 1})
	far := proj.Mul4x1(mgl32.Vec4{0, 0, -10, 1})
	require.InDelta(t, 0, near.Z()/near.W(), 1e-5)
	require.InDelta(t, 1, far.Z()/far.W(), 1e-5)

	up := proj.Mul4x1(mgl32.Vec4{0, 1, -1, 1})
	require.Less(t, up.Y(), float32(0))
}

func TestUniforms(t *testing.T) {
	cam := DefaultCamera()

	ubo := cam.Uniforms(mgl32.Ident4(), core1_0.Extent2D{Width: 800, Height: 400})
	require.Equal(t, mgl32.Ident4(), ubo.Model)
	require.Equal(t, mgl32.LookAtV(cam.Eye, cam.Center, cam.Up), ubo.View)
	require.Equal(t, Perspective(cam.FovY, 2, cam.Near, cam.Far), ubo.Proj)

	ubo = cam.Uniforms(mgl32.Ident4(), core1_0.Extent2D{})
	require.Equal(t, Perspective(cam.FovY, 1, cam.Near, cam.Far), ubo.Proj)
}

func TestSpin(t *testing.T) {
	require.True(t, Spin(0).ApproxEqualThreshold(mgl32.Ident4(), 1e-6))
	require.True(t, Spin(4*time.Second).ApproxEqualThreshold(mgl32.Ident4(), 1e-5))

	quarter := Spin(time.Second).Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	require.InDelta(t, 0, quarter.X(), 1e-6)
	require.InDelta(t, 1, quarter.Y(), 1e-6)
}
