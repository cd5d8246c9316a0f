// Package transform computes the per-frame model, view and projection
// matrices in the conventions of the Vulkan clip space.
package transform

import (
	"math"
	"time"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// UniformBufferObject is the layout of the uniform block read by the vertex
// shader at binding 0.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

const Size = int(unsafe.Sizeof(UniformBufferObject{}))

// Clip maps OpenGL clip space to Vulkan's: Y points down and depth runs from
// 0 to 1 instead of -1 to 1.
var Clip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Perspective is mgl32.Perspective corrected for Vulkan clip space. fovy is
// in radians.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	return Clip.Mul4(mgl32.Perspective(fovy, aspect, near, far))
}

type Camera struct {
	Eye    mgl32.Vec3
	Center mgl32.Vec3
	Up     mgl32.Vec3
	FovY   float32
	Near   float32
	Far    float32
}

// DefaultCamera looks at the origin from (2, 2, 2) with Z up.
func DefaultCamera() Camera {
	return Camera{
		Eye:    mgl32.Vec3{2, 2, 2},
		Center: mgl32.Vec3{0, 0, 0},
		Up:     mgl32.Vec3{0, 0, 1},
		FovY:   mgl32.DegToRad(45),
		Near:   0.1,
		Far:    10,
	}
}

// Uniforms returns the transform block for model seen through the camera
// onto a target of the given extent. A zero-height extent yields an aspect
// ratio of 1.
func (c Camera) Uniforms(model mgl32.Mat4, extent core1_0.Extent2D) UniformBufferObject {
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}

	return UniformBufferObject{
		Model: model,
		View:  mgl32.LookAtV(c.Eye, c.Center, c.Up),
		Proj:  Perspective(c.FovY, aspect, c.Near, c.Far),
	}
}

// Spin rotates about Z by a quarter turn per second, repeating every four
// seconds.
func Spin(elapsed time.Duration) mgl32.Mat4 {
	period := math.Mod(elapsed.Seconds(), 4.0)
	return mgl32.HomogRotate3DZ(float32(period * math.Pi / 2.0))
}
