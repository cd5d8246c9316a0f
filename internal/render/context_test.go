package render

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/gpu/gputest"
	"github.com/vkngwrapper/minirender/internal/logging"
	"github.com/vkngwrapper/minirender/internal/pipeline"
	"github.com/vkngwrapper/minirender/internal/scene"
	"github.com/vkngwrapper/minirender/internal/transform"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}

type fakeWindow struct {
	width, height int
}

func (w *fakeWindow) DrawableSize() (int, int) {
	return w.width, w.height
}

type fixture struct {
	ctx     *Context
	dev     *gputest.Device
	window  *fakeWindow
	surface *gputest.Surface
	setup   int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	pd := gputest.NewPhysicalDevice("fake gpu")
	pd.Dev = gputest.NewDevice(pd)
	f := &fixture{
		dev:     pd.Dev,
		window:  &fakeWindow{width: 800, height: 600},
		surface: gputest.NewSurface(),
	}

	ctx, err := New(gputest.NewInstance(pd), f.surface, f.window, Assets{
		Shaders: pipeline.ShaderStages{Vertex: spirv, Fragment: spirv},
	}, opts...)
	require.NoError(t, err)
	f.ctx = ctx
	f.setup = len(f.dev.Calls)
	return f
}

// count counts calls made after New returned, which excludes the one-shot
// upload submits.
func (f *fixture) count(prefix string) int {
	return f.dev.CountSince(f.setup, prefix)
}

func (f *fixture) slotFences() []gpu.Fence {
	return f.ctx.frames.ImagesInFlight()
}

func TestRenderTwoFramesInFlightThreeImages(t *testing.T) {
	f := newFixture(t, WithFramesInFlight(2))
	require.Equal(t, 3, f.ctx.Generation().ImageCount())

	var slots []int
	for i := 1; i <= 10; i++ {
		require.NoError(t, f.ctx.Render(mgl32.Ident4()))
		slots = append(slots, f.ctx.Stats().Last.Slot)

		if i >= 3 {
			for image, fence := range f.slotFences() {
				require.NotNil(t, fence, "image %d after iteration %d", image, i)
			}
		}
	}

	require.Equal(t, []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}, slots)
	require.Equal(t, 10, f.ctx.Stats().Presents)
	require.Equal(t, 10, f.dev.Count("present:"))
	require.Equal(t, 10, f.ctx.frames.Counter())
	require.Equal(t, 0, f.ctx.Stats().Recreations)
	require.Empty(t, f.dev.Violations)

	require.NoError(t, f.ctx.Shutdown())
	require.Empty(t, f.dev.Violations)
}

func TestRenderRecoversFromOutOfDateAcquire(t *testing.T) {
	f := newFixture(t)
	f.dev.AcquireResults[5] = gputest.OutOfDate

	for i := 1; i <= 10; i++ {
		mark := len(f.dev.Calls)
		require.NoError(t, f.ctx.Render(mgl32.Ident4()))
		calls := f.dev.CallsSince(mark)

		switch i {
		case 5:
			for _, call := range calls {
				require.NotEqual(t, "submit", call)
				require.False(t, strings.HasPrefix(call, "present:"), call)
			}
			require.False(t, f.ctx.Stats().Last.Acquired)
			require.Equal(t, 1, f.ctx.Stats().Recreations)
			require.Len(t, f.dev.Swapchains, 2)
			require.True(t, f.dev.Swapchains[0].Destroyed())
			require.Equal(t, 2, f.ctx.Generation().ID)
			require.Contains(t, calls, "device-wait-idle")
		case 6:
			require.True(t, f.ctx.Stats().Last.Presented)
			require.Contains(t, calls, "submit")
			require.Len(t, f.dev.Swapchains[1].Presented, 1)
			require.Equal(t, 1, f.ctx.Stats().Recreations)
		}
	}

	require.Equal(t, 9, f.ctx.Stats().Presents)
	require.Len(t, f.dev.Swapchains[0].Presented, 4)
	require.Len(t, f.dev.Swapchains[1].Presented, 5)
	require.Empty(t, f.dev.Violations)

	require.NoError(t, f.ctx.Shutdown())
	require.Empty(t, f.dev.Violations)
}

func TestRenderRecreatesAfterStalePresent(t *testing.T) {
	f := newFixture(t)
	f.dev.PresentResults[2] = gputest.OutOfDate
	f.dev.PresentResults[4] = gputest.Suboptimal
	// texture, vertex and index uploads
	require.Equal(t, 3, f.dev.Count("submit"))

	for i := 0; i < 6; i++ {
		require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	}

	require.Equal(t, 2, f.ctx.Stats().Recreations)
	require.Equal(t, 5, f.ctx.Stats().Presents)
	require.Equal(t, 6, f.count("submit"))
	require.Empty(t, f.dev.Violations)
}

func TestRenderSuspendsWhileMinimized(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))

	f.window.width, f.window.height = 800, 0
	mark := len(f.dev.Calls)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	}
	require.Empty(t, f.dev.CallsSince(mark))
	require.True(t, f.ctx.Suspended())
	require.Equal(t, 5, f.ctx.Stats().Skipped)

	f.window.width, f.window.height = 640, 480
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	require.False(t, f.ctx.Suspended())
	require.Equal(t, 1, f.ctx.Stats().Recreations)
	require.Equal(t, core1_0.Extent2D{Width: 640, Height: 480}, f.ctx.Generation().Extent)
	require.Equal(t, 3, f.ctx.Stats().Presents)
	require.Empty(t, f.dev.Violations)
}

func TestRenderStartsSuspended(t *testing.T) {
	pd := gputest.NewPhysicalDevice("fake gpu")
	window := &fakeWindow{}
	ctx, err := New(gputest.NewInstance(pd), gputest.NewSurface(), window, Assets{
		Shaders: pipeline.ShaderStages{Vertex: spirv, Fragment: spirv},
	})
	require.NoError(t, err)
	require.True(t, ctx.Suspended())
	require.Nil(t, ctx.Generation())
	require.Equal(t, 0, pd.Dev.Count("create:swapchain"))

	require.NoError(t, ctx.Render(mgl32.Ident4()))
	require.Equal(t, 0, pd.Dev.Count("acquire"))

	window.width, window.height = 320, 200
	require.NoError(t, ctx.Render(mgl32.Ident4()))
	require.Equal(t, 1, ctx.Generation().ID)
	require.Equal(t, 0, ctx.Stats().Recreations)
	require.Equal(t, 1, ctx.Stats().Presents)

	require.NoError(t, ctx.Shutdown())
	require.Empty(t, pd.Dev.Violations)
}

func TestHandleResize(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))

	f.window.width, f.window.height = 1024, 768
	f.ctx.HandleResize()
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))

	require.Equal(t, 2, f.ctx.Stats().Presents)
	require.Equal(t, 1, f.ctx.Stats().Recreations)
	require.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, f.ctx.Generation().Extent)

	require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	require.Equal(t, 1, f.ctx.Stats().Recreations)
}

func TestRecreationLogLevels(t *testing.T) {
	var logs bytes.Buffer
	f := newFixture(t, WithLogger(logging.NewText(&logs, slog.LevelInfo)))
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	logs.Reset()

	f.window.width, f.window.height = 1024, 768
	f.ctx.HandleResize()
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	require.Contains(t, logs.String(), "level=INFO msg=\"window resized, recreating swapchain\"")
	require.NotContains(t, logs.String(), "level=WARN")

	logs.Reset()
	f.dev.PresentResults[3] = gputest.OutOfDate
	require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	require.Contains(t, logs.String(), "level=WARN msg=\"swapchain is stale, recreating\"")
}

func TestRenderNeverResubmitsPendingFence(t *testing.T) {
	for n := 1; n <= 3; n++ {
		f := newFixture(t, WithFramesInFlight(n))
		f.dev.AcquireResults[4] = gputest.OutOfDate
		f.dev.PresentResults[7] = gputest.Suboptimal

		for i := 0; i < 12; i++ {
			require.NoError(t, f.ctx.Render(mgl32.Ident4()))
		}
		require.NoError(t, f.ctx.Shutdown())
		require.Empty(t, f.dev.Violations, "frames in flight %d", n)

		for _, ev := range f.dev.FenceEvents {
			if ev.To == gputest.FencePending {
				require.Equal(t, gputest.FenceUnsignaled, ev.From, "fence %d", ev.Fence)
			}
		}
	}
}

func TestRenderWritesUniforms(t *testing.T) {
	f := newFixture(t)
	model := mgl32.HomogRotate3DZ(0.5)
	require.NoError(t, f.ctx.Render(model))

	gen := f.ctx.Generation()
	image := f.ctx.Stats().Last.ImageIndex
	got, err := gen.Uniforms[image].Read()
	require.NoError(t, err)

	want := &bytes.Buffer{}
	require.NoError(t, binary.Write(want, common.ByteOrder, transform.DefaultCamera().Uniforms(model, gen.Extent)))
	require.Equal(t, want.Bytes(), got)
	require.Len(t, got, transform.Size)
}

func TestRecordedCommands(t *testing.T) {
	f := newFixture(t)
	gen := f.ctx.Generation()

	for i, cb := range gen.CommandBuffers {
		cmd := cb.(*gputest.CommandBuffer)
		require.Equal(t, []string{
			"begin-render-pass",
			"bind-pipeline",
			"bind-vertex-buffer",
			"bind-index-buffer",
			"bind-descriptor-set",
			"draw-indexed",
			"end-render-pass",
		}, cmd.Ops)
		require.Equal(t, []int{12}, cmd.Draws)
		require.Equal(t, core1_0.IndexTypeUInt16, cmd.IndexType)
		require.Equal(t, gen.Framebuffers[i], cmd.Target)
		require.Equal(t, gen.DescriptorSets[i], cmd.Set)
	}

	set := gen.DescriptorSets[0].(*gputest.DescriptorSet)
	require.Len(t, set.Writes, 2)
	require.Equal(t, gen.Uniforms[0].Handle, set.Writes[0].Buffer)
	require.Equal(t, transform.Size, set.Writes[0].Range)
	require.Equal(t, f.ctx.sampler, set.Writes[1].Sampler)
}

func TestGeometryIsDeviceLocal(t *testing.T) {
	f := newFixture(t)

	want, err := scene.DefaultQuads().VertexData()
	require.NoError(t, err)

	vertices := f.ctx.vertices.Handle.(*gputest.Buffer)
	require.Equal(t, want, vertices.Bytes())
	require.Equal(t, 0, vertices.Memory.TypeIndex)

	sampler := f.ctx.sampler.(*gputest.Sampler)
	require.Equal(t, float32(16), sampler.Info.Anisotropy)
	require.Equal(t, float32(9), sampler.Info.MaxLod)
}

func TestShutdownReleasesEverything(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	}

	mark := len(f.dev.Calls)
	require.NoError(t, f.ctx.Shutdown())

	calls := f.dev.CallsSince(mark)
	require.Equal(t, "device-wait-idle", calls[0])
	require.Equal(t, "destroy:device", calls[len(calls)-1])
	require.True(t, f.dev.Destroyed())
	require.Equal(t, 0, f.dev.LiveTotal())
	require.Empty(t, f.dev.Violations)

	require.ErrorIs(t, f.ctx.Render(mgl32.Ident4()), ErrShutdown)
	require.NoError(t, f.ctx.Shutdown())
}

func TestNewReleasesOnFailure(t *testing.T) {
	kinds := []struct {
		kind string
		is   error
	}{
		{"descriptor-set-layout", gpu.ErrResourceAllocation},
		{"image", gpu.ErrResourceAllocation},
		{"sampler", gpu.ErrResourceAllocation},
		{"buffer", gpu.ErrResourceAllocation},
		{"command-pool", gpu.ErrResourceAllocation},
		{"swapchain", gpu.ErrSwapchain},
		{"render-pass", gpu.ErrSwapchain},
		{"framebuffer", gpu.ErrSwapchain},
		{"fence", gpu.ErrResourceAllocation},
	}

	for _, tc := range kinds {
		t.Run(tc.kind, func(t *testing.T) {
			pd := gputest.NewPhysicalDevice("fake gpu")
			pd.Dev = gputest.NewDevice(pd)
			boom := errors.New("boom")
			pd.Dev.FailNext(tc.kind, boom)

			_, err := New(gputest.NewInstance(pd), gputest.NewSurface(), &fakeWindow{width: 800, height: 600}, Assets{
				Shaders: pipeline.ShaderStages{Vertex: spirv, Fragment: spirv},
			})
			require.Error(t, err)
			require.ErrorIs(t, err, boom)
			require.True(t, errors.Is(err, tc.is), "%+v", err)

			require.True(t, pd.Dev.Destroyed())
			require.Equal(t, 0, pd.Dev.LiveTotal(), "%v", pd.Dev.Live())
			require.Empty(t, pd.Dev.Violations)
		})
	}
}

func TestNewNoSuitableDevice(t *testing.T) {
	pd := gputest.NewPhysicalDevice("no swapchain")
	pd.ExtensionNames = nil

	_, err := New(gputest.NewInstance(pd), gputest.NewSurface(), &fakeWindow{width: 800, height: 600}, Assets{
		Shaders: pipeline.ShaderStages{Vertex: spirv, Fragment: spirv},
	})
	require.True(t, errors.Is(err, gpu.ErrDeviceSelection))
	require.Nil(t, pd.Dev)
}

func TestNewRejectsInvalidInput(t *testing.T) {
	pd := gputest.NewPhysicalDevice("fake gpu")
	shaders := pipeline.ShaderStages{Vertex: spirv, Fragment: spirv}
	window := &fakeWindow{width: 800, height: 600}

	_, err := New(gputest.NewInstance(pd), gputest.NewSurface(), window, Assets{Shaders: shaders}, WithFramesInFlight(0))
	require.Error(t, err)

	_, err = New(gputest.NewInstance(pd), gputest.NewSurface(), window, Assets{Shaders: pipeline.ShaderStages{Vertex: spirv}})
	require.Error(t, err)

	_, err = New(gputest.NewInstance(pd), gputest.NewSurface(), window, Assets{
		Shaders: shaders,
		Mesh:    &scene.Mesh{Vertices: make([]scene.Vertex, 3), Indices: []uint32{0, 1, 5}},
	})
	require.Error(t, err)
	require.Nil(t, pd.Dev)
}

func TestFenceTimeoutIsFatal(t *testing.T) {
	f := newFixture(t, WithFramesInFlight(1), WithFenceTimeout(time.Millisecond))
	f.dev.HangFences = true

	require.NoError(t, f.ctx.Render(mgl32.Ident4()))
	err := f.ctx.Render(mgl32.Ident4())
	require.True(t, errors.Is(err, gpu.ErrSynchronizationTimeout))

	require.NoError(t, f.ctx.Shutdown())
	require.Equal(t, 0, f.dev.LiveTotal())
}

func TestFatalAcquireErrorPropagates(t *testing.T) {
	f := newFixture(t)
	lost := errors.New("device lost")
	f.dev.AcquireResults[1] = gputest.Result{Err: lost}

	err := f.ctx.Render(mgl32.Ident4())
	require.ErrorIs(t, err, lost)
	require.Equal(t, 0, f.count("submit"))
	require.Equal(t, 0, f.ctx.Stats().Recreations)
}
