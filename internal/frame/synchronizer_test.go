package frame

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/gpu/gputest"
)

type fixture struct {
	dev    *gputest.Device
	sync   *Synchronizer
	target Target
	chain  *gputest.Swapchain

	updated []int
}

func newFixture(t *testing.T, framesInFlight, images int) *fixture {
	t.Helper()

	pd := gputest.NewPhysicalDevice("gpu")
	dev, err := pd.CreateDevice(gpu.DeviceInfo{QueueFamilies: []int{0}})
	require.NoError(t, err)

	sc, err := dev.CreateSwapchain(gpu.SwapchainInfo{MinImageCount: images})
	require.NoError(t, err)

	pool, err := dev.CreateCommandPool(0, false)
	require.NoError(t, err)
	buffers, err := pool.Allocate(images)
	require.NoError(t, err)

	sync, err := New(dev, framesInFlight, images, common.NoTimeout, nil)
	require.NoError(t, err)

	f := &fixture{dev: pd.Dev, sync: sync, chain: sc.(*gputest.Swapchain)}
	f.target = Target{
		Swapchain:      sc,
		CommandBuffers: buffers,
		GraphicsQueue:  dev.Queue(0),
		PresentQueue:   dev.Queue(0),
		Update: func(image int) error {
			f.updated = append(f.updated, image)
			return nil
		},
	}
	return f
}

// requireWaitBeforeSubmit checks that no fence was submitted again before its
// previous submission was observed signaled.
func requireWaitBeforeSubmit(t *testing.T, dev *gputest.Device) {
	t.Helper()

	for _, event := range dev.FenceEvents {
		if event.To == gputest.FencePending {
			require.Equal(t, gputest.FenceUnsignaled, event.From, "fence %d submitted from %s", event.Fence, event.From)
		}
		if event.To == gputest.FenceUnsignaled {
			require.NotEqual(t, gputest.FencePending, event.From, "fence %d reset while in flight", event.Fence)
		}
	}
	require.Empty(t, dev.Violations)
}

func TestFenceWaitBeforeSubmit(t *testing.T) {
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("frames in flight %d", n), func(t *testing.T) {
			f := newFixture(t, n, 3)

			for i := 0; i < 20; i++ {
				out, err := f.sync.Frame(f.target)
				require.NoError(t, err)
				require.True(t, out.Presented)
				require.Equal(t, i%n, out.Slot)
			}

			requireWaitBeforeSubmit(t, f.dev)
			require.Equal(t, 20, f.dev.Count("submit"))
			require.Equal(t, 20, f.sync.Counter())

			for _, fence := range f.dev.Fences() {
				require.LessOrEqual(t, fence.Submissions, fence.Waits)
			}
		})
	}
}

func TestFrameProtocolOrder(t *testing.T) {
	f := newFixture(t, 2, 3)
	fences := f.dev.Fences()

	mark := len(f.dev.Calls)
	out, err := f.sync.Frame(f.target)
	require.NoError(t, err)
	require.Equal(t, 0, out.ImageIndex)

	require.Equal(t, []string{
		fmt.Sprintf("fence-wait:%d", fences[0].ID),
		"acquire",
		fmt.Sprintf("fence-reset:%d", fences[0].ID),
		"submit",
		"present:0",
	}, f.dev.CallsSince(mark))
	require.Equal(t, []int{0}, f.updated)

	sub := f.dev.Submissions[0]
	require.Same(t, fences[0], sub.Fence)
	require.Equal(t, []gpu.Semaphore{f.sync.slots[0].ImageAvailable}, sub.Wait)
	require.Equal(t, []gpu.Semaphore{f.sync.slots[0].RenderFinished}, sub.Signal)
	require.Same(t, f.target.CommandBuffers[0], sub.CommandBuffers[0])
}

func TestImageTableFillsAndWaits(t *testing.T) {
	// Three slots cycling over two images: the third frame reuses image 0,
	// which the first slot's fence still guards.
	f := newFixture(t, 3, 2)
	fences := f.dev.Fences()

	for i := 0; i < 2; i++ {
		_, err := f.sync.Frame(f.target)
		require.NoError(t, err)
	}
	for _, fence := range f.sync.ImagesInFlight() {
		require.NotNil(t, fence)
	}

	mark := len(f.dev.Calls)
	out, err := f.sync.Frame(f.target)
	require.NoError(t, err)
	require.Equal(t, 2, out.Slot)
	require.Equal(t, 0, out.ImageIndex)
	require.Contains(t, f.dev.CallsSince(mark), fmt.Sprintf("fence-wait:%d", fences[0].ID))
	require.Same(t, fences[2], f.sync.ImagesInFlight()[0])
	requireWaitBeforeSubmit(t, f.dev)
}

func TestAcquireOutOfDate(t *testing.T) {
	f := newFixture(t, 2, 3)
	f.dev.AcquireResults[2] = gputest.OutOfDate

	_, err := f.sync.Frame(f.target)
	require.NoError(t, err)

	mark := len(f.dev.Calls)
	out, err := f.sync.Frame(f.target)
	require.NoError(t, err)
	require.True(t, out.Recreate)
	require.False(t, out.Acquired)
	require.False(t, out.Presented)
	require.Equal(t, 1, f.sync.Counter())

	calls := f.dev.CallsSince(mark)
	require.NotContains(t, calls, "submit")
	for _, call := range calls {
		require.NotContains(t, call, "fence-reset")
		require.NotContains(t, call, "present")
	}

	// The slot is retried by the next frame.
	out, err = f.sync.Frame(f.target)
	require.NoError(t, err)
	require.Equal(t, 1, out.Slot)
	require.True(t, out.Presented)
	requireWaitBeforeSubmit(t, f.dev)
}

func TestSuboptimalAcquireStillPresents(t *testing.T) {
	f := newFixture(t, 2, 3)
	f.dev.AcquireResults[1] = gputest.Suboptimal

	out, err := f.sync.Frame(f.target)
	require.NoError(t, err)
	require.True(t, out.Presented)
	require.True(t, out.Recreate)
	require.Equal(t, gpu.StatusSuboptimal, out.AcquireStatus)
}

func TestPresentOutOfDate(t *testing.T) {
	f := newFixture(t, 2, 3)
	f.dev.PresentResults[1] = gputest.OutOfDate

	out, err := f.sync.Frame(f.target)
	require.NoError(t, err)
	require.True(t, out.Recreate)
	require.False(t, out.Presented)
	require.Equal(t, 1, f.dev.Count("submit"))
	require.Equal(t, 1, f.sync.Counter())
}

func TestFatalResults(t *testing.T) {
	f := newFixture(t, 2, 3)
	lost := errors.New("device lost")
	f.dev.PresentResults[1] = gputest.Result{Err: lost}

	_, err := f.sync.Frame(f.target)
	require.True(t, errors.Is(err, lost))

	f = newFixture(t, 1, 3)
	f.dev.AcquireResults[1] = gputest.Result{Err: lost}
	_, err = f.sync.Frame(f.target)
	require.True(t, errors.Is(err, lost))
	require.Zero(t, f.dev.Count("submit"))
}

func TestHungFenceTimesOut(t *testing.T) {
	f := newFixture(t, 2, 3)
	f.dev.HangFences = true

	for i := 0; i < 2; i++ {
		_, err := f.sync.Frame(f.target)
		require.NoError(t, err)
	}

	_, err := f.sync.Frame(f.target)
	require.True(t, errors.Is(err, gpu.ErrSynchronizationTimeout))
	require.Equal(t, 2, f.dev.Count("submit"))
}

func TestResizeImages(t *testing.T) {
	f := newFixture(t, 2, 3)

	_, err := f.sync.Frame(f.target)
	require.NoError(t, err)
	require.NotNil(t, f.sync.ImagesInFlight()[0])

	f.sync.ResizeImages(4)
	require.Len(t, f.sync.ImagesInFlight(), 4)
	for _, fence := range f.sync.ImagesInFlight() {
		require.Nil(t, fence)
	}
}

func TestDestroy(t *testing.T) {
	f := newFixture(t, 3, 3)
	require.Equal(t, 3, f.dev.Live()["fence"])
	require.Equal(t, 6, f.dev.Live()["semaphore"])

	f.sync.Destroy()
	require.Zero(t, f.dev.Live()["fence"])
	require.Zero(t, f.dev.Live()["semaphore"])
	require.Empty(t, f.dev.Violations)
}

func TestNewReleasesOnFailure(t *testing.T) {
	pd := gputest.NewPhysicalDevice("gpu")
	dev, err := pd.CreateDevice(gpu.DeviceInfo{QueueFamilies: []int{0}})
	require.NoError(t, err)

	_, err = New(dev, 0, 3, common.NoTimeout, nil)
	require.Error(t, err)

	pd.Dev.FailNext("fence", errors.New("out of host memory"))
	_, err = New(dev, 2, 3, common.NoTimeout, nil)
	require.True(t, errors.Is(err, gpu.ErrResourceAllocation))
	require.Zero(t, pd.Dev.LiveTotal())
}
