// Package frame owns the per-frame synchronization objects and runs the
// acquire, wait, submit and present protocol for one frame at a time.
package frame

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/minirender/internal/gpu"
	"github.com/vkngwrapper/minirender/internal/logging"
)

// Slot is one of the reusable sets of synchronization objects. Slots are
// used round robin, one per frame.
type Slot struct {
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	InFlight       gpu.Fence
}

type Synchronizer struct {
	slots          []Slot
	imagesInFlight []gpu.Fence
	counter        int
	timeout        time.Duration
	logger         *slog.Logger
}

// New creates framesInFlight slots with their fences signaled, and an empty
// image table for images swapchain images.
func New(device gpu.Device, framesInFlight, images int, timeout time.Duration, logger *slog.Logger) (*Synchronizer, error) {
	if framesInFlight < 1 {
		return nil, errors.Newf("frames in flight must be at least 1, got %d", framesInFlight)
	}

	s := &Synchronizer{
		timeout: timeout,
		logger:  logging.Or(logger),
	}

	for i := 0; i < framesInFlight; i++ {
		slot, err := newSlot(device)
		if err != nil {
			s.Destroy()
			return nil, errors.Mark(errors.Wrapf(err, "create frame slot %d", i), gpu.ErrResourceAllocation)
		}
		s.slots = append(s.slots, slot)
	}
	s.ResizeImages(images)

	return s, nil
}

func newSlot(device gpu.Device) (Slot, error) {
	var cleanup gpu.Cleanup
	defer cleanup.Release()

	imageAvailable, err := device.CreateSemaphore()
	if err != nil {
		return Slot{}, err
	}
	cleanup.Push(imageAvailable.Destroy)

	renderFinished, err := device.CreateSemaphore()
	if err != nil {
		return Slot{}, err
	}
	cleanup.Push(renderFinished.Destroy)

	inFlight, err := device.CreateFence(true)
	if err != nil {
		return Slot{}, err
	}
	cleanup.Disarm()

	return Slot{ImageAvailable: imageAvailable, RenderFinished: renderFinished, InFlight: inFlight}, nil
}

// Destroy releases every slot. The device must be idle.
func (s *Synchronizer) Destroy() {
	for _, slot := range s.slots {
		slot.InFlight.Destroy()
		slot.RenderFinished.Destroy()
		slot.ImageAvailable.Destroy()
	}
	s.slots = nil
	s.imagesInFlight = nil
}

// ResizeImages empties the image table and sizes it for a new swapchain.
func (s *Synchronizer) ResizeImages(images int) {
	s.imagesInFlight = make([]gpu.Fence, images)
}

func (s *Synchronizer) FramesInFlight() int {
	return len(s.slots)
}

// Slot is the index of the slot the next frame uses.
func (s *Synchronizer) Slot() int {
	return s.counter % len(s.slots)
}

// Counter is the number of frames that reached presentation.
func (s *Synchronizer) Counter() int {
	return s.counter
}

// ImagesInFlight returns a copy of the image table: for each swapchain image,
// the fence of the last frame that rendered to it, or nil.
func (s *Synchronizer) ImagesInFlight() []gpu.Fence {
	return append([]gpu.Fence(nil), s.imagesInFlight...)
}

// Target is what one frame renders to.
type Target struct {
	Swapchain      gpu.Swapchain
	CommandBuffers []gpu.CommandBuffer
	GraphicsQueue  gpu.Queue
	PresentQueue   gpu.Queue
	// Update writes per-frame data for the acquired image. It runs once the
	// image is known to be unused by the device.
	Update func(image int) error
}

type Outcome struct {
	Slot       int
	ImageIndex int
	Acquired   bool
	Presented  bool
	// Recreate is set when acquire or present reported a stale swapchain.
	Recreate      bool
	AcquireStatus gpu.Status
	PresentStatus gpu.Status
}

// Frame renders one frame. An out-of-date acquire ends the frame early with
// Recreate set and nothing submitted; the slot is not consumed. Errors are
// fatal.
func (s *Synchronizer) Frame(t Target) (Outcome, error) {
	index := s.Slot()
	slot := s.slots[index]
	out := Outcome{Slot: index, ImageIndex: -1}

	if err := slot.InFlight.Wait(s.timeout); err != nil {
		return out, errors.Wrapf(err, "wait for frame slot %d", index)
	}

	imageIndex, status, err := t.Swapchain.AcquireNextImage(s.timeout, slot.ImageAvailable)
	out.AcquireStatus = status
	if err != nil {
		return out, errors.Wrap(err, "acquire swapchain image")
	}
	if status == gpu.StatusOutOfDate {
		s.logger.Debug("swapchain out of date on acquire", slog.Int("slot", index))
		out.Recreate = true
		return out, nil
	}
	out.Acquired = true
	out.ImageIndex = imageIndex
	out.Recreate = status.NeedsRecreation()

	if imageIndex < 0 || imageIndex >= len(s.imagesInFlight) || imageIndex >= len(t.CommandBuffers) {
		return out, errors.Mark(errors.Newf("acquired image %d outside swapchain of %d images", imageIndex, len(s.imagesInFlight)), gpu.ErrSwapchain)
	}

	if previous := s.imagesInFlight[imageIndex]; previous != nil && previous != slot.InFlight {
		if err := previous.Wait(s.timeout); err != nil {
			return out, errors.Wrapf(err, "wait for image %d", imageIndex)
		}
	}
	s.imagesInFlight[imageIndex] = slot.InFlight

	if t.Update != nil {
		if err := t.Update(imageIndex); err != nil {
			return out, errors.Wrapf(err, "update frame data for image %d", imageIndex)
		}
	}

	if err := slot.InFlight.Reset(); err != nil {
		return out, errors.Wrapf(err, "reset fence of frame slot %d", index)
	}

	err = t.GraphicsQueue.Submit(gpu.SubmitInfo{
		CommandBuffers:   []gpu.CommandBuffer{t.CommandBuffers[imageIndex]},
		WaitSemaphores:   []gpu.Semaphore{slot.ImageAvailable},
		WaitStages:       []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		SignalSemaphores: []gpu.Semaphore{slot.RenderFinished},
	}, slot.InFlight)
	if err != nil {
		return out, errors.Wrapf(err, "submit image %d", imageIndex)
	}

	status, err = t.PresentQueue.Present(t.Swapchain, imageIndex, slot.RenderFinished)
	out.PresentStatus = status
	if err != nil {
		return out, errors.Wrapf(err, "present image %d", imageIndex)
	}
	out.Presented = status != gpu.StatusOutOfDate
	out.Recreate = out.Recreate || status.NeedsRecreation()

	s.counter++
	return out, nil
}
