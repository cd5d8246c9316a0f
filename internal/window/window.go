// Package window wraps the SDL2 window the renderer presents to.
package window

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/minirender/internal/logging"
)

type Event int

const (
	EventNone Event = iota
	EventQuit
	// EventResized means the drawable size changed. A resize to zero area is
	// reported as EventMinimized.
	EventResized
	EventMinimized
	EventRestored
)

var eventNames = map[Event]string{
	EventNone:      "None",
	EventQuit:      "Quit",
	EventResized:   "Resized",
	EventMinimized: "Minimized",
	EventRestored:  "Restored",
}

func (e Event) String() string {
	name, ok := eventNames[e]
	if !ok {
		return "unknown"
	}
	return name
}

// Window must be created and used on the main OS thread.
type Window struct {
	handle *sdl.Window
	logger *slog.Logger
}

func Open(title string, width, height int, logger *slog.Logger) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "initialize SDL video")
	}

	handle, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{handle: handle, logger: logging.Or(logger)}, nil
}

func (w *Window) Handle() *sdl.Window {
	return w.handle
}

// ProcAddr is SDL's vkGetInstanceProcAddr, the entry point the Vulkan loader
// is reached through.
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// InstanceExtensions lists the instance extensions SDL needs to create a
// surface for this window.
func (w *Window) InstanceExtensions() []string {
	return w.handle.VulkanGetInstanceExtensions()
}

// DrawableSize is the window's size in pixels, or zero while minimized.
func (w *Window) DrawableSize() (int, int) {
	if w.handle.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	width, height := w.handle.VulkanGetDrawableSize()
	return int(width), int(height)
}

// Poll drains the SDL event queue and returns the events the render loop
// cares about, in order.
func (w *Window) Poll() []Event {
	var events []Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if e := Translate(event); e != EventNone {
			w.logger.Debug("window event", slog.String("event", e.String()))
			events = append(events, e)
		}
	}
	return events
}

func Translate(event sdl.Event) Event {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return EventQuit
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_MINIMIZED:
			return EventMinimized
		case sdl.WINDOWEVENT_RESTORED:
			return EventRestored
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			if e.Data1 <= 0 || e.Data2 <= 0 {
				return EventMinimized
			}
			return EventResized
		case sdl.WINDOWEVENT_CLOSE:
			return EventQuit
		}
	}
	return EventNone
}

func (w *Window) Destroy() {
	if w.handle != nil {
		if err := w.handle.Destroy(); err != nil {
			w.logger.Error("destroy window", slog.Any("error", err))
		}
		w.handle = nil
	}
	sdl.Quit()
}
