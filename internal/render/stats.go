package render

import (
	"time"

	"github.com/vkngwrapper/minirender/internal/frame"
)

type Stats struct {
	// Frames counts Render calls that ran the frame protocol.
	Frames int
	// Presents counts images handed to the presentation engine.
	Presents int
	// Recreations counts swapchain generations built after the first.
	Recreations int
	// Skipped counts Render calls that did nothing because the window had
	// no area.
	Skipped   int
	LastFrame time.Duration
	Last      frame.Outcome
}
