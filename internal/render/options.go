package render

import (
	"log/slog"
	"time"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/minirender/internal/transform"
)

const DefaultFramesInFlight = 2

type options struct {
	logger         *slog.Logger
	framesInFlight int
	fenceTimeout   time.Duration
	preferDiscrete bool
	clearColor     [4]float32
	camera         transform.Camera
}

func defaultOptions() options {
	return options{
		framesInFlight: DefaultFramesInFlight,
		fenceTimeout:   common.NoTimeout,
		clearColor:     [4]float32{0, 0, 0, 1},
		camera:         transform.DefaultCamera(),
	}
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFramesInFlight sets how many frames the host may record ahead of the
// GPU. Values below 1 are rejected by New.
func WithFramesInFlight(n int) Option {
	return func(o *options) { o.framesInFlight = n }
}

// WithFenceTimeout bounds every fence wait. A wait that expires fails the
// frame with gpu.ErrSynchronizationTimeout.
func WithFenceTimeout(timeout time.Duration) Option {
	return func(o *options) { o.fenceTimeout = timeout }
}

func WithPreferDiscrete(prefer bool) Option {
	return func(o *options) { o.preferDiscrete = prefer }
}

func WithClearColor(rgba [4]float32) Option {
	return func(o *options) { o.clearColor = rgba }
}

func WithCamera(camera transform.Camera) Option {
	return func(o *options) { o.camera = camera }
}
