// Package config holds the settings of the minirender host process.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/minirender/internal/logging"
)

type Config struct {
	Title  string
	Width  int
	Height int

	MaxFramesInFlight int
	// FenceTimeout bounds every fence wait. Zero waits forever.
	FenceTimeout   time.Duration
	PreferDiscrete bool
	// Validation enables the Khronos validation layer and routes its
	// messages to the logger.
	Validation bool

	VertexShader   string
	FragmentShader string
	// Mesh is an optional OBJ file; the default is two stacked quads.
	Mesh string
	// Texture is an optional PNG file; the default is a checkerboard.
	Texture string

	LogLevel   string
	ClearColor Color
}

func Default() Config {
	return Config{
		Title:             "minirender",
		Width:             800,
		Height:            600,
		MaxFramesInFlight: 2,
		VertexShader:      "shaders/vert.spv",
		FragmentShader:    "shaders/frag.spv",
		LogLevel:          "info",
		ClearColor:        Color{0, 0, 0, 1},
	}
}

// Validate reports every problem with c in a single error.
func (c Config) Validate() error {
	var problems []string
	if c.Width <= 0 || c.Height <= 0 {
		problems = append(problems, fmt.Sprintf("window size %dx%d must be positive", c.Width, c.Height))
	}
	if c.MaxFramesInFlight < 1 {
		problems = append(problems, fmt.Sprintf("max frames in flight %d must be at least 1", c.MaxFramesInFlight))
	}
	if c.FenceTimeout < 0 {
		problems = append(problems, fmt.Sprintf("fence timeout %s is negative", c.FenceTimeout))
	}
	if c.VertexShader == "" || c.FragmentShader == "" {
		problems = append(problems, "vertex and fragment shader paths are required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf("invalid configuration: %s", strings.Join(problems, "; "))
}

// BindFlags registers a flag for every field on fs, defaulting to the
// current values of c.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Title, "title", c.Title, "window title")
	fs.IntVar(&c.Width, "width", c.Width, "initial window width")
	fs.IntVar(&c.Height, "height", c.Height, "initial window height")
	fs.IntVar(&c.MaxFramesInFlight, "frames-in-flight", c.MaxFramesInFlight, "frames the CPU may record ahead of the GPU")
	fs.DurationVar(&c.FenceTimeout, "fence-timeout", c.FenceTimeout, "fail if a frame fence is not signaled within this long (0 waits forever)")
	fs.BoolVar(&c.PreferDiscrete, "prefer-discrete", c.PreferDiscrete, "rank discrete GPUs ahead of integrated ones")
	fs.BoolVar(&c.Validation, "validation", c.Validation, "enable validation layers")
	fs.StringVar(&c.VertexShader, "vertex-shader", c.VertexShader, "SPIR-V vertex shader")
	fs.StringVar(&c.FragmentShader, "fragment-shader", c.FragmentShader, "SPIR-V fragment shader")
	fs.StringVar(&c.Mesh, "mesh", c.Mesh, "OBJ mesh to draw")
	fs.StringVar(&c.Texture, "texture", c.Texture, "PNG texture to sample")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.Var(&c.ClearColor, "clear-color", "framebuffer clear color as r,g,b,a")
}

// Color is an RGBA color with components in [0, 1].
type Color [4]float32

func (c *Color) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", c[0], c[1], c[2], c[3])
}

func (c *Color) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return errors.Newf("color %q needs 4 components", s)
	}

	var out Color
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return errors.Wrapf(err, "color component %d", i)
		}
		if v < 0 || v > 1 {
			return errors.Newf("color component %d is %g, outside [0, 1]", i, v)
		}
		out[i] = float32(v)
	}
	*c = out
	return nil
}
