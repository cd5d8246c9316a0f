// Command minirender opens a window and draws a textured, spinning mesh.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/minirender/internal/config"
	"github.com/vkngwrapper/minirender/internal/logging"
	"github.com/vkngwrapper/minirender/internal/render"
	"github.com/vkngwrapper/minirender/internal/scene"
	"github.com/vkngwrapper/minirender/internal/transform"
	"github.com/vkngwrapper/minirender/internal/vulkan"
	"github.com/vkngwrapper/minirender/internal/window"
	"golang.org/x/sync/errgroup"
)

//go:generate glslc ../../shaders/shader.vert -o ../../shaders/vert.spv
//go:generate glslc ../../shaders/shader.frag -o ../../shaders/frag.spv

func main() {
	// SDL and the Vulkan presentation engine both expect the main thread.
	runtime.LockOSThread()

	cfg := config.Default()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	logger := logging.NewText(os.Stderr, level)

	if err := run(cfg, logger); err != nil {
		logger.Error("minirender failed", slog.String("error", fmt.Sprintf("%+v", err)))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	assets, err := loadAssets(cfg)
	if err != nil {
		return err
	}

	win, err := window.Open(cfg.Title, cfg.Width, cfg.Height, logger)
	if err != nil {
		return err
	}
	defer win.Destroy()

	instance, err := vulkan.NewInstance(win.ProcAddr(), vulkan.InstanceOptions{
		ApplicationName: cfg.Title,
		Extensions:      win.InstanceExtensions(),
		Validation:      cfg.Validation,
		Logger:          logger.With(slog.String("component", "vulkan")),
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := instance.CreateSDLSurface(win.Handle())
	if err != nil {
		return err
	}
	defer surface.Destroy()

	fenceTimeout := cfg.FenceTimeout
	if fenceTimeout == 0 {
		fenceTimeout = common.NoTimeout
	}

	ctx, err := render.New(instance, surface, win, assets,
		render.WithLogger(logger),
		render.WithFramesInFlight(cfg.MaxFramesInFlight),
		render.WithFenceTimeout(fenceTimeout),
		render.WithPreferDiscrete(cfg.PreferDiscrete),
		render.WithClearColor([4]float32(cfg.ClearColor)),
	)
	if err != nil {
		return err
	}

	loopErr := loop(ctx, win)
	return errors.CombineErrors(loopErr, ctx.Shutdown())
}

func loop(ctx *render.Context, win *window.Window) error {
	start := hrtime.Now()
	for {
		for _, event := range win.Poll() {
			switch event {
			case window.EventQuit:
				return nil
			case window.EventResized:
				ctx.HandleResize()
			}
		}

		if err := ctx.Render(transform.Spin(hrtime.Since(start))); err != nil {
			return err
		}
		if ctx.Suspended() {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// loadAssets reads shaders, mesh and texture concurrently. A missing mesh or
// texture path falls back to the built-in defaults.
func loadAssets(cfg config.Config) (render.Assets, error) {
	var assets render.Assets
	var g errgroup.Group

	g.Go(func() error {
		code, err := os.ReadFile(cfg.VertexShader)
		if err != nil {
			return errors.Wrap(err, "read vertex shader")
		}
		assets.Shaders.Vertex = code
		return nil
	})
	g.Go(func() error {
		code, err := os.ReadFile(cfg.FragmentShader)
		if err != nil {
			return errors.Wrap(err, "read fragment shader")
		}
		assets.Shaders.Fragment = code
		return nil
	})
	if cfg.Mesh != "" {
		g.Go(func() error {
			mesh, err := scene.LoadOBJFile(cfg.Mesh)
			assets.Mesh = mesh
			return err
		})
	}
	if cfg.Texture != "" {
		g.Go(func() error {
			tex, err := scene.LoadPNGFile(cfg.Texture)
			assets.Texture = tex
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return render.Assets{}, err
	}
	return assets, nil
}
