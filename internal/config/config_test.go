package config

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 2, cfg.MaxFramesInFlight)
	require.Zero(t, cfg.FenceTimeout)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Width = 0
	cfg.MaxFramesInFlight = 0
	cfg.FragmentShader = ""
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "window size")
	require.ErrorContains(t, err, "max frames in flight")
	require.ErrorContains(t, err, "shader paths are required")
	require.ErrorContains(t, err, "loud")

	require.NoError(t, Default().Validate())
}

func TestBindFlags(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("minirender", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg.BindFlags(fs)

	err := fs.Parse([]string{
		"-width", "1280",
		"-frames-in-flight", "3",
		"-fence-timeout", "2s",
		"-prefer-discrete",
		"-mesh", "room.obj",
		"-clear-color", "0.1, 0.2, 0.3, 1",
	})
	require.NoError(t, err)

	require.Equal(t, 1280, cfg.Width)
	require.Equal(t, 600, cfg.Height)
	require.Equal(t, 3, cfg.MaxFramesInFlight)
	require.Equal(t, 2*time.Second, cfg.FenceTimeout)
	require.True(t, cfg.PreferDiscrete)
	require.Equal(t, "room.obj", cfg.Mesh)
	require.Equal(t, Color{0.1, 0.2, 0.3, 1}, cfg.ClearColor)
	require.NoError(t, cfg.Validate())
}

func TestColorRejectsBadInput(t *testing.T) {
	var c Color
	require.Error(t, c.Set("1,2,3"))
	require.Error(t, c.Set("0,0,x,1"))
	require.Error(t, c.Set("0,0,2,1"))
	require.NoError(t, c.Set("1,1,1,0.5"))
	require.Equal(t, "1,1,1,0.5", c.String())
}
