package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestOrFallsBackToNop(t *testing.T) {
	l := Or(nil)
	require.False(t, l.Enabled(context.Background(), slog.LevelError))

	var buf bytes.Buffer
	text := NewText(&buf, slog.LevelInfo)
	require.Same(t, text, Or(text))
	text.Debug("hidden")
	text.Info("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
