package window

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/veandco/go-sdl2/sdl"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		event sdl.Event
		want  Event
	}{
		{&sdl.QuitEvent{}, EventQuit},
		{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_CLOSE}, EventQuit},
		{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_MINIMIZED}, EventMinimized},
		{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESTORED}, EventRestored},
		{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_RESIZED, Data1: 640, Data2: 480}, EventResized},
		{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_SIZE_CHANGED, Data1: 640, Data2: 0}, EventMinimized},
		{&sdl.WindowEvent{Event: sdl.WINDOWEVENT_FOCUS_GAINED}, EventNone},
		{&sdl.KeyboardEvent{}, EventNone},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Translate(tc.event), "%T %+v", tc.event, tc.event)
	}
}

func TestEventString(t *testing.T) {
	require.Equal(t, "Resized", EventResized.String())
	require.Equal(t, "unknown", Event(99).String())
}
