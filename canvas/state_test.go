package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameLoopStateTransitions(t *testing.T) {
	s := NewFrameLoopState(60)
	assert.Equal(t, Initializing, s.Phase())
	assert.False(t, s.ShouldRender())

	s.WindowResized(800, 600)
	assert.Equal(t, Initializing, s.Phase())
	assert.False(t, s.ResizePending())

	s.Start()
	assert.Equal(t, Running, s.Phase())
	assert.True(t, s.ShouldRender())

	s.WindowResized(1024, 768)
	assert.True(t, s.ResizePending())
	assert.True(t, s.BeginResize())
	assert.Equal(t, Resizing, s.Phase())
	assert.False(t, s.ResizePending())
	assert.False(t, s.ShouldRender())
	s.EndResize(true)
	assert.Equal(t, Running, s.Phase())
	assert.False(t, s.BeginResize())

	s.Close()
	assert.Equal(t, Exiting, s.Phase())
	s.WindowResized(800, 600)
	s.RequestResize()
	s.Start()
	assert.Equal(t, Exiting, s.Phase())
	assert.False(t, s.ResizePending())
}

func TestFrameLoopStateMinimized(t *testing.T) {
	for _, size := range [][2]int{{0, 600}, {800, 0}, {0, 0}} {
		s := NewFrameLoopState(60)
		s.Start()

		s.WindowResized(size[0], size[1])
		assert.Equal(t, Minimized, s.Phase())
		assert.False(t, s.ShouldRender())

		// A pending resize waits until the window is restored.
		s.RequestResize()
		assert.False(t, s.BeginResize())

		s.WindowResized(640, 480)
		assert.Equal(t, Running, s.Phase())
		assert.True(t, s.BeginResize())
	}
}

func TestFrameLoopStateFailedResizeStaysPending(t *testing.T) {
	s := NewFrameLoopState(60)
	s.Start()
	s.RequestResize()

	assert.True(t, s.BeginResize())
	s.EndResize(false)
	assert.Equal(t, Running, s.Phase())
	assert.True(t, s.ResizePending())
}

func TestFrameLoopStateClock(t *testing.T) {
	s := NewFrameLoopState(50)
	for i := 0; i < 100; i++ {
		s.Tick()
	}
	assert.Equal(t, 100, s.Frames)
	assert.InDelta(t, 2.0, s.T, 1e-9)

	s = NewFrameLoopState(0)
	s.Tick()
	assert.Zero(t, s.T)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "Minimized", Minimized.String())
	assert.Equal(t, "Unknown", Phase(42).String())
}
