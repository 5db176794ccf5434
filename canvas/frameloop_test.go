package canvas

import (
	"bytes"
	"image"
	"log"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/raytracer/gpu"
	"github.com/vkngwrapper/raytracer/loader"
)

type fakeBackend struct {
	window Resolution

	acquireErr        error
	acquireSuboptimal bool
	renderErr         error
	renderSuboptimal  bool
	recreateErr       error

	recreated []Resolution
	captures  []Resolution
	reads     int
	rendered  []frameCommands
	retired   []func()
	released  int
	destroyed bool
	cleanups  int
}

func (b *fakeBackend) WindowSize() Resolution { return b.window }

func (b *fakeBackend) RecreateSwapchain(window Resolution) (Resolution, error) {
	if b.recreateErr != nil {
		return Resolution{}, b.recreateErr
	}
	b.recreated = append(b.recreated, window)
	return window, nil
}

func (b *fakeBackend) ResizeCapture(window Resolution) error {
	b.captures = append(b.captures, window)
	return nil
}

func (b *fakeBackend) ReadCapture() (*image.RGBA, error) {
	b.reads++
	last := b.captures[len(b.captures)-1]
	return image.NewRGBA(image.Rect(0, 0, last.Width, last.Height)), nil
}

func (b *fakeBackend) Acquire() (int, bool, error) {
	return 0, b.acquireSuboptimal, b.acquireErr
}

func (b *fakeBackend) Render(cmds frameCommands) (bool, error) {
	b.rendered = append(b.rendered, cmds)
	return b.renderSuboptimal, b.renderErr
}

func (b *fakeBackend) Cleanup() {
	b.cleanups++
	for _, release := range b.retired {
		if release != nil {
			release()
			b.released++
		}
	}
	b.retired = nil
}

func (b *fakeBackend) Retire(release func()) {
	b.retired = append(b.retired, release)
}

func (b *fakeBackend) Destroy() {
	b.Cleanup()
	b.destroyed = true
}

// fakeScene builds output images matching the requested resolution and rebuilds
// whenever rebuildNext is set.
type fakeScene struct {
	builds      []Resolution
	resizes     []Resolution
	events      []Event
	rebuildNext bool
}

func (s *fakeScene) frame(res Resolution) *FrameResources[testCamera] {
	return &FrameResources[testCamera]{
		Output:   &gpu.Image{Width: res.Width, Height: res.Height},
		Dispatch: [3]int{(res.Width + 7) / 8, (res.Height + 7) / 8, 1},
		Update: func(ev Event, t float64) (testCamera, bool) {
			s.events = append(s.events, ev)
			rebuild := s.rebuildNext
			s.rebuildNext = false
			return testCamera{Pos: [4]float32{float32(t)}}, rebuild
		},
		Release: func() {},
	}
}

func (s *fakeScene) Build(res Resolution, env *BuildEnv) (*InitialResources[testCamera], error) {
	s.builds = append(s.builds, res)
	return &InitialResources[testCamera]{
		FrameResources: *s.frame(res),
		Resize: func(res Resolution, env *BuildEnv) (*FrameResources[testCamera], error) {
			s.resizes = append(s.resizes, res)
			return s.frame(res), nil
		},
	}, nil
}

type fakeEvents struct {
	batches [][]Event
}

func (e *fakeEvents) Poll() []Event {
	if len(e.batches) == 0 {
		return []Event{CloseRequestedEvent{}}
	}
	batch := e.batches[0]
	e.batches = e.batches[1:]
	return batch
}

func newTestLoop(t *testing.T, window Resolution, scale int) (*frameLoop[testCamera], *fakeBackend, *fakeScene) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PixelScale = scale
	cfg.CaptureRoot = t.TempDir()
	cfg.Logger = log.New(&bytes.Buffer{}, "", 0)
	require.NoError(t, cfg.validate())

	b := &fakeBackend{window: window}
	scene := &fakeScene{}
	layout := loader.NewLayout().AddImage(0).AddPushConstantRange(0, 32)

	loop := newFrameLoop[testCamera](cfg, b, layout, &BuildEnv{})
	require.NoError(t, loop.init(scene, window))
	return loop, b, scene
}

func TestFrameLoopInit(t *testing.T) {
	loop, b, scene := newTestLoop(t, Resolution{800, 600}, 8)

	assert.Equal(t, Running, loop.state.Phase())
	assert.Equal(t, []Resolution{{100, 75}}, scene.builds)
	assert.Equal(t, []Resolution{{800, 600}}, b.captures)
	assert.Equal(t, []Event{nil}, scene.events)
	assert.Equal(t, [3]int{800, 600, 1}, loop.blit.Dst)
	assert.Equal(t, [3]int{100, 75, 1}, loop.blit.Src)
}

func TestFrameLoopRendersFrame(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{800, 600}, 1)

	require.NoError(t, loop.handle(RedrawEvent{}))
	require.Len(t, b.rendered, 1)
	assert.Equal(t, 1, loop.state.Dispatches)
	assert.Equal(t, 1, b.cleanups)

	cmds := b.rendered[0]
	assert.Len(t, cmds.PushConstants, 32)
	assert.Equal(t, [3]int{100, 75, 1}, cmds.Dispatch)
	assert.Same(t, loop.resources.Output, cmds.Output)
	assert.False(t, cmds.Capture)
}

func TestFrameLoopAcquireOutOfDate(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{800, 600}, 1)
	b.acquireErr = errors.Wrap(ErrOutOfDate, "acquire")

	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Zero(t, loop.state.Dispatches)
	assert.Empty(t, b.rendered)
	assert.True(t, loop.state.ResizePending())

	b.acquireErr = nil
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Equal(t, 1, loop.state.Dispatches)
	assert.Len(t, b.recreated, 1)
	assert.False(t, loop.state.ResizePending())
}

func TestFrameLoopAcquireFailureIsFatal(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{800, 600}, 1)
	b.acquireErr = errors.New("device lost")

	err := loop.handle(RedrawEvent{})
	require.Error(t, err)
	assert.True(t, gpu.IsFatal(err))
	assert.True(t, loop.state.Exiting())
}

func TestFrameLoopSuboptimalRendersAndSchedulesResize(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{800, 600}, 1)
	b.acquireSuboptimal = true

	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Equal(t, 1, loop.state.Dispatches)
	assert.True(t, loop.state.ResizePending())
	assert.Empty(t, b.recreated)
}

func TestFrameLoopPresentFailures(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{800, 600}, 1)

	b.renderErr = ErrOutOfDate
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.True(t, loop.state.ResizePending())

	b.renderErr = errors.New("fence wait failed")
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.False(t, loop.state.Exiting())
}

func TestFrameLoopResize(t *testing.T) {
	loop, b, scene := newTestLoop(t, Resolution{800, 600}, 2)
	first := loop.resources

	b.window = Resolution{1024, 768}
	require.NoError(t, loop.handle(ResizedEvent{Width: 1024, Height: 768}))
	require.NoError(t, loop.handle(RedrawEvent{}))

	assert.Equal(t, []Resolution{{1024, 768}}, b.recreated)
	assert.Equal(t, []Resolution{{800, 600}, {1024, 768}}, b.captures)
	assert.Equal(t, []Resolution{{512, 384}}, scene.resizes)
	assert.NotSame(t, first, loop.resources)
	assert.Equal(t, [3]int{1024, 768, 1}, loop.blit.Dst)
	assert.Equal(t, [3]int{512, 384, 1}, loop.blit.Src)
	require.Len(t, b.retired, 1)

	// Retired resources are reclaimed at the start of the next frame.
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Equal(t, 1, b.released)
}

func TestFrameLoopResizeIdempotent(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{800, 600}, 4)

	loop.state.RequestResize()
	require.NoError(t, loop.handle(RedrawEvent{}))
	once := loop.resources

	loop.state.RequestResize()
	require.NoError(t, loop.handle(RedrawEvent{}))
	twice := loop.resources

	assert.NotSame(t, once, twice)
	assert.Equal(t, once.Dispatch, twice.Dispatch)
	assert.Equal(t, once.Output.Width, twice.Output.Width)
	assert.Equal(t, once.Output.Height, twice.Output.Height)
	assert.Len(t, b.recreated, 2)
}

func TestFrameLoopRebuildRequestedByUpdate(t *testing.T) {
	loop, b, scene := newTestLoop(t, Resolution{800, 600}, 1)
	before := loop.resources

	scene.rebuildNext = true
	require.NoError(t, loop.handle(MouseMotionEvent{DX: 3}))
	assert.True(t, loop.state.ResizePending())

	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.NotSame(t, before, loop.resources)
	assert.Len(t, scene.resizes, 1)
	assert.Len(t, b.recreated, 1)
}

func TestFrameLoopMinimizedSkipsEverything(t *testing.T) {
	loop, b, scene := newTestLoop(t, Resolution{800, 600}, 1)

	b.window = Resolution{}
	require.NoError(t, loop.handle(ResizedEvent{}))
	for i := 0; i < 5; i++ {
		require.NoError(t, loop.handle(RedrawEvent{}))
	}

	assert.Equal(t, Minimized, loop.state.Phase())
	assert.Zero(t, loop.state.Dispatches)
	assert.Empty(t, b.rendered)
	assert.Empty(t, b.recreated)
	assert.Len(t, b.captures, 1)
	assert.Empty(t, scene.resizes)
	assert.Zero(t, b.cleanups)
	assert.Equal(t, 5, loop.state.Frames)
}

func TestFrameLoopUnsupportedDimensionsRetries(t *testing.T) {
	loop, b, scene := newTestLoop(t, Resolution{800, 600}, 1)
	b.recreateErr = errors.Wrap(ErrUnsupportedDimensions, "resizing")

	loop.state.RequestResize()
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.False(t, loop.state.Exiting())
	assert.True(t, loop.state.ResizePending())
	assert.Empty(t, b.rendered)
	assert.Empty(t, scene.resizes)

	b.recreateErr = nil
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Len(t, scene.resizes, 1)
	assert.Len(t, b.rendered, 1)
}

func TestFrameLoopSwapchainFailureIsFatal(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{800, 600}, 1)
	b.recreateErr = errors.New("surface lost")

	loop.state.RequestResize()
	err := loop.handle(RedrawEvent{})
	require.Error(t, err)
	assert.True(t, gpu.IsFatal(err))
	assert.Equal(t, Exiting, loop.state.Phase())
}

func TestFrameLoopRecording(t *testing.T) {
	loop, b, _ := newTestLoop(t, Resolution{64, 48}, 1)

	require.NoError(t, loop.handle(KeyEvent{Scancode: ScancodeF2}))
	assert.False(t, loop.recorder.Active())

	require.NoError(t, loop.handle(KeyEvent{Scancode: ScancodeF2, Released: true}))
	require.True(t, loop.recorder.Active())

	// Nothing has been blitted to the capture image yet.
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Zero(t, b.reads)
	assert.True(t, b.rendered[0].Capture)

	require.NoError(t, loop.handle(RedrawEvent{}))
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Equal(t, 2, b.reads)
	assert.Equal(t, 2, loop.recorder.Frames())
	assert.FileExists(t, loop.recorder.Dir()+"/0.png")

	require.NoError(t, loop.handle(KeyEvent{Scancode: ScancodeF2, Released: true}))
	assert.False(t, loop.recorder.Active())
	require.NoError(t, loop.handle(RedrawEvent{}))
	assert.Equal(t, 2, b.reads)
	assert.False(t, b.rendered[len(b.rendered)-1].Capture)
}

func TestFrameLoopExit(t *testing.T) {
	loop, _, _ := newTestLoop(t, Resolution{800, 600}, 1)
	require.NoError(t, loop.handle(KeyEvent{Scancode: ScancodeEscape, Released: true}))
	assert.True(t, loop.state.Exiting())

	loop, _, _ = newTestLoop(t, Resolution{800, 600}, 1)
	require.NoError(t, loop.handle(CloseRequestedEvent{}))
	assert.True(t, loop.state.Exiting())
}

func TestFrameLoopRun(t *testing.T) {
	loop, b, scene := newTestLoop(t, Resolution{800, 600}, 1)

	events := &fakeEvents{batches: [][]Event{
		{MouseMotionEvent{DX: 1}},
		nil,
	}}
	require.NoError(t, loop.run(events))

	assert.True(t, loop.state.Exiting())
	assert.Equal(t, 2, loop.state.Dispatches)
	assert.Len(t, b.rendered, 2)
	assert.IsType(t, MouseMotionEvent{}, scene.events[1])
	assert.IsType(t, RedrawEvent{}, scene.events[2])

	// Animation time advances by 1/TargetFPS per redraw.
	assert.InDelta(t, 2.0/60, loop.state.T, 1e-9)

	loop.destroy()
	assert.True(t, b.destroyed)
	assert.Equal(t, 1, b.released)
}
