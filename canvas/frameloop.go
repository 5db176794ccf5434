package canvas

import (
	"log"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/raytracer/gpu"
	"github.com/vkngwrapper/raytracer/loader"
)

type eventSource interface {
	// Poll returns the events received since the last call without blocking.
	Poll() []Event
}

type frameLoop[P any] struct {
	cfg      Config
	logger   *log.Logger
	backend  backend
	layout   *loader.Layout
	env      *BuildEnv
	recorder *Recorder
	state    *FrameLoopState

	resources     *FrameResources[P]
	resize        ResizeFunc[P]
	pushConstants P

	window Resolution
	blit   Blit
	// captured is set once a frame has been blitted to the capture image since
	// recording started.
	captured bool

	logStart  time.Duration
	logFrames int
}

func newFrameLoop[P any](cfg Config, b backend, layout *loader.Layout, env *BuildEnv) *frameLoop[P] {
	recorder := NewRecorder(cfg.CaptureRoot, cfg.Logger)
	recorder.ProgressEvery = cfg.progressEvery()

	return &frameLoop[P]{
		cfg:      cfg,
		logger:   cfg.Logger,
		backend:  b,
		layout:   layout,
		env:      env,
		recorder: recorder,
		state:    NewFrameLoopState(cfg.TargetFPS),
	}
}

// init builds the initial resources for the current swapchain and enters Running.
func (l *frameLoop[P]) init(scene Scene[P], window Resolution) error {
	l.window = window

	initial, err := scene.Build(DeriveResolution(window, l.cfg.PixelScale), l.env)
	if err != nil {
		return errors.Wrap(err, "failed to build scene")
	}
	if initial == nil {
		return errors.New("scene returned no resources")
	}
	if initial.Resize == nil {
		return errors.New("scene returned no resize function")
	}

	resources := initial.FrameResources
	err = resources.validate()
	if err != nil {
		return err
	}

	err = l.backend.ResizeCapture(window)
	if err != nil {
		return err
	}

	l.resize = initial.Resize
	l.install(&resources)

	var rebuild bool
	l.pushConstants, rebuild = l.resources.Update(nil, l.state.T)
	if rebuild {
		l.state.RequestResize()
	}

	l.logStart = hrtime.Now()
	l.state.Start()
	return nil
}

func (l *frameLoop[P]) install(resources *FrameResources[P]) {
	l.resources = resources
	l.blit = ComputeBlit(l.window, Resolution{Width: resources.Output.Width, Height: resources.Output.Height})
}

func (l *frameLoop[P]) run(events eventSource) error {
	for !l.state.Exiting() {
		for _, ev := range events.Poll() {
			err := l.handle(ev)
			if err != nil {
				return err
			}
		}

		err := l.handle(RedrawEvent{})
		if err != nil {
			return err
		}
	}
	return nil
}

// handle passes ev to the scene, then reacts to it. A returned error ends the loop.
func (l *frameLoop[P]) handle(ev Event) error {
	if l.state.Exiting() {
		return nil
	}

	pushConstants, rebuild := l.resources.Update(ev, l.state.T)
	l.pushConstants = pushConstants
	if rebuild {
		l.state.RequestResize()
	}

	switch e := ev.(type) {
	case CloseRequestedEvent:
		l.state.Close()
	case ResizedEvent:
		l.state.WindowResized(e.Width, e.Height)
	case KeyEvent:
		if !e.Released {
			break
		}
		switch e.Scancode {
		case ScancodeEscape:
			l.state.Close()
		case ScancodeF2:
			l.toggleRecording()
		}
	case RedrawEvent:
		err := l.frame()
		if err != nil {
			l.state.Close()
			return err
		}
	}

	return nil
}

func (l *frameLoop[P]) toggleRecording() {
	wasActive := l.recorder.Active()
	err := l.recorder.Toggle()
	if err != nil {
		l.logger.Printf("Failed to start recording: %+v", err)
		return
	}
	if wasActive {
		l.logger.Printf("Stopped recording after %d frames", l.recorder.Frames())
		return
	}
	l.captured = false
}

func (l *frameLoop[P]) logFrameTime() {
	l.logFrames++
	if l.logFrames < l.cfg.LogRate {
		return
	}

	now := hrtime.Now()
	elapsed := (now - l.logStart).Seconds()
	l.logStart = now
	frames := l.logFrames
	l.logFrames = 0

	if elapsed <= 0 {
		return
	}
	l.logger.Printf("Frame time: %.3fms, FPS: %.1f", elapsed*1000/float64(frames), float64(frames)/elapsed)
}

// frame runs one redraw. Only fatal errors are returned.
func (l *frameLoop[P]) frame() error {
	l.state.Tick()
	l.logFrameTime()

	// Nothing is allocated or submitted while minimized.
	if !l.state.ShouldRender() {
		return nil
	}

	l.backend.Cleanup()

	if l.recorder.Active() && l.captured {
		l.saveCapture()
	}

	if l.state.BeginResize() {
		err := l.rebuild()
		if errors.Is(err, ErrUnsupportedDimensions) {
			l.state.EndResize(false)
			return nil
		}
		if err != nil {
			return err
		}
		l.state.EndResize(true)
	}

	imageIndex, suboptimal, err := l.backend.Acquire()
	if errors.Is(err, ErrOutOfDate) {
		l.state.RequestResize()
		return nil
	}
	if err != nil {
		return gpu.Fatal(errors.Wrap(err, "failed to acquire next image"))
	}
	if suboptimal {
		l.state.RequestResize()
	}

	pushConstants, err := EncodePushConstants(l.pushConstants)
	if err != nil {
		return err
	}
	err = l.layout.ValidatePushConstants(len(pushConstants))
	if err != nil {
		return err
	}

	capture := l.recorder.Active()
	suboptimal, err = l.backend.Render(frameCommands{
		ImageIndex:     imageIndex,
		Output:         l.resources.Output,
		DescriptorSets: l.resources.DescriptorSets,
		Dispatch:       l.resources.Dispatch,
		PushConstants:  pushConstants,
		Blit:           l.blit,
		Capture:        capture,
	})
	switch {
	case err == nil:
		l.state.Dispatches++
		if capture {
			l.captured = true
		}
	case errors.Is(err, ErrOutOfDate):
		l.state.Dispatches++
		l.state.RequestResize()
	default:
		l.logger.Printf("Failed to flush frame: %+v", err)
	}
	if suboptimal {
		l.state.RequestResize()
	}

	return nil
}

func (l *frameLoop[P]) saveCapture() {
	img, err := l.backend.ReadCapture()
	if err != nil {
		l.logger.Printf("Failed to read capture: %+v", err)
		return
	}

	_, err = l.recorder.Save(img)
	if err != nil {
		l.logger.Printf("Failed to save capture: %+v", err)
	}
}

// rebuild recreates the swapchain, the capture target and the frame resources for
// the current window size. The previous resources are retired, not mutated.
func (l *frameLoop[P]) rebuild() error {
	window := l.backend.WindowSize()
	if window.Empty() {
		return ErrUnsupportedDimensions
	}

	extent, err := l.backend.RecreateSwapchain(window)
	if err != nil {
		if errors.Is(err, ErrUnsupportedDimensions) {
			return err
		}
		return gpu.Fatal(errors.Wrap(err, "failed to recreate swapchain"))
	}
	l.window = extent

	err = l.backend.ResizeCapture(extent)
	if err != nil {
		return errors.Wrap(err, "failed to reallocate capture target")
	}

	resources, err := l.resize(DeriveResolution(extent, l.cfg.PixelScale), l.env)
	if err != nil {
		return errors.Wrap(err, "failed to rebuild scene")
	}
	err = resources.validate()
	if err != nil {
		return err
	}

	old := l.resources
	l.backend.Retire(old.release)
	l.install(resources)
	l.captured = false
	return nil
}

// destroy releases the current frame resources once the device is idle.
func (l *frameLoop[P]) destroy() {
	if l.resources != nil {
		l.backend.Retire(l.resources.release)
		l.resources = nil
	}
	l.backend.Destroy()
}
