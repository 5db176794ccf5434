package canvas

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/extensions/khr_surface"
	khr_surface_driver "github.com/vkngwrapper/extensions/khr_surface/driver"
)

type sdlWindow struct {
	window *sdl.Window
}

func openWindow(cfg Config) (*sdlWindow, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, err
	}

	window, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_HIDDEN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, err
	}

	return &sdlWindow{window: window}, nil
}

func (w *sdlWindow) loader() (core.Loader, error) {
	return core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
}

func (w *sdlWindow) instanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *sdlWindow) createSurface(instance core1_0.Instance) (khr_surface.Surface, error) {
	// SDL wants the VkInstance as a pointer and hands back a pointer to the new VkSurfaceKHR.
	surfacePtr, err := w.window.VulkanCreateSurface((*byte)(unsafe.Pointer(instance.Handle())))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create window surface")
	}

	surfaceDriver := khr_surface_driver.CreateDriverFromCore(instance.Driver())
	surface, _, err := khr_surface.CreateSurface(*(*unsafe.Pointer)(surfacePtr), instance, surfaceDriver)
	return surface, err
}

func (w *sdlWindow) show() {
	w.window.Show()
	// Camera control reads relative motion.
	sdl.SetRelativeMouseMode(true)
}

// Poll drains the SDL event queue.
func (w *sdlWindow) Poll() []Event {
	var events []Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		ev := translateEvent(event, w.drawableSize)
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func (w *sdlWindow) drawableSize() (int, int) {
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

func (w *sdlWindow) destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}

// translateEvent maps an SDL event to an Event, or nil for events the loop ignores.
func translateEvent(event sdl.Event, drawableSize func() (int, int)) Event {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return CloseRequestedEvent{}
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return CloseRequestedEvent{}
		case sdl.WINDOWEVENT_MINIMIZED:
			return ResizedEvent{}
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_RESTORED:
			width, height := drawableSize()
			return ResizedEvent{Width: width, Height: height}
		}
	case *sdl.KeyboardEvent:
		if e.Repeat != 0 {
			return nil
		}
		return KeyEvent{
			Scancode: Scancode(e.Keysym.Scancode),
			Released: e.Type == sdl.KEYUP,
		}
	case *sdl.MouseMotionEvent:
		return MouseMotionEvent{DX: float64(e.XRel), DY: float64(e.YRel)}
	}
	return nil
}
