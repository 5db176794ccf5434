// Package canvas presents the output of a compute shader in a window. It owns the
// device context, the swapchain and the frame loop, and delegates every shader
// resource to a Scene.
package canvas

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/extensions/khr_surface"
	"github.com/vkngwrapper/raytracer/gpu"
	"github.com/vkngwrapper/raytracer/loader"
)

// Canvas renders a Scene whose push constants have type P.
type Canvas[P any] struct {
	cfg   Config
	scene Scene[P]

	window  *sdlWindow
	ctx     *gpu.Context
	surface khr_surface.Surface
	program *loader.Program
}

// New opens a hidden window and initializes the device. The window is shown by Run.
func New[P any](cfg Config, scene Scene[P]) (*Canvas[P], error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if scene == nil {
		return nil, errors.New("no scene")
	}

	c := &Canvas[P]{cfg: cfg, scene: scene}

	c.window, err = openWindow(cfg)
	if err != nil {
		return nil, gpu.Fatal(errors.Wrap(err, "failed to open window"))
	}

	vkLoader, err := c.window.loader()
	if err != nil {
		c.Destroy()
		return nil, gpu.Fatal(err)
	}

	c.ctx, err = gpu.Init(gpu.InitOptions{
		Loader:             vkLoader,
		InstanceExtensions: c.window.instanceExtensions(),
		ApplicationName:    cfg.Title,
		Validation:         cfg.Validation,
		Logger:             cfg.Logger,
	})
	if err != nil {
		c.Destroy()
		return nil, err
	}

	c.surface, err = c.window.createSurface(c.ctx.Instance)
	if err != nil {
		c.Destroy()
		return nil, gpu.Fatal(errors.Wrap(err, "failed to create window surface"))
	}

	return c, nil
}

// Device is the device context, for loading shaders.
func (c *Canvas[P]) Device() *gpu.Context {
	return c.ctx
}

// SetShader hands the program over to the canvas, which destroys it with itself.
func (c *Canvas[P]) SetShader(program *loader.Program) {
	if c.program != nil && c.program != program {
		c.program.Destroy()
	}
	c.program = program
}

// Run shows the window and renders until the window is closed. Errors marked with
// gpu.ErrFatal mean the device or the window system cannot go on.
func (c *Canvas[P]) Run() error {
	if c.program == nil {
		return ErrNoShader
	}

	b, err := newVulkanBackend(c.ctx, c.window.window, c.surface, c.program, c.cfg)
	if err != nil {
		return err
	}

	env := &BuildEnv{Context: c.ctx, SetLayouts: c.program.SetLayouts}
	loop := newFrameLoop[P](c.cfg, b, c.program.Layout, env)
	defer loop.destroy()

	err = loop.init(c.scene, b.swapchainExtent)
	if err != nil {
		return err
	}

	c.window.show()
	return loop.run(c.window)
}

// Destroy releases the program, the device and the window.
func (c *Canvas[P]) Destroy() {
	if c.program != nil {
		c.program.Destroy()
		c.program = nil
	}

	if c.surface != nil {
		c.surface.Destroy(nil)
		c.surface = nil
	}

	if c.ctx != nil {
		c.ctx.Destroy()
		c.ctx = nil
	}

	if c.window != nil {
		c.window.destroy()
		c.window = nil
	}
}
