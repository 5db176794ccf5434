package main

import (
	"fmt"
	"log"
	"os"

	"github.com/vkngwrapper/raytracer/canvas"
	"github.com/vkngwrapper/raytracer/loader"
	"github.com/vkngwrapper/raytracer/scene"
)

type RaytracerApplication struct {
	cfg Config

	scene  *scene.Scene
	canvas *canvas.Canvas[scene.Camera]
}

func (app *RaytracerApplication) Run() error {
	err := app.initScene()
	if err != nil {
		return err
	}

	err = app.initCanvas()
	if err != nil {
		return err
	}
	defer app.cleanup()

	return app.canvas.Run()
}

func (app *RaytracerApplication) initScene() error {
	var err error
	app.scene, err = scene.New(app.cfg.Scene, app.cfg.dir, app.cfg.Window.TargetFPS, log.Default())
	return err
}

func (app *RaytracerApplication) initCanvas() error {
	var err error
	app.canvas, err = canvas.New[scene.Camera](app.cfg.canvasConfig(), app.scene)
	if err != nil {
		return err
	}

	// The texture array is sized at compile time.
	args := append([]string{fmt.Sprintf("-DTEXTURE_COUNT=%d", app.scene.TextureCount())}, app.cfg.Shader.Args...)

	program, err := loader.Load(app.canvas.Device(), app.cfg.shaderPath(), app.scene.Layout(), loader.WithCompiler(loader.GLSLC{
		Executable: app.cfg.Shader.Compiler,
		Args:       args,
	}))
	if err != nil {
		app.canvas.Destroy()
		return err
	}
	app.canvas.SetShader(program)
	return nil
}

// cleanup runs after the frame loop has waited for the device to go idle.
func (app *RaytracerApplication) cleanup() {
	app.scene.Destroy()
	app.canvas.Destroy()
}

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	app := &RaytracerApplication{cfg: cfg}

	err = app.Run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
