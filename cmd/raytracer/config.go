package main

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/vkngwrapper/raytracer/canvas"
	"github.com/vkngwrapper/raytracer/scene"
)

type WindowConfig struct {
	Title       string  `toml:"title"`
	Width       int     `toml:"width"`
	Height      int     `toml:"height"`
	PixelScale  int     `toml:"pixel_scale"`
	TargetFPS   float64 `toml:"target_fps"`
	LogRate     int     `toml:"log_rate"`
	PresentMode string  `toml:"present_mode"`
	CaptureRoot string  `toml:"capture_root"`
	Validation  bool    `toml:"validation"`
}

type ShaderConfig struct {
	Path string `toml:"path"`
	// Compiler is the glslc executable.
	Compiler string   `toml:"compiler"`
	Args     []string `toml:"args"`
}

// Config is the TOML file read with --config.
type Config struct {
	Window WindowConfig `toml:"window"`
	Shader ShaderConfig `toml:"shader"`
	Scene  scene.Config `toml:"scene"`

	// dir is the directory of the config file, against which asset and shader paths
	// are resolved.
	dir            string
	shaderFromFlag bool
}

func defaultConfig() Config {
	c := canvas.DefaultConfig()
	return Config{
		Window: WindowConfig{
			Title:       c.Title,
			Width:       c.Width,
			Height:      c.Height,
			PixelScale:  c.PixelScale,
			TargetFPS:   30,
			LogRate:     c.LogRate,
			PresentMode: string(c.PresentMode),
			CaptureRoot: c.CaptureRoot,
		},
		Shader: ShaderConfig{
			Path: "shaders/ray3d.glsl",
		},
		Scene: scene.DefaultConfig(),
	}
}

// loadConfig reads path over the defaults. Keys missing from the file keep their
// default values.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}

	// Scene contents replace the default scene rather than merging into it.
	cfg.Scene.Spheres = nil
	cfg.Scene.PointLights = nil

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			return cfg, errors.Newf("%s:\n%s", path, decodeErr.String())
		}
		return cfg, errors.Wrapf(err, "failed to decode %s", path)
	}

	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// parseArgs loads the config named by --config and applies the other flags on top.
func parseArgs(args []string) (Config, error) {
	flags := pflag.NewFlagSet("raytracer", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "TOML scene and window configuration")
	shader := flags.String("shader", "", "compute shader to load")
	scale := flags.IntP("scale", "s", 0, "window pixels per rendered pixel along each axis")
	fps := flags.Float64("fps", 0, "animation frames per second")
	presentMode := flags.String("present-mode", "", "preferred present mode: immediate, mailbox or fifo")
	validation := flags.Bool("validation", false, "enable the Vulkan validation layers")

	err := flags.Parse(args)
	if err != nil {
		return Config{}, err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return cfg, err
	}

	if flags.Changed("shader") {
		cfg.Shader.Path = *shader
		cfg.shaderFromFlag = true
	}
	if flags.Changed("scale") {
		cfg.Window.PixelScale = *scale
	}
	if flags.Changed("fps") {
		cfg.Window.TargetFPS = *fps
	}
	if flags.Changed("present-mode") {
		cfg.Window.PresentMode = *presentMode
	}
	if flags.Changed("validation") {
		cfg.Window.Validation = *validation
	}

	return cfg, nil
}

// canvasConfig is the window section as canvas options.
func (c Config) canvasConfig() canvas.Config {
	return canvas.Config{
		Title:       c.Window.Title,
		Width:       c.Window.Width,
		Height:      c.Window.Height,
		PixelScale:  c.Window.PixelScale,
		TargetFPS:   c.Window.TargetFPS,
		LogRate:     c.Window.LogRate,
		CaptureRoot: c.Window.CaptureRoot,
		PresentMode: canvas.PresentMode(c.Window.PresentMode),
		Validation:  c.Window.Validation,
	}
}

// shaderPath resolves the shader against the config file, unless it was given on the
// command line.
func (c Config) shaderPath() string {
	if c.shaderFromFlag || c.dir == "" || filepath.IsAbs(c.Shader.Path) {
		return c.Shader.Path
	}
	return filepath.Join(c.dir, c.Shader.Path)
}
