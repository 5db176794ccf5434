package scene

import (
	"math"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// Config describes the contents of a scene. Relative paths are resolved against the
// directory passed to New.
type Config struct {
	// FOV is the horizontal field of view in degrees.
	FOV         float64 `toml:"fov"`
	CameraSpeed float32 `toml:"camera_speed"`
	// Sensitivity is the camera rotation in radians per pixel of mouse motion.
	Sensitivity float32 `toml:"sensitivity"`
	// Animate spins the first model about the y axis.
	Animate bool `toml:"animate"`

	Textures          []string                 `toml:"textures"`
	Spheres           []SphereConfig           `toml:"spheres"`
	Models            []ModelConfig            `toml:"models"`
	PointLights       []PointLightConfig       `toml:"point_lights"`
	DirectionalLights []DirectionalLightConfig `toml:"directional_lights"`
}

// Material is shared by spheres and models. Texture indexes Config.Textures; without
// one the plain color is used.
type Material struct {
	Color         [4]float32 `toml:"color"`
	Reflexivity   float32    `toml:"reflexivity"`
	DiffuseFactor float32    `toml:"diffuse_factor"`
	Texture       *int32     `toml:"texture"`
}

func (m Material) texture() int32 {
	if m.Texture == nil {
		return -1
	}
	return *m.Texture
}

type SphereConfig struct {
	Pos    [3]float32 `toml:"pos"`
	Radius float32    `toml:"radius"`
	Material
}

type ModelConfig struct {
	// Path is an .obj or .stl file.
	Path string     `toml:"path"`
	Pos  [3]float32 `toml:"pos"`
	Material
}

type PointLightConfig struct {
	Pos       [3]float32 `toml:"pos"`
	Color     [3]float32 `toml:"color"`
	Intensity float32    `toml:"intensity"`
}

type DirectionalLightConfig struct {
	// Dir is normalized when the scene is built.
	Dir       [3]float32 `toml:"dir"`
	Color     [3]float32 `toml:"color"`
	Intensity float32    `toml:"intensity"`
}

// DefaultConfig is a single blue sphere lit by one point light.
func DefaultConfig() Config {
	return Config{
		FOV:         90,
		CameraSpeed: 0.5,
		Sensitivity: DefaultSensitivity,
		Spheres: []SphereConfig{
			{
				Pos:    [3]float32{0, 0, 10},
				Radius: 2,
				Material: Material{
					Color:         [4]float32{0, 0, 1, 1},
					Reflexivity:   0.5,
					DiffuseFactor: 0.5,
				},
			},
		},
		PointLights: []PointLightConfig{
			{Pos: [3]float32{-15, 10, 0}, Color: [3]float32{1, 1, 1}, Intensity: 200},
		},
	}
}

// Validate checks texture references and numeric ranges.
func (c *Config) Validate() error {
	if c.FOV <= 0 || c.FOV >= 180 {
		return errors.Newf("field of view must be between 0 and 180 degrees, got %v", c.FOV)
	}

	checkTexture := func(kind string, i int, m Material) error {
		texture := m.texture()
		if texture < -1 || int(texture) >= len(c.Textures) {
			return errors.Newf("%s %d uses texture %d but %d textures are declared", kind, i, texture, len(c.Textures))
		}
		return nil
	}

	for i, s := range c.Spheres {
		if s.Radius <= 0 {
			return errors.Newf("sphere %d has radius %v", i, s.Radius)
		}
		err := checkTexture("sphere", i, s.Material)
		if err != nil {
			return err
		}
	}
	for i, m := range c.Models {
		if m.Path == "" {
			return errors.Newf("model %d has no path", i)
		}
		err := checkTexture("model", i, m.Material)
		if err != nil {
			return err
		}
	}
	for i, l := range c.DirectionalLights {
		if mgl32.Vec3(l.Dir).Len() == 0 {
			return errors.Newf("directional light %d has no direction", i)
		}
	}
	return nil
}

func (c *Config) fovRadians() float64 {
	return c.FOV * math.Pi / 180
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

func (s SphereConfig) packed() Sphere {
	return Sphere{
		Pos:           [4]float32{s.Pos[0], s.Pos[1], s.Pos[2], 0},
		Col:           s.Color,
		R:             s.Radius,
		Reflexivity:   s.Reflexivity,
		DiffuseFactor: s.DiffuseFactor,
		Texture:       s.texture(),
	}
}

func (m ModelConfig) packed() Model {
	return Model{
		Pos:           [4]float32{m.Pos[0], m.Pos[1], m.Pos[2], 0},
		Col:           m.Color,
		Reflexivity:   m.Reflexivity,
		DiffuseFactor: m.DiffuseFactor,
		Texture:       m.texture(),
	}
}

func (l PointLightConfig) packed() PointLight {
	return PointLight{
		Pos:       [4]float32{l.Pos[0], l.Pos[1], l.Pos[2], 1},
		Col:       l.Color,
		Intensity: l.Intensity,
	}
}

func (l DirectionalLightConfig) packed() DirectionalLight {
	dir := mgl32.Vec3(l.Dir).Normalize()
	return DirectionalLight{
		Dir:       [4]float32{dir[0], dir[1], dir[2], 0},
		Col:       l.Color,
		Intensity: l.Intensity,
	}
}
