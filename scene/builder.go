// Package scene is the ray-traced demo scene: spheres, triangle meshes, point and
// directional lights and textures, seen through a free-flying camera.
package scene

import (
	"encoding/binary"
	"image"
	"log"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/raytracer/canvas"
	"github.com/vkngwrapper/raytracer/gpu"
	"github.com/vkngwrapper/raytracer/loader"
)

// OutputFormat is the format of the image the shader renders into. It matches the
// rgba8 qualifier of the output image in shaders/ray3d.glsl.
const OutputFormat = core1_0.FormatR8G8B8A8UnsignedNormalized

// StorageBuffers is the number of storage buffers after the output image: rays,
// spheres, models, vertices, uvs, indices, normals, point lights and directional
// lights, in that binding order.
const StorageBuffers = 9

const bufferUsage = core1_0.BufferUsageStorageBuffer | core1_0.BufferUsageTransferSrc | core1_0.BufferUsageTransferDst

// Scene builds and animates the demo scene. Meshes and images are decoded by New so
// that asset errors surface before any GPU work.
type Scene struct {
	cfg       Config
	targetFPS float64
	logger    *log.Logger

	geometry Geometry
	images   []*image.RGBA

	controller *Controller
	res        *resources
}

// resources are allocated once and shared by every resolution.
type resources struct {
	spheres           *gpu.Buffer
	models            *gpu.Buffer
	vertices          *gpu.Buffer
	uvs               *gpu.Buffer
	indices           *gpu.Buffer
	normals           *gpu.Buffer
	pointLights       *gpu.Buffer
	directionalLights *gpu.Buffer
	textures          []*gpu.Texture
}

func (r *resources) buffers() []*gpu.Buffer {
	return []*gpu.Buffer{r.spheres, r.models, r.vertices, r.uvs, r.indices, r.normals, r.pointLights, r.directionalLights}
}

func (r *resources) destroy() {
	for _, b := range r.buffers() {
		if b != nil {
			b.Destroy()
		}
	}
	for _, t := range r.textures {
		t.Destroy()
	}
}

// New loads the assets of cfg, resolving relative paths against dir. targetFPS sets
// the animation speed.
func New(cfg Config, dir string, targetFPS float64, logger *log.Logger) (*Scene, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Scene{
		cfg:        cfg,
		targetFPS:  targetFPS,
		logger:     logger,
		controller: NewController(cfg.CameraSpeed),
	}
	if cfg.Sensitivity > 0 {
		s.controller.Sensitivity = cfg.Sensitivity
	}

	for _, m := range cfg.Models {
		mesh, err := LoadMesh(resolve(dir, m.Path))
		if err != nil {
			return nil, err
		}
		s.geometry.Add(mesh, m.packed())
	}
	logger.Printf("Loaded %d models: %d vertices, %d triangles", len(s.geometry.Models), len(s.geometry.Vertices), len(s.geometry.Indices))

	for _, path := range cfg.Textures {
		img, err := LoadImage(resolve(dir, path))
		if err != nil {
			return nil, err
		}
		s.images = append(s.images, img)
	}
	if len(s.images) == 0 {
		s.images = append(s.images, White())
	}

	return s, nil
}

// TextureCount is the length of the sampled image array.
func (s *Scene) TextureCount() int {
	return len(s.images)
}

// Layout is the resource layout of shaders/ray3d.glsl: set 0 holds the output image,
// the storage buffers and the texture array.
func (s *Scene) Layout() *loader.Layout {
	layout := loader.NewLayout().AddImage(0)
	for i := 0; i < StorageBuffers; i++ {
		layout.AddBuffer(0, false)
	}
	layout.AddSampledImageArray(0, s.TextureCount(), true)
	layout.AddPushConstantRange(0, binary.Size(Camera{}))
	return layout
}

func (s *Scene) spheres() []Sphere {
	spheres := make([]Sphere, 0, len(s.cfg.Spheres))
	for _, sc := range s.cfg.Spheres {
		spheres = append(spheres, sc.packed())
	}
	if len(spheres) == 0 {
		spheres = append(spheres, Sphere{Texture: -1})
	}
	return spheres
}

func (s *Scene) pointLights() []PointLight {
	lights := make([]PointLight, 0, len(s.cfg.PointLights))
	for _, l := range s.cfg.PointLights {
		lights = append(lights, l.packed())
	}
	if len(lights) == 0 {
		lights = append(lights, PointLight{})
	}
	return lights
}

func (s *Scene) directionalLights() []DirectionalLight {
	lights := make([]DirectionalLight, 0, len(s.cfg.DirectionalLights))
	for _, l := range s.cfg.DirectionalLights {
		lights = append(lights, l.packed())
	}
	if len(lights) == 0 {
		lights = append(lights, DirectionalLight{Dir: [4]float32{0, -1, 0, 0}})
	}
	return lights
}

// Build allocates the resolution independent resources and the first frame.
func (s *Scene) Build(res canvas.Resolution, env *canvas.BuildEnv) (*canvas.InitialResources[Camera], error) {
	if s.res != nil {
		return nil, errors.New("scene is already built")
	}

	r, err := s.allocate(env.Context)
	if err != nil {
		r.destroy()
		return nil, err
	}
	s.res = r

	frame, err := s.resize(res, env)
	if err != nil {
		return nil, err
	}

	return &canvas.InitialResources[Camera]{
		FrameResources: *frame,
		Resize:         s.resize,
	}, nil
}

func (s *Scene) allocate(ctx *gpu.Context) (*resources, error) {
	r := &resources{}
	geometry := s.geometry.padded()

	var err error
	r.spheres, err = gpu.BuildBuffer(ctx, bufferUsage, s.spheres(), true)
	if err != nil {
		return r, errors.Wrap(err, "failed to build sphere buffer")
	}
	r.models, err = gpu.BuildBuffer(ctx, bufferUsage, geometry.Models, true)
	if err != nil {
		return r, errors.Wrap(err, "failed to build model buffer")
	}
	r.vertices, err = gpu.BuildBuffer(ctx, bufferUsage, geometry.Vertices, true)
	if err != nil {
		return r, errors.Wrap(err, "failed to build vertex buffer")
	}
	r.uvs, err = gpu.BuildBuffer(ctx, bufferUsage, geometry.UVs, false)
	if err != nil {
		return r, errors.Wrap(err, "failed to build uv buffer")
	}
	r.indices, err = gpu.BuildBuffer(ctx, bufferUsage, geometry.Indices, false)
	if err != nil {
		return r, errors.Wrap(err, "failed to build index buffer")
	}
	r.normals, err = gpu.BuildBuffer(ctx, bufferUsage, geometry.Normals, true)
	if err != nil {
		return r, errors.Wrap(err, "failed to build normal buffer")
	}
	r.pointLights, err = gpu.BuildBuffer(ctx, bufferUsage, s.pointLights(), true)
	if err != nil {
		return r, errors.Wrap(err, "failed to build point light buffer")
	}
	r.directionalLights, err = gpu.BuildBuffer(ctx, bufferUsage, s.directionalLights(), true)
	if err != nil {
		return r, errors.Wrap(err, "failed to build directional light buffer")
	}

	for i, img := range s.images {
		texture, err := gpu.NewTexture(ctx, img)
		if err != nil {
			return r, errors.Wrapf(err, "failed to upload texture %d", i)
		}
		r.textures = append(r.textures, texture)
	}

	return r, nil
}

// resize builds the output image, the ray buffer and the descriptor set for res.
func (s *Scene) resize(res canvas.Resolution, env *canvas.BuildEnv) (*canvas.FrameResources[Camera], error) {
	if len(env.SetLayouts) == 0 {
		return nil, errors.New("program has no descriptor set layout")
	}

	output, err := gpu.BuildImage(env.Context, res.Width, res.Height, OutputFormat)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build output image")
	}

	rays, err := gpu.BuildBuffer(env.Context, bufferUsage, GenerateRays(res, s.cfg.fovRadians()), false)
	if err != nil {
		output.Destroy()
		return nil, errors.Wrap(err, "failed to build ray buffer")
	}

	builder := gpu.NewDescriptorSetBuilder(env.Context, env.SetLayouts[0]).
		AddImage(output).
		AddBuffer(rays)
	for _, b := range s.res.buffers() {
		builder.AddBuffer(b)
	}
	builder.EnterArray()
	for _, t := range s.res.textures {
		builder.AddSampledImage(t)
	}
	set, err := builder.LeaveArray().Build()
	if err != nil {
		rays.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "failed to build descriptor set")
	}

	return &canvas.FrameResources[Camera]{
		DescriptorSets: []*gpu.DescriptorSet{set},
		Output:         output,
		Dispatch:       Dispatch(res),
		Update:         s.update,
		Release: func() {
			set.Destroy()
			rays.Destroy()
			output.Destroy()
		},
	}, nil
}

// update moves the camera and, on redraw, advances the animation.
func (s *Scene) update(ev canvas.Event, t float64) (Camera, bool) {
	camera := s.controller.Handle(ev)

	if _, ok := ev.(canvas.RedrawEvent); ok && s.cfg.Animate {
		s.animate()
	}
	return camera, false
}

// AnimationStep is the rotation of the first model per redraw.
func (s *Scene) AnimationStep() float32 {
	if s.targetFPS <= 0 {
		return 0
	}
	return float32(0.25 * math.Pi / s.targetFPS)
}

// animate spins the first model about its own y axis. A buffer still in use by the
// GPU is skipped until the next redraw.
func (s *Scene) animate() {
	if s.res == nil || len(s.geometry.Models) == 0 {
		return
	}
	start, end := s.geometry.Range(0)
	angle := s.AnimationStep()

	for _, b := range []*gpu.Buffer{s.res.vertices, s.res.normals} {
		err := gpu.WriteSlice(b, func(vecs [][4]float32) error {
			RotateY(vecs[start:end], angle)
			return nil
		})
		if errors.Is(err, gpu.ErrBufferBusy) {
			continue
		}
		if err != nil {
			s.logger.Printf("Failed to animate model: %+v", err)
		}
	}
}

// Destroy frees the resolution independent resources. The frame resources are
// released by the canvas.
func (s *Scene) Destroy() {
	if s.res != nil {
		s.res.destroy()
		s.res = nil
	}
}
