package canvas

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/raytracer/gpu"
)

// Resolution is a size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Empty reports whether either axis is zero.
func (r Resolution) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// BuildEnv is what a scene needs to allocate GPU resources for the loaded program.
type BuildEnv struct {
	Context *gpu.Context
	// SetLayouts are the descriptor set layouts of the program, one per set.
	SetLayouts []core1_0.DescriptorSetLayout
}

// UpdateFunc is called with every event, or nil once at startup, and the animation
// time. It may animate GPU buffers through scoped mappings and returns the push
// constants for the next dispatch and whether all frame resources must be rebuilt.
type UpdateFunc[P any] func(ev Event, t float64) (P, bool)

// FrameResources is everything one dispatch needs. It is replaced as a whole on
// every resize or requested rebuild.
type FrameResources[P any] struct {
	// DescriptorSets are bound in order starting at set 0.
	DescriptorSets []*gpu.DescriptorSet
	// Output is the storage image the shader renders into, kept in the general layout.
	Output *gpu.Image
	// Dispatch is the workgroup count.
	Dispatch [3]int
	Update   UpdateFunc[P]
	// Release frees the resolution dependent resources. It is called once the GPU
	// no longer uses them.
	Release func()
}

// ResizeFunc rebuilds the frame resources for a new output resolution, keeping any
// resolution independent resources it closes over.
type ResizeFunc[P any] func(res Resolution, env *BuildEnv) (*FrameResources[P], error)

// InitialResources is the result of the first build.
type InitialResources[P any] struct {
	FrameResources[P]
	Resize ResizeFunc[P]
}

// Scene allocates the resources for a compute program with push constants of type P.
// P must be a fixed-size value without implicit padding.
type Scene[P any] interface {
	Build(res Resolution, env *BuildEnv) (*InitialResources[P], error)
}

// SceneFunc adapts a function to Scene.
type SceneFunc[P any] func(res Resolution, env *BuildEnv) (*InitialResources[P], error)

func (f SceneFunc[P]) Build(res Resolution, env *BuildEnv) (*InitialResources[P], error) {
	return f(res, env)
}

func (r *FrameResources[P]) validate() error {
	if r == nil {
		return errors.New("scene returned no frame resources")
	}
	if r.Output == nil {
		return errors.New("scene returned no output image")
	}
	if r.Update == nil {
		return errors.New("scene returned no update function")
	}
	for i, n := range r.Dispatch {
		if n <= 0 {
			return errors.Newf("dispatch size %v is empty along axis %d", r.Dispatch, i)
		}
	}
	return nil
}

func (r *FrameResources[P]) release() {
	if r != nil && r.Release != nil {
		r.Release()
		r.Release = nil
	}
}
