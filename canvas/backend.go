package canvas

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/raytracer/gpu"
)

// ErrOutOfDate is reported when the swapchain no longer matches the surface. The
// frame is dropped and a resize is scheduled.
var ErrOutOfDate = errors.New("swapchain is out of date")

// ErrUnsupportedDimensions is reported when the surface cannot currently hold a
// swapchain of the window size, typically during an interactive resize. The resize
// is retried on the next frame.
var ErrUnsupportedDimensions = errors.New("unsupported swapchain dimensions")

// ErrNoShader is returned by Run when no shader was set.
var ErrNoShader = errors.New("the shader was not set")

type frameCommands struct {
	ImageIndex int

	Output         *gpu.Image
	DescriptorSets []*gpu.DescriptorSet
	Dispatch       [3]int
	PushConstants  []byte

	Blit Blit
	// Capture also blits the output into the capture image.
	Capture bool
}

// backend is the GPU side of the frame loop: swapchain, pipeline, submission and
// the capture image.
type backend interface {
	// WindowSize is the current drawable size of the window.
	WindowSize() Resolution
	// RecreateSwapchain replaces the swapchain and returns its extent.
	RecreateSwapchain(window Resolution) (Resolution, error)
	// ResizeCapture reallocates the capture image and readback buffer.
	ResizeCapture(window Resolution) error
	// ReadCapture copies the capture image to the host, blocking until done.
	ReadCapture() (*image.RGBA, error)
	// Acquire returns the index of the next swapchain image and whether it is
	// suboptimal.
	Acquire() (int, bool, error)
	// Render records, submits and presents one frame, then blocks until the GPU
	// finished it. It reports whether the swapchain became suboptimal.
	Render(cmds frameCommands) (bool, error)
	// Cleanup runs released functions whose resources the GPU no longer uses.
	Cleanup()
	// Retire schedules release to run once in-flight work has finished.
	Retire(release func())
	// Destroy waits for the device and releases everything.
	Destroy()
}
