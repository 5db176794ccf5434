package scene

import (
	"encoding/binary"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/raytracer/canvas"
)

func TestGPUTypeSizes(t *testing.T) {
	tests := []struct {
		value any
		size  int
		mem   uintptr
	}{
		{Ray{}, 32, unsafe.Sizeof(Ray{})},
		{Sphere{}, 48, unsafe.Sizeof(Sphere{})},
		{Model{}, 64, unsafe.Sizeof(Model{})},
		{PointLight{}, 32, unsafe.Sizeof(PointLight{})},
		{DirectionalLight{}, 32, unsafe.Sizeof(DirectionalLight{})},
		{Triangle{}, 16, unsafe.Sizeof(Triangle{})},
		{Camera{}, 32, unsafe.Sizeof(Camera{})},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.size, binary.Size(tt.value), "%T", tt.value)
		assert.Equal(t, uintptr(tt.size), tt.mem, "%T", tt.value)
	}
}

func TestRayDepth(t *testing.T) {
	assert.InDelta(t, 400, RayDepth(800, DefaultFOV), 1e-3)
	assert.InDelta(t, 2, RayDepth(4, DefaultFOV), 1e-6)

	// A narrower field of view pushes the image plane away.
	assert.Greater(t, RayDepth(800, math.Pi/4), RayDepth(800, DefaultFOV))
}

func TestGenerateRays(t *testing.T) {
	rays := GenerateRays(canvas.Resolution{Width: 4, Height: 2}, DefaultFOV)
	require.Len(t, rays, 8)

	// Top-left pixel: x = -2, y = 1, depth 2.
	assert.InDeltaSlice(t, []float32{-2.0 / 3, 1.0 / 3, 2.0 / 3, 0}, rays[0].Dir[:], 1e-6)

	// Pixel (2, 1) is on the optical axis.
	assert.InDeltaSlice(t, []float32{0, 0, 1, 0}, rays[6].Dir[:], 1e-6)

	for i, r := range rays {
		length := math.Sqrt(float64(r.Dir[0]*r.Dir[0] + r.Dir[1]*r.Dir[1] + r.Dir[2]*r.Dir[2]))
		assert.InDelta(t, 1, length, 1e-5, "ray %d", i)
		assert.Equal(t, [4]float32{}, r.Origin)
		assert.Greater(t, r.Dir[2], float32(0))
	}
}

func TestGenerateRaysEmpty(t *testing.T) {
	assert.Empty(t, GenerateRays(canvas.Resolution{Width: 0, Height: 10}, DefaultFOV))
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		res  canvas.Resolution
		want [3]int
	}{
		{canvas.Resolution{Width: 800, Height: 600}, [3]int{100, 75, 1}},
		{canvas.Resolution{Width: 801, Height: 1}, [3]int{101, 1, 1}},
		{canvas.Resolution{Width: 8, Height: 16}, [3]int{1, 2, 1}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Dispatch(tt.res))
	}
}
