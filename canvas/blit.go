package canvas

import (
	"github.com/vkngwrapper/core/core1_0"
	"github.com/vkngwrapper/raytracer/gpu"
)

// Blit is the geometry of the nearest-neighbor blit from the output image to the
// window sized images.
type Blit struct {
	// Src and Dst are the far corners of the source and destination regions.
	Src [3]int
	Dst [3]int
	// ScaleX and ScaleY are window pixels per output pixel.
	ScaleX float64
	ScaleY float64
}

// ComputeBlit stretches an output image of the given resolution over the window.
func ComputeBlit(window, output Resolution) Blit {
	b := Blit{
		Src: [3]int{output.Width, output.Height, 1},
		Dst: [3]int{window.Width, window.Height, 1},
	}
	if output.Width > 0 {
		b.ScaleX = float64(window.Width) / float64(output.Width)
	}
	if output.Height > 0 {
		b.ScaleY = float64(window.Height) / float64(output.Height)
	}
	return b
}

// DeriveResolution is the output resolution for a window when every output pixel
// covers pixelScale window pixels along each axis. Axes never shrink below one pixel
// unless the window itself is empty.
func DeriveResolution(window Resolution, pixelScale int) Resolution {
	if window.Empty() {
		return Resolution{}
	}
	if pixelScale < 1 {
		pixelScale = 1
	}

	res := Resolution{Width: window.Width / pixelScale, Height: window.Height / pixelScale}
	if res.Width < 1 {
		res.Width = 1
	}
	if res.Height < 1 {
		res.Height = 1
	}
	return res
}

func (b Blit) region() core1_0.ImageBlit {
	return core1_0.ImageBlit{
		SrcSubresource: gpu.ColorLayers,
		SrcOffsets: [2]core1_0.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: b.Src[0], Y: b.Src[1], Z: b.Src[2]},
		},
		DstSubresource: gpu.ColorLayers,
		DstOffsets: [2]core1_0.Offset3D{
			{X: 0, Y: 0, Z: 0},
			{X: b.Dst[0], Y: b.Dst[1], Z: b.Dst[2]},
		},
	}
}
