package scene

import (
	"math"

	"github.com/vkngwrapper/raytracer/canvas"
)

// DefaultFOV is the horizontal field of view.
const DefaultFOV = math.Pi / 2

// RayDepth is the distance of the image plane from the eye, in pixels, for an image
// width pixels wide spanning fov radians.
func RayDepth(width int, fov float64) float32 {
	half := fov / 2
	return float32(math.Cos(half) * float64(width) / (2 * math.Sin(half)))
}

// GenerateRays returns one normalized ray per pixel of res, row by row from the top.
// The camera looks down +z with +y up.
func GenerateRays(res canvas.Resolution, fov float64) []Ray {
	if res.Empty() {
		return nil
	}

	depth := RayDepth(res.Width, fov)
	halfW := float32(res.Width) / 2
	halfH := float32(res.Height) / 2

	rays := make([]Ray, 0, res.Width*res.Height)
	for i := 0; i < res.Width*res.Height; i++ {
		x := float32(i%res.Width) - halfW
		y := -(float32(i/res.Width) - halfH)

		norm := float32(math.Sqrt(float64(x*x + y*y + depth*depth)))
		rays = append(rays, Ray{
			Dir: [4]float32{x / norm, y / norm, depth / norm, 0},
		})
	}
	return rays
}

// Dispatch is the workgroup count covering res with 8x8 workgroups.
func Dispatch(res canvas.Resolution) [3]int {
	return [3]int{(res.Width + 7) / 8, (res.Height + 7) / 8, 1}
}
