package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/raytracer/canvas"
)

// Camera is the push constant block: the eye position and its orientation as a
// quaternion (x, y, z, w).
type Camera struct {
	Pos         [4]float32
	Orientation [4]float32
}

// DefaultSensitivity is the rotation in radians per pixel of mouse motion.
const DefaultSensitivity = 0.001

var moveKeys = map[canvas.Scancode]mgl32.Vec3{
	canvas.ScancodeW:     {0, 0, 1},
	canvas.ScancodeS:     {0, 0, -1},
	canvas.ScancodeA:     {-1, 0, 0},
	canvas.ScancodeD:     {1, 0, 0},
	canvas.ScancodeSpace: {0, 1, 0},
	canvas.ScancodeLCtrl: {0, -1, 0},
}

// Controller is a free-flying camera. Mouse motion turns it, held movement keys move
// it Speed units per redraw along its own axes.
type Controller struct {
	Speed       float32
	Sensitivity float32

	pos   mgl32.Vec3
	pitch float32
	yaw   float32
	held  map[canvas.Scancode]bool
}

func NewController(speed float32) *Controller {
	return &Controller{
		Speed:       speed,
		Sensitivity: DefaultSensitivity,
		held:        make(map[canvas.Scancode]bool),
	}
}

func (c *Controller) orientation() mgl32.Quat {
	yaw := mgl32.QuatRotate(c.yaw, mgl32.Vec3{0, 1, 0})
	pitch := mgl32.QuatRotate(c.pitch, mgl32.Vec3{1, 0, 0})
	return yaw.Mul(pitch)
}

// Camera returns the current push constants.
func (c *Controller) Camera() Camera {
	q := c.orientation()
	return Camera{
		Pos:         [4]float32{c.pos[0], c.pos[1], c.pos[2], 0},
		Orientation: [4]float32{q.V[0], q.V[1], q.V[2], q.W},
	}
}

// Handle updates the camera from ev.
func (c *Controller) Handle(ev canvas.Event) Camera {
	switch e := ev.(type) {
	case canvas.MouseMotionEvent:
		c.pitch += float32(e.DY) * c.Sensitivity
		c.yaw += float32(e.DX) * c.Sensitivity
	case canvas.KeyEvent:
		if _, ok := moveKeys[e.Scancode]; ok {
			c.held[e.Scancode] = !e.Released
		}
	case canvas.RedrawEvent:
		var move mgl32.Vec3
		for sc, down := range c.held {
			if down {
				move = move.Add(moveKeys[sc])
			}
		}
		if move != (mgl32.Vec3{}) {
			c.pos = c.pos.Add(c.orientation().Rotate(move.Mul(c.Speed)))
		}
	}
	return c.Camera()
}
