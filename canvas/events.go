package canvas

import "github.com/veandco/go-sdl2/sdl"

// Event is an input or window event delivered to the scene's Update function.
type Event interface {
	event()
}

// RedrawEvent is sent once per loop iteration, after all pending input events.
type RedrawEvent struct{}

// ResizedEvent reports the new drawable size of the window. A minimized window
// reports zero on both axes.
type ResizedEvent struct {
	Width  int
	Height int
}

// CloseRequestedEvent is sent when the user asks to close the window.
type CloseRequestedEvent struct{}

// KeyEvent reports a key press or release by hardware scancode.
type KeyEvent struct {
	Scancode Scancode
	Released bool
}

// MouseMotionEvent reports relative mouse movement in pixels.
type MouseMotionEvent struct {
	DX float64
	DY float64
}

func (RedrawEvent) event()         {}
func (ResizedEvent) event()        {}
func (CloseRequestedEvent) event() {}
func (KeyEvent) event()            {}
func (MouseMotionEvent) event()    {}

// Scancode identifies a physical key independently of the keyboard layout.
type Scancode uint32

const (
	ScancodeEscape Scancode = Scancode(sdl.SCANCODE_ESCAPE)
	ScancodeF2     Scancode = Scancode(sdl.SCANCODE_F2)
	ScancodeW      Scancode = Scancode(sdl.SCANCODE_W)
	ScancodeA      Scancode = Scancode(sdl.SCANCODE_A)
	ScancodeS      Scancode = Scancode(sdl.SCANCODE_S)
	ScancodeD      Scancode = Scancode(sdl.SCANCODE_D)
	ScancodeSpace  Scancode = Scancode(sdl.SCANCODE_SPACE)
	ScancodeLCtrl  Scancode = Scancode(sdl.SCANCODE_LCTRL)
)
