package canvas

// Phase is the state of the frame loop.
type Phase int

const (
	Initializing Phase = iota
	Running
	Resizing
	Minimized
	Exiting
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "Initializing"
	case Running:
		return "Running"
	case Resizing:
		return "Resizing"
	case Minimized:
		return "Minimized"
	case Exiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// FrameLoopState holds the mutable state of the frame loop and its transitions,
// independent of the window system and the GPU.
type FrameLoopState struct {
	phase         Phase
	resizePending bool

	// Frames counts redraws, Dispatches counts submitted compute dispatches.
	Frames     int
	Dispatches int
	// T is the animation time. It advances by a fixed step per redraw.
	T float64

	step float64
}

// NewFrameLoopState returns a state in Initializing whose clock advances by
// 1/targetFPS per frame.
func NewFrameLoopState(targetFPS float64) *FrameLoopState {
	step := 0.0
	if targetFPS > 0 {
		step = 1 / targetFPS
	}
	return &FrameLoopState{phase: Initializing, step: step}
}

func (s *FrameLoopState) Phase() Phase {
	return s.phase
}

// ResizePending reports whether the next rendered frame starts with a resize.
func (s *FrameLoopState) ResizePending() bool {
	return s.resizePending
}

// Start enters Running once the initial resources exist.
func (s *FrameLoopState) Start() {
	if s.phase == Initializing {
		s.phase = Running
	}
}

// WindowResized records a new window size. A zero axis minimizes the loop, anything
// else resumes it with a resize pending.
func (s *FrameLoopState) WindowResized(width, height int) {
	if s.phase == Exiting || s.phase == Initializing {
		return
	}
	if width <= 0 || height <= 0 {
		s.phase = Minimized
		return
	}
	if s.phase == Minimized {
		s.phase = Running
	}
	s.resizePending = true
}

// RequestResize asks for a resize at the start of the next rendered frame.
func (s *FrameLoopState) RequestResize() {
	if s.phase != Exiting {
		s.resizePending = true
	}
}

// BeginResize enters Resizing if a resize is pending and the loop is running.
func (s *FrameLoopState) BeginResize() bool {
	if s.phase != Running || !s.resizePending {
		return false
	}
	s.phase = Resizing
	s.resizePending = false
	return true
}

// EndResize returns to Running. A failed resize stays pending for the next frame.
func (s *FrameLoopState) EndResize(ok bool) {
	if s.phase != Resizing {
		return
	}
	s.phase = Running
	if !ok {
		s.resizePending = true
	}
}

// Close enters Exiting. There is no way back.
func (s *FrameLoopState) Close() {
	s.phase = Exiting
}

// Tick advances the frame counter and the animation clock.
func (s *FrameLoopState) Tick() {
	s.Frames++
	s.T += s.step
}

// ShouldRender reports whether GPU work may be issued this frame.
func (s *FrameLoopState) ShouldRender() bool {
	return s.phase == Running
}

func (s *FrameLoopState) Exiting() bool {
	return s.phase == Exiting
}
