package canvas

import (
	"log"

	"github.com/cockroachdb/errors"
)

// PresentMode is the preferred swapchain present mode.
type PresentMode string

const (
	// PresentImmediate does not wait for vertical blank, falling back to FIFO.
	PresentImmediate PresentMode = "immediate"
	// PresentMailbox replaces queued images, falling back to FIFO.
	PresentMailbox PresentMode = "mailbox"
	// PresentFIFO waits for vertical blank and is always available.
	PresentFIFO PresentMode = "fifo"
)

// Config configures a Canvas.
type Config struct {
	Title  string
	Width  int
	Height int

	// PixelScale is the number of window pixels covered by one output pixel along
	// each axis.
	PixelScale int
	// TargetFPS sets the animation clock step, 1/TargetFPS per frame.
	TargetFPS float64
	// LogRate is the number of frames between frame time reports.
	LogRate int

	// CaptureRoot is the directory receiving Captures/<timestamp>/<n>.png.
	CaptureRoot string

	PresentMode PresentMode
	Validation  bool

	Logger *log.Logger
}

// DefaultConfig returns an 800x600 window rendering at full resolution.
func DefaultConfig() Config {
	return Config{
		Title:       "Compute Raytracer",
		Width:       800,
		Height:      600,
		PixelScale:  1,
		TargetFPS:   60,
		LogRate:     300,
		CaptureRoot: ".",
		PresentMode: PresentImmediate,
	}
}

func (c *Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Newf("invalid window size %dx%d", c.Width, c.Height)
	}
	if c.PixelScale < 1 {
		return errors.Newf("pixel scale must be at least 1, got %d", c.PixelScale)
	}
	if c.TargetFPS <= 0 {
		return errors.Newf("target fps must be positive, got %v", c.TargetFPS)
	}
	switch c.PresentMode {
	case "", PresentImmediate, PresentMailbox, PresentFIFO:
	default:
		return errors.Newf("unknown present mode %q", c.PresentMode)
	}
	if c.LogRate <= 0 {
		c.LogRate = 300
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return nil
}

// progressEvery is how often recording progress is logged, ten times per second of
// animation.
func (c *Config) progressEvery() int {
	n := int(c.TargetFPS / 10)
	if n < 1 {
		n = 1
	}
	return n
}
