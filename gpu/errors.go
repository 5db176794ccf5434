package gpu

import "github.com/cockroachdb/errors"

// ErrFatal marks errors that come from an unmet deployment precondition: no usable
// device, a missing device feature, a shader module or swapchain that could not be
// created. Callers are expected to terminate when errors.Is(err, ErrFatal).
var ErrFatal = errors.New("fatal gpu error")

// ErrBufferBusy is returned when a buffer mapping is requested while the buffer is
// still referenced by unfinished GPU work, or while another mapping is held.
var ErrBufferBusy = errors.New("buffer is in use")

// Fatal marks err as fatal.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrFatal)
}

// IsFatal reports whether err was marked with ErrFatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
