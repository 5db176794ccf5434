package canvas

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// CapturesDir is the directory under the recorder root holding one folder per
// recording session.
const CapturesDir = "Captures"

// Recorder writes captured frames as numbered PNG files into a directory named after
// the time the recording started. It never changes the working directory.
type Recorder struct {
	Root string
	// ProgressEvery logs progress every that many frames, never if zero.
	ProgressEvery int
	Logger        *log.Logger

	now    func() time.Time
	active bool
	dir    string
	frame  int
}

// NewRecorder returns an inactive recorder writing below root.
func NewRecorder(root string, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{Root: root, Logger: logger, now: time.Now}
}

func (r *Recorder) Active() bool {
	return r.active
}

// Dir is the directory of the current or last session.
func (r *Recorder) Dir() string {
	return r.dir
}

// Frames is the number of frames saved in the current or last session.
func (r *Recorder) Frames() int {
	return r.frame
}

// Enable starts a session in a new timestamped directory. Enabling an active
// recorder does nothing.
func (r *Recorder) Enable() error {
	if r.active {
		return nil
	}

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	timestamp := strings.ReplaceAll(now().UTC().Format(time.RFC3339), ":", "_")

	parent := filepath.Join(r.Root, CapturesDir)
	err := os.MkdirAll(parent, 0o755)
	if err != nil {
		return errors.Wrap(err, "failed to create captures directory")
	}

	dir := filepath.Join(parent, timestamp)
	for i := 1; ; i++ {
		err = os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return errors.Wrapf(err, "failed to create capture directory %s", dir)
		}
		dir = filepath.Join(parent, fmt.Sprintf("%s-%d", timestamp, i))
	}

	r.Logger.Printf("Using folder name: %s", filepath.Base(dir))
	r.dir = dir
	r.frame = 0
	r.active = true
	return nil
}

// Disable ends the session.
func (r *Recorder) Disable() {
	r.active = false
}

// Toggle enables an inactive recorder and disables an active one.
func (r *Recorder) Toggle() error {
	if r.active {
		r.Disable()
		return nil
	}
	return r.Enable()
}

// Save writes img as the next frame of the session and returns its path.
func (r *Recorder) Save(img image.Image) (string, error) {
	if !r.active {
		return "", errors.New("recorder is not active")
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%d.png", r.frame))
	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s", path)
	}

	err = png.Encode(file, img)
	closeErr := file.Close()
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode %s", path)
	}
	if closeErr != nil {
		return "", errors.Wrapf(closeErr, "failed to write %s", path)
	}

	r.frame++
	if r.ProgressEvery > 0 && r.frame%r.ProgressEvery == 0 {
		r.Logger.Printf("Generated %d frames", r.frame)
	}
	return path, nil
}
