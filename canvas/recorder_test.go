package canvas

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) (*Recorder, *bytes.Buffer) {
	var logs bytes.Buffer
	r := NewRecorder(t.TempDir(), log.New(&logs, "", 0))
	r.now = func() time.Time {
		return time.Date(2024, 3, 9, 14, 5, 30, 0, time.UTC)
	}
	return r, &logs
}

func TestRecorderEnableCreatesTimestampedDir(t *testing.T) {
	r, logs := newTestRecorder(t)

	require.NoError(t, r.Enable())
	assert.True(t, r.Active())
	assert.Equal(t, filepath.Join(r.Root, "Captures", "2024-03-09T14_05_30Z"), r.Dir())
	assert.DirExists(t, r.Dir())
	assert.Contains(t, logs.String(), "2024-03-09T14_05_30Z")
}

func TestRecorderDoubleEnableIsNoop(t *testing.T) {
	r, _ := newTestRecorder(t)

	require.NoError(t, r.Enable())
	first := r.Dir()

	r.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, r.Enable())
	assert.Equal(t, first, r.Dir())

	entries, err := os.ReadDir(filepath.Join(r.Root, CapturesDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecorderNewSessionInSameSecond(t *testing.T) {
	r, _ := newTestRecorder(t)

	require.NoError(t, r.Toggle())
	first := r.Dir()
	require.NoError(t, r.Toggle())
	assert.False(t, r.Active())

	require.NoError(t, r.Toggle())
	assert.NotEqual(t, first, r.Dir())
	assert.Equal(t, first+"-1", r.Dir())
}

func TestRecorderSave(t *testing.T) {
	r, logs := newTestRecorder(t)
	r.ProgressEvery = 2

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	_, err := r.Save(img)
	assert.Error(t, err)

	require.NoError(t, r.Enable())
	for i := 0; i < 3; i++ {
		path, err := r.Save(img)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(r.Dir(), []string{"0.png", "1.png", "2.png"}[i]), path)
	}
	assert.Equal(t, 3, r.Frames())
	assert.Contains(t, logs.String(), "Generated 2 frames")

	file, err := os.Open(filepath.Join(r.Dir(), "1.png"))
	require.NoError(t, err)
	defer file.Close()

	decoded, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, color.RGBAModel.Convert(decoded.At(1, 1)))

	// The working directory is left alone.
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.NotEqual(t, r.Dir(), wd)
}

func TestRecorderNumberingRestartsPerSession(t *testing.T) {
	r, _ := newTestRecorder(t)
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	require.NoError(t, r.Enable())
	_, err := r.Save(img)
	require.NoError(t, err)
	r.Disable()

	require.NoError(t, r.Enable())
	path, err := r.Save(img)
	require.NoError(t, err)
	assert.Equal(t, "0.png", filepath.Base(path))
}
