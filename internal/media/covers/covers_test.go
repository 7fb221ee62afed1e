package covers

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/logger"
)

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, "cover.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	return path
}

func newPreparer(t *testing.T) *Preparer {
	t.Helper()
	return NewPreparer(t.TempDir(), logger.Discard().Logger)
}

func TestPrepareCover_SmallImagePassesThrough(t *testing.T) {
	p := newPreparer(t)
	path := writePNG(t, t.TempDir(), 500, 400)

	got, err := p.PrepareCover(path, 1200)

	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestPrepareCover_DownscalesOversized(t *testing.T) {
	p := newPreparer(t)
	path := writePNG(t, t.TempDir(), 2400, 1200)

	got, err := p.PrepareCover(path, 1200)

	require.NoError(t, err)
	assert.NotEqual(t, path, got)
	assert.Equal(t, ".jpg", filepath.Ext(got))

	f, err := os.Open(got)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
}

func TestPrepareCover_PortraitAspect(t *testing.T) {
	p := newPreparer(t)
	path := writePNG(t, t.TempDir(), 1000, 4000)

	got, err := p.PrepareCover(path, 1000)
	require.NoError(t, err)

	f, err := os.Open(got)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Width)
	assert.Equal(t, 1000, cfg.Height)
}

func TestPrepareCover_Undecodable(t *testing.T) {
	p := newPreparer(t)
	path := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := p.PrepareCover(path, 1200)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidInput))
}

func TestPrepareCover_Missing(t *testing.T) {
	p := newPreparer(t)
	_, err := p.PrepareCover("/nowhere/cover.jpg", 1200)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}
