// Package covers bounds cover art before it is embedded into audiobook
// containers. Oversized images balloon the container and some players
// refuse them.
package covers

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	domainerrors "github.com/audioforge/audioforge/internal/errors"
)

// jpegQuality for downscaled covers.
const jpegQuality = 85

// Preparer produces embed-ready cover images.
type Preparer struct {
	tempDir string
	logger  *slog.Logger
}

// NewPreparer builds a Preparer writing downscaled copies to tempDir.
func NewPreparer(tempDir string, logger *slog.Logger) *Preparer {
	return &Preparer{tempDir: tempDir, logger: logger}
}

// PrepareCover returns a path to a cover no larger than maxEdge on
// either side. Images already within bounds pass through unchanged;
// larger ones are downscaled to a JPEG copy.
func (p *Preparer) PrepareCover(path string, maxEdge int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domainerrors.NotFoundf("cover image not found: %s", path)
		}
		return "", domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "open cover %s", path)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "undecodable cover image %s", path)
	}
	if cfg.Width <= maxEdge && cfg.Height <= maxEdge {
		return path, nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return "", fmt.Errorf("rewind cover: %w", err)
	}
	src, _, err := image.Decode(f)
	if err != nil {
		return "", domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "decode cover image %s", path)
	}

	width, height := fitWithin(cfg.Width, cfg.Height, maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	out, err := os.CreateTemp(p.tempDir, "cover-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create cover copy: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("encode cover copy: %w", err)
	}

	p.logger.Debug("downscaled cover image",
		slog.String("source", filepath.Base(path)),
		slog.Int("width", width),
		slog.Int("height", height),
	)
	return out.Name(), nil
}

// fitWithin scales (w, h) down so the longer edge equals maxEdge,
// preserving aspect ratio.
func fitWithin(w, h, maxEdge int) (int, int) {
	if w >= h {
		return maxEdge, max(1, h*maxEdge/w)
	}
	return max(1, w*maxEdge/h), maxEdge
}
