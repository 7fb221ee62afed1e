// Package output tracks the deliverables the pipeline has produced in
// the configured output directory.
package output

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/audioforge/audioforge/internal/domain"
	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/id"
	"github.com/audioforge/audioforge/internal/transcoder"
)

// Prober inspects media files for duration and format.
type Prober interface {
	Probe(ctx context.Context, path string) (*transcoder.Info, error)
}

// audioExtensions are the file types the registry considers artifacts.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4b":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
}

// Registry indexes produced artifacts by path.
type Registry struct {
	dir    string
	prober Prober
	logger *slog.Logger

	mu        sync.RWMutex
	artifacts map[string]domain.Artifact
}

// NewRegistry builds a Registry over the output directory.
func NewRegistry(dir string, prober Prober, logger *slog.Logger) *Registry {
	return &Registry{
		dir:       dir,
		prober:    prober,
		logger:    logger,
		artifacts: make(map[string]domain.Artifact),
	}
}

// Dir returns the watched output directory.
func (r *Registry) Dir() string {
	return r.dir
}

// Record stats and probes a produced file and indexes it. Probe
// failures degrade to a zero duration; the artifact is still recorded.
func (r *Registry) Record(ctx context.Context, path string) (domain.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Artifact{}, domainerrors.NotFoundf("artifact not found: %s", path)
		}
		return domain.Artifact{}, domainerrors.Wrapf(err, domainerrors.CodeInternal, "stat artifact %s", path)
	}

	artifact := domain.Artifact{
		ID:        id.MustGenerate(id.PrefixArtifact),
		Filename:  filepath.Base(path),
		Path:      path,
		Format:    strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Size:      info.Size(),
		CreatedAt: time.Now(),
	}
	if probed, probeErr := r.prober.Probe(ctx, path); probeErr != nil {
		r.logger.Warn("could not probe artifact duration",
			slog.String("path", path), slog.Any("error", probeErr))
	} else {
		artifact.Duration = probed.Duration
	}

	r.mu.Lock()
	r.artifacts[path] = artifact
	r.mu.Unlock()
	return artifact, nil
}

// RecordSegmented records a batch of segment outputs produced from one
// source, marking each with the batch size.
func (r *Registry) RecordSegmented(ctx context.Context, paths []string) ([]domain.Artifact, error) {
	artifacts := make([]domain.Artifact, 0, len(paths))
	for _, path := range paths {
		artifact, err := r.Record(ctx, path)
		if err != nil {
			return artifacts, err
		}
		artifact.Segmented = true
		artifact.SegmentCount = len(paths)

		r.mu.Lock()
		r.artifacts[path] = artifact
		r.mu.Unlock()
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// List returns all recorded artifacts ordered by path.
func (r *Registry) List() []domain.Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Artifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Remove deletes the artifact's file and drops it from the index.
// A file already gone is not an error.
func (r *Registry) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return domainerrors.Wrapf(err, domainerrors.CodeInternal, "remove artifact %s", path)
	}
	r.mu.Lock()
	delete(r.artifacts, path)
	r.mu.Unlock()
	return nil
}

// isAudioFile reports whether the path looks like an audio artifact.
func isAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}
