// Package temp gives every pipeline entry point a Scope that owns its
// intermediate files. Files live until the scope closes or until they
// are promoted to a final location; Close removes whatever is left on
// every exit path.
package temp

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/audioforge/audioforge/internal/id"
)

// Scope tracks the temp files created for one operation.
type Scope struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	paths []string
}

// NewScope creates a scope rooted at dir, creating it when missing.
// An empty dir falls back to the system temp directory.
func NewScope(dir string, logger *slog.Logger) (*Scope, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", dir, err)
	}
	return &Scope{dir: dir, logger: logger}, nil
}

// Dir returns the scope's root directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Path reserves a unique file path inside the scope with the given
// suffix (e.g. ".wav"). The file is not created; the path is still
// tracked for cleanup.
func (s *Scope) Path(suffix string) string {
	name := id.MustGenerate(id.PrefixTemp) + suffix
	path := filepath.Join(s.dir, name)
	s.track(path)
	return path
}

// CreateFile creates a tracked temp file using os.CreateTemp pattern
// semantics ("*" replaced with a random string).
func (s *Scope) CreateFile(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	s.track(f.Name())
	return f, nil
}

// Rename promotes a tracked temp file to its final path atomically and
// stops tracking it. The destination directory must already exist.
func (s *Scope) Rename(tempPath, finalPath string) error {
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("promote %s: %w", tempPath, err)
	}
	s.untrack(tempPath)
	return nil
}

// Close removes every still-tracked file. Removal is best-effort;
// failures are logged and the first one is returned.
func (s *Scope) Close() error {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var firstErr error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("could not remove temp file",
				slog.String("path", path),
				slog.Any("error", err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Scope) track(path string) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

func (s *Scope) untrack(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.paths {
		if p == path {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			return
		}
	}
}
