// Package providers wires the pipeline services into the DI container.
package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/audioforge/audioforge/internal/config"
	"github.com/audioforge/audioforge/internal/converter"
	"github.com/audioforge/audioforge/internal/history"
	"github.com/audioforge/audioforge/internal/logger"
	"github.com/audioforge/audioforge/internal/media/covers"
	"github.com/audioforge/audioforge/internal/output"
	"github.com/audioforge/audioforge/internal/resource"
	"github.com/audioforge/audioforge/internal/retry"
	"github.com/audioforge/audioforge/internal/segment"
	"github.com/audioforge/audioforge/internal/transcoder"
	"github.com/audioforge/audioforge/internal/validation"
)

// ProvideLogger provides the application logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return logger.New(logger.Config{
		Writer:      os.Stderr,
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	}), nil
}

// ProvideValidator provides the request validator.
func ProvideValidator(do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideTranscoder provides the ffmpeg/ffprobe boundary.
func ProvideTranscoder(i do.Injector) (*transcoder.Transcoder, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	tc, err := transcoder.New(cfg.Transcoder.FFmpegPath, cfg.Transcoder.FFprobePath, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("transcoder: %w", err)
	}
	return tc, nil
}

// ProvideResourceMonitor provides the advisory resource monitor,
// watching disk pressure at the output directory.
func ProvideResourceMonitor(i do.Injector) (*resource.Monitor, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	return resource.NewMonitor(cfg.Paths.OutputDir, log.Logger), nil
}

// HistoryHandle wraps the optional history store so the container can
// shut it down cleanly. Store is nil when history is disabled.
type HistoryHandle struct {
	Store *history.Store
}

// Shutdown closes the store if one was opened.
func (h *HistoryHandle) Shutdown() error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Close()
}

// ProvideHistory provides the recovery history store.
func ProvideHistory(i do.Injector) (*HistoryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.History.Enabled {
		return &HistoryHandle{}, nil
	}
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	store, err := history.Open(cfg.History.Path, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	log.Info("recovery history enabled")
	return &HistoryHandle{Store: store}, nil
}

// ProvideOrchestrator provides the retry orchestrator, persisting
// attempts when history is enabled.
func ProvideOrchestrator(i do.Injector) (*retry.Orchestrator, error) {
	log := do.MustInvoke[*logger.Logger](i)
	hist := do.MustInvoke[*HistoryHandle](i)

	var opts []retry.Option
	if hist.Store != nil {
		opts = append(opts, retry.WithSink(hist.Store))
	}
	return retry.NewOrchestrator(log.Logger, opts...), nil
}

// ProvideCoverPreparer provides the cover art preparer.
func ProvideCoverPreparer(i do.Injector) (*covers.Preparer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	return covers.NewPreparer(cfg.Paths.TempDir, log.Logger), nil
}

// ProvideConverter provides the format converter.
func ProvideConverter(i do.Injector) (*converter.Converter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	tc := do.MustInvoke[*transcoder.Transcoder](i)
	orch := do.MustInvoke[*retry.Orchestrator](i)
	monitor := do.MustInvoke[*resource.Monitor](i)
	preparer := do.MustInvoke[*covers.Preparer](i)

	return converter.New(tc, orch, monitor, preparer, cfg.Paths.TempDir, log.Logger), nil
}

// ProvideSegmentEngine provides the segmentation execution engine.
func ProvideSegmentEngine(i do.Injector) (*segment.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	tc := do.MustInvoke[*transcoder.Transcoder](i)

	return segment.NewEngine(tc, cfg.Paths.TempDir, cfg.Segmentation.Workers, log.Logger), nil
}

// ProvidePlanner provides the segmentation planner.
func ProvidePlanner(i do.Injector) (*segment.Planner, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	tc := do.MustInvoke[*transcoder.Transcoder](i)
	engine := do.MustInvoke[*segment.Engine](i)

	selector := segment.Selector{ForceStreaming: cfg.Segmentation.ForceStreaming}
	return segment.NewPlanner(tc, engine, selector, log.Logger), nil
}

// ProvideRegistry provides the output artifact registry.
func ProvideRegistry(i do.Injector) (*output.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	tc := do.MustInvoke[*transcoder.Transcoder](i)

	return output.NewRegistry(cfg.Paths.OutputDir, tc, log.Logger), nil
}

// ProvideWatcher provides the output directory watcher.
func ProvideWatcher(i do.Injector) (*output.Watcher, error) {
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*output.Registry](i)
	return output.NewWatcher(registry, log.Logger), nil
}
