package segment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/audioforge/audioforge/internal/domain"
	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/temp"
	"github.com/audioforge/audioforge/internal/transcoder"
)

// state tracks an execution run through its lifecycle. Runs cannot be
// paused or cancelled mid-flight; cancellation rides on the context.
type state string

const (
	statePlanned   state = "planned"
	stateStreaming state = "streaming"
	stateInMemory  state = "in-memory"
	stateCompleted state = "completed"
	stateFallback  state = "fallback"
)

// defaultWorkers bounds concurrent extraction tasks.
const defaultWorkers = 2

// Engine executes an optimization plan: either window-by-window
// streaming extraction or a single full decode with in-memory slicing.
// Any fatal path error degrades to naive per-chapter segmentation so a
// batch never aborts outright.
type Engine struct {
	tc      Transcoder
	logger  *slog.Logger
	tempDir string
	workers int
}

// NewEngine builds an Engine. workers <= 0 selects the default pool
// size of 2.
func NewEngine(tc Transcoder, tempDir string, workers int, logger *slog.Logger) *Engine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{tc: tc, logger: logger, tempDir: tempDir, workers: workers}
}

// Execute renders the chapter groups into output files and returns the
// paths that were produced. The result may be shorter than the group
// list: failed tasks are logged and filtered, never fatal.
func (e *Engine) Execute(ctx context.Context, plan OptimizationPlan, audioPath string, groups []Group, chapters []domain.Chapter, outputDir string) ([]string, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeSegmentation, "create output directory %s", outputDir)
	}

	base := baseName(audioPath)
	run := statePlanned
	e.logger.Info("executing segmentation plan",
		slog.String("level", string(plan.Level)),
		slog.Bool("streaming", plan.UseStreaming),
		slog.Int64("estimated_bytes", plan.EstimatedMemoryBytes),
		slog.Int("groups", len(groups)),
	)

	var (
		paths []string
		err   error
	)
	if plan.UseStreaming {
		run = stateStreaming
		paths, err = e.executeStreaming(ctx, audioPath, base, groups, outputDir)
	} else {
		run = stateInMemory
		paths, err = e.executeInMemory(ctx, audioPath, base, groups, outputDir)
	}

	if err == nil && len(paths) == 0 && len(groups) > 0 {
		err = domainerrors.Segmentation("no segment could be produced")
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("optimized segmentation failed, falling back to per-chapter pass",
			slog.String("from", string(run)),
			slog.Any("error", err),
		)
		return e.naiveSegment(ctx, audioPath, base, chapters, outputDir), nil
	}

	run = stateCompleted
	e.logger.Info("segmentation completed",
		slog.String("state", string(run)),
		slog.Int("outputs", len(paths)),
	)
	return paths, nil
}

// executeStreaming extracts each group's window straight from the
// source into a scope temp file, then promotes it atomically.
func (e *Engine) executeStreaming(ctx context.Context, audioPath, base string, groups []Group, outputDir string) ([]string, error) {
	scope, err := temp.NewScope(e.tempDir, e.logger)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	return e.runPool(ctx, len(groups), func(i int) (string, error) {
		g := groups[i]
		tmp := scope.Path(".wav")
		if err := e.tc.Extract(ctx, transcoder.ExtractRequest{
			Input:   audioPath,
			Output:  tmp,
			Offset:  g.Start,
			Seconds: g.Duration(),
		}); err != nil {
			return "", err
		}
		final := filepath.Join(outputDir, g.Filename(base))
		if err := scope.Rename(tmp, final); err != nil {
			return "", err
		}
		return final, nil
	}), nil
}

// executeInMemory decodes the whole track once and writes each group as
// a sample-index slice of the shared buffer.
func (e *Engine) executeInMemory(ctx context.Context, audioPath, base string, groups []Group, outputDir string) ([]string, error) {
	scope, err := temp.NewScope(e.tempDir, e.logger)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	decoded := scope.Path(".wav")
	if err := e.tc.Encode(ctx, transcoder.EncodeRequest{
		Input:  audioPath,
		Output: decoded,
		Codec:  "pcm_s16le",
	}); err != nil {
		return nil, fmt.Errorf("decode %s: %w", audioPath, err)
	}
	data, err := os.ReadFile(decoded)
	if err != nil {
		return nil, err
	}
	samples, rate, channels, err := decodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("parse decoded track: %w", err)
	}

	return e.runPool(ctx, len(groups), func(i int) (string, error) {
		g := groups[i]
		slice := sliceSamples(samples, rate, channels, g.Start, g.End)
		if len(slice) == 0 {
			return "", fmt.Errorf("group %d-%d covers no audio", g.First, g.Last)
		}
		encoded, err := encodeWAV(slice, rate, channels)
		if err != nil {
			return "", err
		}
		final := filepath.Join(outputDir, g.Filename(base))
		if err := os.WriteFile(final, encoded, 0o644); err != nil {
			return "", err
		}
		return final, nil
	}), nil
}

// runPool runs n index-addressed tasks over the bounded worker pool and
// returns the successful results in task order. Failures are logged and
// leave their slot empty.
func (e *Engine) runPool(ctx context.Context, n int, task func(i int) (string, error)) []string {
	slots := make([]string, n)
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				path, err := task(i)
				if err != nil {
					e.logger.Warn("segment task failed",
						slog.Int("index", i),
						slog.Any("error", err),
					)
					continue
				}
				slots[i] = path
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	paths := make([]string, 0, n)
	for _, p := range slots {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// naiveSegment is the last-resort path: one output per chapter,
// sequential, skipping chapters that fail. It never aborts the batch.
func (e *Engine) naiveSegment(ctx context.Context, audioPath, base string, chapters []domain.Chapter, outputDir string) []string {
	var paths []string
	for i, ch := range chapters {
		if ctx.Err() != nil {
			break
		}
		g := Group{First: i + 1, Last: i + 1, Start: ch.StartTime, End: ch.EndTime}
		final := filepath.Join(outputDir, g.Filename(base))
		if err := e.tc.Extract(ctx, transcoder.ExtractRequest{
			Input:   audioPath,
			Output:  final,
			Offset:  g.Start,
			Seconds: g.Duration(),
		}); err != nil {
			e.logger.Warn("skipping chapter after extraction failure",
				slog.Int("chapter", i+1),
				slog.String("title", ch.Title),
				slog.Any("error", err),
			)
			continue
		}
		paths = append(paths, final)
	}
	return paths
}

// baseName strips the directory and extension from a path.
func baseName(path string) string {
	name := filepath.Base(path)
	return name[:len(name)-len(filepath.Ext(name))]
}
