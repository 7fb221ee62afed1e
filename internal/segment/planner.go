// Package segment splits long-form audio into chapter-aligned output
// files. A selector picks between in-memory slicing and streaming
// extraction based on the estimated decoded size; both paths produce
// identically named outputs.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/audioforge/audioforge/internal/converter"
	"github.com/audioforge/audioforge/internal/domain"
	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/transcoder"
)

// Transcoder is the external-tool surface segmentation needs.
type Transcoder interface {
	Encode(ctx context.Context, req transcoder.EncodeRequest) error
	Extract(ctx context.Context, req transcoder.ExtractRequest) error
	Probe(ctx context.Context, path string) (*transcoder.Info, error)
}

// engineDispatchGroups is the group count above which even an
// in-memory-sized track goes through the pooled engine.
const engineDispatchGroups = 20

// Planner validates inputs, derives chapter timings, batches chapters
// into groups, and dispatches execution.
type Planner struct {
	tc       Transcoder
	engine   *Engine
	selector Selector
	logger   *slog.Logger
}

// NewPlanner builds a Planner around a shared engine.
func NewPlanner(tc Transcoder, engine *Engine, selector Selector, logger *slog.Logger) *Planner {
	return &Planner{tc: tc, engine: engine, selector: selector, logger: logger}
}

// Segment splits audioPath along its chapters per the config and
// returns the produced paths. Disabled segmentation passes the input
// through untouched; an empty chapter list yields an empty result.
func (p *Planner) Segment(ctx context.Context, audioPath string, chapters []domain.Chapter, cfg domain.SegmentationConfig, outputDir string) ([]string, error) {
	if !cfg.Enabled {
		return []string{audioPath}, nil
	}

	info, err := p.tc.Probe(ctx, audioPath)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "%s is not a decodable audio file", audioPath)
	}

	if !cfg.UseChapterDetection || len(chapters) == 0 {
		if cfg.MaxFileDuration != nil {
			return p.SegmentByDuration(ctx, audioPath, *cfg.MaxFileDuration, outputDir)
		}
		if len(chapters) == 0 {
			return []string{}, nil
		}
		return []string{audioPath}, nil
	}

	if !domain.AllTimed(chapters) {
		chapters = converter.DeriveChapterTimings(chapters, info.Duration)
	}
	for i, ch := range chapters {
		if err := ch.Validate(); err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "chapter %d", i+1)
		}
	}

	if cfg.CreateSubfolders {
		outputDir = filepath.Join(outputDir, baseName(audioPath))
	}

	groups := MakeGroups(chapters, cfg.ChaptersPerFile)
	plan := p.selector.Plan(domain.CoveredDuration(chapters), info.SampleRate, info.Channels)

	if plan.UseStreaming || len(groups) > engineDispatchGroups {
		return p.engine.Execute(ctx, plan, audioPath, groups, chapters, outputDir)
	}
	return p.standardSegment(ctx, audioPath, groups, outputDir)
}

// standardSegment is the simple sequential path for small jobs: one
// extraction per group, written directly to the final name.
func (p *Planner) standardSegment(ctx context.Context, audioPath string, groups []Group, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeSegmentation, "create output directory %s", outputDir)
	}

	base := baseName(audioPath)
	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		final := filepath.Join(outputDir, g.Filename(base))
		if err := p.tc.Extract(ctx, transcoder.ExtractRequest{
			Input:   audioPath,
			Output:  final,
			Offset:  g.Start,
			Seconds: g.Duration(),
		}); err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeSegmentation,
				"extract chapters %d-%d", g.First, g.Last)
		}
		paths = append(paths, final)
	}
	return paths, nil
}

// SegmentByDuration cuts the track into fixed windows of at most
// maxDuration seconds, named `<base>_part_NNN.wav`. Tracks already
// within the limit are returned unchanged with no tool invocation
// beyond the probe.
func (p *Planner) SegmentByDuration(ctx context.Context, audioPath string, maxDuration float64, outputDir string) ([]string, error) {
	if maxDuration <= 0 {
		return nil, domainerrors.InvalidInputf("max duration must be positive, got %g", maxDuration)
	}

	info, err := p.tc.Probe(ctx, audioPath)
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "%s is not a decodable audio file", audioPath)
	}
	if info.Duration <= maxDuration {
		return []string{audioPath}, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeSegmentation, "create output directory %s", outputDir)
	}

	base := baseName(audioPath)
	parts := int(math.Ceil(info.Duration / maxDuration))
	paths := make([]string, 0, parts)
	for i := 0; i < parts; i++ {
		offset := float64(i) * maxDuration
		window := math.Min(maxDuration, info.Duration-offset)
		final := filepath.Join(outputDir, fmt.Sprintf("%s_part_%03d.wav", base, i+1))
		if err := p.tc.Extract(ctx, transcoder.ExtractRequest{
			Input:   audioPath,
			Output:  final,
			Offset:  offset,
			Seconds: window,
		}); err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeSegmentation, "extract part %d", i+1)
		}
		paths = append(paths, final)
	}
	return paths, nil
}
