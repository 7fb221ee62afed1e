package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioforge/audioforge/internal/domain"
	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/logger"
	"github.com/audioforge/audioforge/internal/transcoder"
)

// fakeTC simulates the external tool. Extract and Encode write real
// files so the rename/slice plumbing is exercised. Safe for concurrent
// use by the worker pool.
type fakeTC struct {
	mu         sync.Mutex
	extracts   []transcoder.ExtractRequest
	extractErr func(req transcoder.ExtractRequest) error
	encodes    []transcoder.EncodeRequest
	encodeErr  error
	encodeData []byte
	probeInfo  *transcoder.Info
	probeErr   error
	probes     int
}

func (f *fakeTC) Extract(_ context.Context, req transcoder.ExtractRequest) error {
	f.mu.Lock()
	f.extracts = append(f.extracts, req)
	fail := f.extractErr
	f.mu.Unlock()
	if fail != nil {
		if err := fail(req); err != nil {
			return err
		}
	}
	return os.WriteFile(req.Output, []byte("segment"), 0o644)
}

func (f *fakeTC) Encode(_ context.Context, req transcoder.EncodeRequest) error {
	f.mu.Lock()
	f.encodes = append(f.encodes, req)
	f.mu.Unlock()
	if f.encodeErr != nil {
		return f.encodeErr
	}
	data := f.encodeData
	if data == nil {
		data = []byte("encoded")
	}
	return os.WriteFile(req.Output, data, 0o644)
}

func (f *fakeTC) Probe(context.Context, string) (*transcoder.Info, error) {
	f.mu.Lock()
	f.probes++
	f.mu.Unlock()
	return f.probeInfo, f.probeErr
}

func (f *fakeTC) extractOffsets() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	offsets := make([]float64, len(f.extracts))
	for i, e := range f.extracts {
		offsets[i] = e.Offset
	}
	sort.Float64s(offsets)
	return offsets
}

func newPlanner(t *testing.T, tc *fakeTC, selector Selector) *Planner {
	t.Helper()
	log := logger.Discard().Logger
	engine := NewEngine(tc, t.TempDir(), 2, log)
	return NewPlanner(tc, engine, selector, log)
}

func probeInfo(duration float64) *transcoder.Info {
	return &transcoder.Info{
		Format:     "wav",
		Duration:   duration,
		SampleRate: 44100,
		Channels:   2,
		Codec:      "pcm_s16le",
	}
}

func enabledConfig(perFile int) domain.SegmentationConfig {
	cfg := domain.DefaultSegmentationConfig()
	cfg.Enabled = true
	cfg.ChaptersPerFile = perFile
	return cfg
}

func TestSegment_DisabledPassesThrough(t *testing.T) {
	tc := &fakeTC{}
	p := newPlanner(t, tc, Selector{})

	got, err := p.Segment(context.Background(), "/audio/book.wav", timedChapters(3, 10),
		domain.DefaultSegmentationConfig(), t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, []string{"/audio/book.wav"}, got)
	assert.Zero(t, tc.probes)
}

func TestSegment_UndecodableInput(t *testing.T) {
	tc := &fakeTC{probeErr: errors.New("invalid data found when processing input")}
	p := newPlanner(t, tc, Selector{})

	_, err := p.Segment(context.Background(), "/audio/junk.bin", timedChapters(2, 10),
		enabledConfig(1), t.TempDir())

	assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidInput))
}

func TestSegment_EmptyChapters(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(600)}
	p := newPlanner(t, tc, Selector{})

	got, err := p.Segment(context.Background(), "/audio/book.wav", nil,
		enabledConfig(10), t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, tc.extracts)
}

func TestSegment_StandardPathNames(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(30)}
	p := newPlanner(t, tc, Selector{})
	outDir := t.TempDir()

	got, err := p.Segment(context.Background(), "/audio/book.wav", timedChapters(3, 10),
		enabledConfig(2), outDir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "book_1-2.wav"),
		filepath.Join(outDir, "book_3-3.wav"),
	}, got)

	require.Len(t, tc.extracts, 2)
	assert.Equal(t, 0.0, tc.extracts[0].Offset)
	assert.Equal(t, 20.0, tc.extracts[0].Seconds)
	assert.Equal(t, 20.0, tc.extracts[1].Offset)
	assert.Equal(t, 10.0, tc.extracts[1].Seconds)
}

func TestSegment_StreamingPathProducesIdenticalNames(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(30)}
	p := newPlanner(t, tc, Selector{ForceStreaming: true})
	outDir := t.TempDir()

	got, err := p.Segment(context.Background(), "/audio/book.wav", timedChapters(3, 10),
		enabledConfig(2), outDir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "book_1-2.wav"),
		filepath.Join(outDir, "book_3-3.wav"),
	}, got)
	for _, path := range got {
		assert.FileExists(t, path)
	}
}

func TestSegment_UntimedChaptersGetEvenSplit(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(90)}
	p := newPlanner(t, tc, Selector{})

	chapters := []domain.Chapter{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	got, err := p.Segment(context.Background(), "/audio/book.wav", chapters,
		enabledConfig(1), t.TempDir())

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{0, 30, 60}, tc.extractOffsets())
}

func TestSegment_CreateSubfolders(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(20)}
	p := newPlanner(t, tc, Selector{})
	outDir := t.TempDir()

	cfg := enabledConfig(1)
	cfg.CreateSubfolders = true
	got, err := p.Segment(context.Background(), "/audio/book.wav", timedChapters(2, 10),
		cfg, outDir)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(outDir, "book", "book_1-1.wav"), got[0])
}

func TestSegment_ChapterDetectionDisabledWithoutLimit(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(100)}
	p := newPlanner(t, tc, Selector{})

	cfg := enabledConfig(5)
	cfg.UseChapterDetection = false
	got, err := p.Segment(context.Background(), "/audio/book.wav", timedChapters(4, 25),
		cfg, t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, []string{"/audio/book.wav"}, got)
}

func TestSegment_DurationLimitWhenDetectionDisabled(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(25)}
	p := newPlanner(t, tc, Selector{})
	outDir := t.TempDir()

	maxDur := 10.0
	cfg := enabledConfig(5)
	cfg.UseChapterDetection = false
	cfg.MaxFileDuration = &maxDur

	got, err := p.Segment(context.Background(), "/audio/book.wav", nil, cfg, outDir)

	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "book_part_001.wav"),
		filepath.Join(outDir, "book_part_002.wav"),
		filepath.Join(outDir, "book_part_003.wav"),
	}, got)

	require.Len(t, tc.extracts, 3)
	assert.Equal(t, 10.0, tc.extracts[0].Seconds)
	assert.Equal(t, 10.0, tc.extracts[1].Seconds)
	assert.Equal(t, 5.0, tc.extracts[2].Seconds)
}

func TestSegmentByDuration_WithinLimitIsNoOp(t *testing.T) {
	tc := &fakeTC{probeInfo: probeInfo(8)}
	p := newPlanner(t, tc, Selector{})

	got, err := p.SegmentByDuration(context.Background(), "/audio/short.wav", 10, t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, []string{"/audio/short.wav"}, got)
	assert.Empty(t, tc.extracts)
}

func TestSegmentByDuration_InvalidLimit(t *testing.T) {
	p := newPlanner(t, &fakeTC{}, Selector{})
	_, err := p.SegmentByDuration(context.Background(), "/audio/a.wav", 0, t.TempDir())
	assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidInput))
}
