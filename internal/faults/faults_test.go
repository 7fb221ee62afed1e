package faults

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/transcoder"
)

func TestClassify_TypedBeforeKeywords(t *testing.T) {
	// The message mentions "memory" but the typed code must win.
	err := domainerrors.InvalidInput("input mentions memory but is just malformed")
	assert.Equal(t, KindInvalidInput, Classify(err))
}

func TestClassify_ExecErrors(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   Kind
	}{
		{"unknown encoder", "Unknown encoder 'libfdk_aac'", KindCodecUnavailable},
		{"oom", "av_malloc: Cannot allocate memory", KindInsufficientMemory},
		{"missing input", "/in/x.wav: No such file or directory", KindInvalidInput},
		{"disk full", "/out/x.mp3: No space left on device", KindOutputPath},
		{"generic", "Conversion failed!", KindExternalTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &transcoder.ExecError{Tool: "ffmpeg", ExitCode: 1, Stderr: tt.stderr}
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestClassify_WrappedExecError(t *testing.T) {
	inner := &transcoder.ExecError{Tool: "ffmpeg", ExitCode: 1, Stderr: "Unknown encoder 'aac'"}
	wrapped := fmt.Errorf("encode mp3: %w", inner)
	assert.Equal(t, KindCodecUnavailable, Classify(wrapped))
}

func TestClassify_StdlibSentinels(t *testing.T) {
	assert.Equal(t, KindInvalidInput, Classify(fmt.Errorf("open: %w", fs.ErrNotExist)))
	assert.Equal(t, KindOutputPath, Classify(fmt.Errorf("write: %w", fs.ErrPermission)))
	assert.Equal(t, KindExternalTool, Classify(context.DeadlineExceeded))
}

func TestClassify_Keywords(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"ran out of memory during synthesis", KindInsufficientMemory},
		{"ffmpeg crashed unexpectedly", KindExternalTool},
		{"codec initialization problem", KindCodecUnavailable},
		{"could not load the model weights", KindModelLoad},
		{"inference timed out", KindInference},
		{"generation produced no audio", KindInference},
		{"format negotiation broke down", KindFormatConversion},
		{"voice cloning rejected the clip", KindReferenceSample},
		{"reference sample too short", KindReferenceSample},
		{"something entirely else", KindInference},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(errors.New(tt.msg)))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(KindInvalidInput))
	assert.False(t, Retryable(KindOutputPath))
	assert.True(t, Retryable(KindExternalTool))
	assert.True(t, Retryable(KindInsufficientMemory))
	assert.True(t, Retryable(KindUnknown))
}

func TestSuggestions_CopyIsIndependent(t *testing.T) {
	first := Suggestions(KindInference)
	first[0] = "mutated"
	assert.NotEqual(t, "mutated", Suggestions(KindInference)[0])
}

func TestSuggestions_UnknownKind(t *testing.T) {
	assert.Len(t, Suggestions(Kind("bogus")), 1)
}

func TestFallbackParams(t *testing.T) {
	fc := FallbackParams(KindFormatConversion)
	assert.Equal(t, "mp3", fc.Format)
	assert.Equal(t, 64, fc.BitrateKbps)

	codec := FallbackParams(KindCodecUnavailable)
	assert.Equal(t, "wav", codec.Format)
	assert.Equal(t, "pcm_s16le", codec.Codec)

	mem := FallbackParams(KindInsufficientMemory)
	assert.True(t, mem.UseCPU)
	assert.Equal(t, 1, mem.BatchSize)

	assert.Nil(t, FallbackParams(KindInvalidInput))
	assert.Nil(t, FallbackParams(KindExternalTool))
}
