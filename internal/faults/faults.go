// Package faults maps arbitrary pipeline failures onto a closed taxonomy
// of kinds. Retry policies, fallback parameters, and operator-facing
// suggestions all key off the Kind, never off raw error text.
package faults

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/transcoder"
)

// Kind is a closed classification of pipeline failures.
type Kind string

const (
	KindModelLoad          Kind = "model-load"
	KindInference          Kind = "inference"
	KindFormatConversion   Kind = "format-conversion"
	KindSegmentation       Kind = "segmentation"
	KindExternalTool       Kind = "external-tool"
	KindCodecUnavailable   Kind = "codec-unavailable"
	KindInsufficientMemory Kind = "insufficient-memory"
	KindInvalidInput       Kind = "invalid-input"
	KindOutputPath         Kind = "output-path"
	KindReferenceSample    Kind = "reference-sample"
	KindUnknown            Kind = "unknown"
)

// Classify assigns a Kind to err. Typed errors are inspected first;
// keyword matching over the flattened message is strictly a last resort
// and lives in classifyByKeywords.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var execErr *transcoder.ExecError
	if errors.As(err, &execErr) {
		return classifyExec(execErr)
	}

	var domErr *domainerrors.Error
	if errors.As(err, &domErr) {
		switch domErr.Code {
		case domainerrors.CodeNotFound, domainerrors.CodeInvalidInput, domainerrors.CodeUnsupported:
			return KindInvalidInput
		case domainerrors.CodeConversion:
			return KindFormatConversion
		case domainerrors.CodeSegmentation:
			return KindSegmentation
		}
	}

	if errors.Is(err, fs.ErrNotExist) {
		return KindInvalidInput
	}
	if errors.Is(err, fs.ErrPermission) {
		return KindOutputPath
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindExternalTool
	}

	return classifyByKeywords(err.Error())
}

// classifyExec classifies a structured external-tool failure from its
// captured stderr.
func classifyExec(err *transcoder.ExecError) Kind {
	switch {
	case err.StderrContains("unknown encoder"),
		err.StderrContains("encoder not found"),
		err.StderrContains("codec not currently supported"):
		return KindCodecUnavailable
	case err.StderrContains("cannot allocate memory"),
		err.StderrContains("out of memory"):
		return KindInsufficientMemory
	case err.StderrContains("no such file or directory"),
		err.StderrContains("invalid data found when processing input"):
		return KindInvalidInput
	case err.StderrContains("permission denied"),
		err.StderrContains("no space left on device"):
		return KindOutputPath
	default:
		return KindExternalTool
	}
}

// classifyByKeywords is the only place failure text is pattern-matched.
// Order matters: earlier rules win.
func classifyByKeywords(msg string) Kind {
	text := strings.ToLower(msg)
	contains := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(text, s) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("memory"):
		return KindInsufficientMemory
	case contains("ffmpeg"):
		return KindExternalTool
	case contains("codec"):
		return KindCodecUnavailable
	case strings.Contains(text, "model") && strings.Contains(text, "load"):
		return KindModelLoad
	case contains("inference", "generation"):
		return KindInference
	case contains("format", "conversion"):
		return KindFormatConversion
	case contains("voice", "sample"):
		return KindReferenceSample
	default:
		return KindInference
	}
}

// Retryable reports whether failures of this kind may be retried at all.
// Input and path problems are deterministic; repeating them wastes work.
func Retryable(kind Kind) bool {
	switch kind {
	case KindInvalidInput, KindOutputPath:
		return false
	default:
		return true
	}
}

// suggestionTable holds the ordered operator-facing recovery suggestions
// per kind.
var suggestionTable = map[Kind][]string{
	KindModelLoad: {
		"verify the model files are present and readable",
		"check available memory before loading",
		"retry with the CPU backend",
	},
	KindInference: {
		"retry with a smaller batch size",
		"switch to the CPU backend",
		"simplify the generation parameters",
	},
	KindFormatConversion: {
		"verify ffmpeg is installed and on the PATH",
		"try a simpler target format (mp3 or wav)",
		"lower the output bitrate",
	},
	KindSegmentation: {
		"reduce chapters per file",
		"disable chapter detection and segment by duration",
		"retry with streaming disabled",
	},
	KindExternalTool: {
		"verify ffmpeg is installed and on the PATH",
		"check the tool's stderr output for the underlying cause",
	},
	KindCodecUnavailable: {
		"install an ffmpeg build with the required encoder",
		"fall back to wav output",
	},
	KindInsufficientMemory: {
		"close other applications to free memory",
		"enable streaming segmentation",
		"reduce the processing chunk duration",
	},
	KindInvalidInput: {
		"verify the input file exists and is a decodable audio file",
		"check the requested target format",
	},
	KindOutputPath: {
		"verify the output directory exists and is writable",
		"check free disk space",
	},
	KindReferenceSample: {
		"verify the reference sample is a valid audio file",
		"use a longer or cleaner reference sample",
	},
}

// Suggestions returns the ordered recovery suggestions for a kind.
// Unknown kinds get a single generic hint.
func Suggestions(kind Kind) []string {
	if s, ok := suggestionTable[kind]; ok {
		out := make([]string, len(s))
		copy(out, s)
		return out
	}
	return []string{"inspect the logs for the underlying error"}
}

// Fallback holds degraded parameters applied to the next attempt after a
// classified failure. Zero values mean "leave the parameter alone".
type Fallback struct {
	// Format downgrades the target container (m4b -> mp3 -> wav).
	Format string
	// BitrateKbps forces a conservative bitrate.
	BitrateKbps int
	// Codec forces a universally available codec.
	Codec string
	// BatchSize caps generation batch size.
	BatchSize int
	// UseCPU disables accelerator use.
	UseCPU bool
	// Simplified requests simplified generation parameters.
	Simplified bool
	// ChunkSeconds reduces the streaming chunk length.
	ChunkSeconds float64
}

// FallbackParams returns the degraded parameters for the next attempt
// after a failure of the given kind, or nil when no degradation applies.
func FallbackParams(kind Kind) *Fallback {
	switch kind {
	case KindFormatConversion:
		return &Fallback{Format: "mp3", BitrateKbps: 64}
	case KindCodecUnavailable:
		return &Fallback{Format: "wav", Codec: "pcm_s16le"}
	case KindInference, KindModelLoad:
		return &Fallback{BatchSize: 1, UseCPU: true, Simplified: true}
	case KindInsufficientMemory:
		return &Fallback{BatchSize: 1, UseCPU: true, ChunkSeconds: 15}
	default:
		return nil
	}
}
