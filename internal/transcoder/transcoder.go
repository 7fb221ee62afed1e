// Package transcoder is the boundary to the external ffmpeg/ffprobe tools.
// The pipeline performs no decode or encode work itself; every conversion,
// extraction, and concatenation is a synchronous, blocking call into this
// package.
package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Transcoder issues parameterized requests to ffmpeg and ffprobe.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// New resolves the tool paths and returns a Transcoder. Empty paths are
// auto-detected via the PATH, matching how the server locates ffmpeg.
func New(ffmpegPath, ffprobePath string, logger *slog.Logger) (*Transcoder, error) {
	if ffmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
		ffmpegPath = path
	}
	if ffprobePath == "" {
		path, err := exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found: %w", err)
		}
		ffprobePath = path
	}
	logger.Info("using external transcoder",
		slog.String("ffmpeg", ffmpegPath),
		slog.String("ffprobe", ffprobePath),
	)
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}, nil
}

// EncodeRequest describes one encode/remux invocation.
type EncodeRequest struct {
	Input  string
	Output string

	// Codec is the audio codec name (pcm_s16le, libmp3lame, aac).
	Codec string
	// BitrateKbps applies to lossy codecs; 0 omits the flag.
	BitrateKbps int
	// Format forces the container (e.g. "mp4" for m4b output); empty lets
	// ffmpeg infer it from the output extension.
	Format string
	// FastStart moves the moov atom up front for mp4-family containers.
	FastStart bool

	// Metadata key-value pairs written as container tags.
	Metadata map[string]string
	// CoverImage, when set, is attached as cover art.
	CoverImage string
	// ChapterFile, when set, is an FFMETADATA side file whose chapter
	// blocks are mapped into the output.
	ChapterFile string
}

// metadataTags are the container tag keys passed through to ffmpeg;
// anything else in the request map is dropped.
var metadataTags = map[string]bool{
	"title":   true,
	"artist":  true,
	"album":   true,
	"date":    true,
	"genre":   true,
	"comment": true,
}

// Encode runs one ffmpeg encode invocation and blocks until it finishes.
func (t *Transcoder) Encode(ctx context.Context, req EncodeRequest) error {
	return t.runFFmpeg(ctx, buildEncodeArgs(req))
}

// buildEncodeArgs constructs the ffmpeg argument list for an encode request.
// Kept separate from Encode so the exact command shape is testable without
// spawning the tool.
func buildEncodeArgs(req EncodeRequest) []string {
	args := []string{"-y", "-i", req.Input}

	// Secondary inputs: chapter metadata, then cover art. Input indices
	// are assigned in that order.
	nextInput := 1
	chapterIndex, coverIndex := -1, -1
	if req.ChapterFile != "" {
		args = append(args, "-i", req.ChapterFile)
		chapterIndex = nextInput
		nextInput++
	}
	if req.CoverImage != "" {
		args = append(args, "-i", req.CoverImage)
		coverIndex = nextInput
	}

	if chapterIndex >= 0 {
		args = append(args, "-map_metadata", strconv.Itoa(chapterIndex))
	}
	if coverIndex >= 0 {
		args = append(args,
			"-map", "0:a",
			"-map", fmt.Sprintf("%d:v", coverIndex),
			"-c:v", "copy",
			"-disposition:v:0", "attached_pic",
		)
	} else {
		args = append(args, "-vn")
	}

	if req.Codec != "" {
		args = append(args, "-c:a", req.Codec)
	}
	if req.BitrateKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", req.BitrateKbps))
	}

	for _, key := range []string{"title", "artist", "album", "date", "genre", "comment"} {
		if v, ok := req.Metadata[key]; ok && v != "" {
			args = append(args, "-metadata", key+"="+v)
		}
	}

	if req.Format != "" {
		args = append(args, "-f", req.Format)
	}
	if req.FastStart {
		args = append(args, "-movflags", "+faststart")
	}

	return append(args, req.Output)
}

// ExtractRequest describes a bounded-window extraction (seek + duration).
type ExtractRequest struct {
	Input   string
	Output  string
	Offset  float64 // seconds
	Seconds float64 // window length
	Codec   string  // defaults to pcm_s16le
}

// Extract reads one bounded window from the input and writes it to the
// output, re-encoded to PCM unless another codec is requested.
func (t *Transcoder) Extract(ctx context.Context, req ExtractRequest) error {
	return t.runFFmpeg(ctx, buildExtractArgs(req))
}

func buildExtractArgs(req ExtractRequest) []string {
	codec := req.Codec
	if codec == "" {
		codec = "pcm_s16le"
	}
	return []string{
		"-y",
		"-ss", formatSeconds(req.Offset),
		"-t", formatSeconds(req.Seconds),
		"-i", req.Input,
		"-vn",
		"-c:a", codec,
		req.Output,
	}
}

// Concat stream-concatenates multiple inputs into a single PCM output.
// The caller guarantees len(inputs) >= 2; single-input short-circuiting
// happens a layer up so no tool is spawned for it.
func (t *Transcoder) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) < 2 {
		return fmt.Errorf("concat requires at least two inputs, got %d", len(inputs))
	}

	// The concat demuxer takes a list file; build it next to the output.
	listFile, err := writeConcatList(inputs)
	if err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listFile)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:a", "pcm_s16le",
		output,
	}
	return t.runFFmpeg(ctx, args)
}

// writeConcatList writes the ffmpeg concat demuxer list file.
func writeConcatList(inputs []string) (string, error) {
	f, err := os.CreateTemp("", "audioforge-concat-*.txt")
	if err != nil {
		return "", err
	}
	for _, input := range inputs {
		// Single quotes in paths are escaped per the demuxer's rules.
		escaped := strings.ReplaceAll(input, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// CanEncodeCodec checks whether the resolved ffmpeg build ships an encoder
// for the given codec. Used for early codec-unavailable detection before
// spending a full invocation on a doomed request.
func (t *Transcoder) CanEncodeCodec(ctx context.Context, codec string) bool {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, "-encoders")
	output, err := cmd.Output()
	if err != nil {
		t.logger.Warn("could not list ffmpeg encoders", slog.Any("error", err))
		// Optimistically assume it can encode - will fail later if not.
		return true
	}
	normalized := strings.ReplaceAll(strings.ToLower(codec), "-", "")
	return strings.Contains(string(output), " "+normalized+" ")
}

// runFFmpeg executes one ffmpeg invocation, capturing stderr for failure
// classification.
func (t *Transcoder) runFFmpeg(ctx context.Context, args []string) error {
	t.logger.Debug("executing ffmpeg", slog.Any("args", args))

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...) //nolint:gosec // path resolved at construction
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return &ExecError{
			Tool:     "ffmpeg",
			Args:     args,
			ExitCode: exitCode,
			Stderr:   truncateStderr(stderr.String()),
		}
	}
	return nil
}

// formatSeconds renders a seconds value for ffmpeg flags.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
