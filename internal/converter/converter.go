// Package converter turns processed audio into deliverable formats. The
// WAV path is strict; the lossy and chaptered paths degrade silently to
// the pre-conversion file when every retry is spent, so pipeline output
// is never lost to a failed encode.
package converter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/audioforge/audioforge/internal/domain"
	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/faults"
	"github.com/audioforge/audioforge/internal/resource"
	"github.com/audioforge/audioforge/internal/retry"
	"github.com/audioforge/audioforge/internal/temp"
	"github.com/audioforge/audioforge/internal/transcoder"
)

// Transcoder is the external-tool surface the converter needs.
type Transcoder interface {
	Encode(ctx context.Context, req transcoder.EncodeRequest) error
	Concat(ctx context.Context, inputs []string, output string) error
	Probe(ctx context.Context, path string) (*transcoder.Info, error)
	CanEncodeCodec(ctx context.Context, codec string) bool
}

// CoverPreparer bounds cover art before embedding.
type CoverPreparer interface {
	PrepareCover(path string, maxEdge int) (string, error)
}

// coverMaxEdge bounds embedded cover art dimensions.
const coverMaxEdge = 1200

// Converter produces wav, mp3, and m4b deliverables.
type Converter struct {
	tc      Transcoder
	orch    *retry.Orchestrator
	monitor *resource.Monitor
	covers  CoverPreparer
	logger  *slog.Logger
	tempDir string
}

// New builds a Converter. monitor and covers may be nil.
func New(tc Transcoder, orch *retry.Orchestrator, monitor *resource.Monitor, covers CoverPreparer, tempDir string, logger *slog.Logger) *Converter {
	return &Converter{
		tc:      tc,
		orch:    orch,
		monitor: monitor,
		covers:  covers,
		logger:  logger,
		tempDir: tempDir,
	}
}

// Convert converts one input file to the requested target and returns
// the resulting path. For lossy and chaptered targets the returned path
// is the original input when conversion could not be completed; callers
// detect the degrade by extension.
func (c *Converter) Convert(ctx context.Context, req domain.ConversionRequest) (string, error) {
	if _, err := os.Stat(req.InputPath); err != nil {
		if os.IsNotExist(err) {
			return "", domainerrors.NotFoundf("input file not found: %s", req.InputPath)
		}
		return "", domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "cannot read input %s", req.InputPath)
	}
	target, err := domain.ParseFormat(string(req.Target))
	if err != nil {
		return "", err
	}

	outputPath, err := c.resolveOutputPath(req, target)
	if err != nil {
		return "", err
	}

	if c.monitor != nil {
		if snap := c.monitor.Snapshot(); snap.Constrained() {
			c.logger.Warn("converting under resource pressure",
				slog.Any("warnings", snap.Warnings))
		}
	}

	switch target {
	case domain.FormatWAV:
		return c.convertWAV(ctx, req.InputPath, outputPath)
	case domain.FormatMP3:
		return c.convertMP3(ctx, req, outputPath)
	default:
		return c.convertM4B(ctx, req, outputPath)
	}
}

// resolveOutputPath applies the precedence explicit path > output dir +
// derived basename > alongside the input. The parent directory is
// created on demand.
func (c *Converter) resolveOutputPath(req domain.ConversionRequest, target domain.TargetFormat) (string, error) {
	path := req.Options.OutputPath
	if path == "" {
		dir := req.Options.OutputDir
		if dir == "" {
			dir = filepath.Dir(req.InputPath)
		}
		path = filepath.Join(dir, replaceExt(filepath.Base(req.InputPath), target.Ext()))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", domainerrors.Wrapf(err, domainerrors.CodeInternal, "create output directory for %s", path)
	}
	return path, nil
}

// convertWAV re-encodes to 16-bit PCM. WAV is the format of record, so
// failures here propagate after the retry budget is spent.
func (c *Converter) convertWAV(ctx context.Context, inputPath, outputPath string) (string, error) {
	opCtx := retry.NewOperationContext("convert-wav", string(domain.FormatWAV))
	opCtx.InputPath = inputPath

	err := c.orch.Do(ctx, opCtx, func(ctx context.Context, _ int, _ *faults.Fallback) error {
		return c.tc.Encode(ctx, transcoder.EncodeRequest{
			Input:  inputPath,
			Output: outputPath,
			Codec:  "pcm_s16le",
		})
	})
	if err != nil {
		return "", domainerrors.Wrapf(err, domainerrors.CodeConversion, "wav conversion of %s failed", inputPath)
	}
	return outputPath, nil
}

func (c *Converter) convertMP3(ctx context.Context, req domain.ConversionRequest, outputPath string) (string, error) {
	opCtx := retry.NewOperationContext("convert-mp3", string(domain.FormatMP3))
	opCtx.InputPath = req.InputPath

	bitrate := req.Options.EffectiveBitrate()
	err := c.orch.Do(ctx, opCtx, func(ctx context.Context, _ int, fb *faults.Fallback) error {
		kbps := bitrate
		if fb != nil && fb.BitrateKbps > 0 {
			kbps = fb.BitrateKbps
		}
		return c.tc.Encode(ctx, transcoder.EncodeRequest{
			Input:       req.InputPath,
			Output:      outputPath,
			Codec:       "libmp3lame",
			BitrateKbps: kbps,
			Metadata:    req.Options.Metadata,
		})
	})
	if err != nil {
		return c.degrade(req.InputPath, domain.FormatMP3, err), nil
	}
	return outputPath, nil
}

func (c *Converter) convertM4B(ctx context.Context, req domain.ConversionRequest, outputPath string) (string, error) {
	scope, err := temp.NewScope(c.tempDir, c.logger)
	if err != nil {
		return "", err
	}
	defer scope.Close()

	chapterFile, err := c.writeChapterFile(scope, req.Options.Chapters)
	if err != nil {
		return "", err
	}

	coverPath := req.Options.CoverImage
	if coverPath != "" && c.covers != nil {
		prepared, coverErr := c.covers.PrepareCover(coverPath, coverMaxEdge)
		if coverErr != nil {
			c.logger.Warn("skipping undecodable cover image",
				slog.String("path", coverPath), slog.Any("error", coverErr))
			coverPath = ""
		} else {
			coverPath = prepared
		}
	}

	opCtx := retry.NewOperationContext("convert-m4b", string(domain.FormatM4B))
	opCtx.InputPath = req.InputPath

	target := domain.FormatM4B
	finalOut := outputPath

	// A build without the aac encoder would doom every attempt; degrade
	// up front instead of spending the retry budget on it.
	if !c.tc.CanEncodeCodec(ctx, codecFor(target)) {
		fbp := faults.FallbackParams(faults.KindCodecUnavailable)
		c.logger.Warn("aac encoder unavailable, degrading container",
			slog.String("format", fbp.Format),
			slog.String("codec", fbp.Codec),
		)
		if next, ok := degradeTarget(target, fbp.Format); ok {
			target = next
			finalOut = replaceExtPath(outputPath, next.Ext())
		}
	}

	err = c.orch.Do(ctx, opCtx, func(ctx context.Context, _ int, fb *faults.Fallback) error {
		if fb != nil {
			if next, ok := degradeTarget(target, fb.Format); ok {
				c.logger.Warn("degrading container after failed attempt",
					slog.String("from", string(target)),
					slog.String("to", string(next)),
				)
				target = next
				finalOut = replaceExtPath(outputPath, next.Ext())
			}
		}
		enc := transcoder.EncodeRequest{
			Input:       req.InputPath,
			Output:      finalOut,
			Codec:       codecFor(target),
			BitrateKbps: req.Options.EffectiveBitrate(),
			Metadata:    req.Options.Metadata,
		}
		// Chapters and cover art only ride in the mp4 container.
		if target == domain.FormatM4B {
			enc.Format = "mp4"
			enc.FastStart = true
			enc.CoverImage = coverPath
			enc.ChapterFile = chapterFile
		}
		if target == domain.FormatWAV {
			enc.BitrateKbps = 0
		}
		if fb != nil {
			if fb.Codec != "" {
				enc.Codec = fb.Codec
			}
			if fb.BitrateKbps > 0 {
				enc.BitrateKbps = fb.BitrateKbps
			}
		}
		return c.tc.Encode(ctx, enc)
	})
	if err != nil {
		return c.degrade(req.InputPath, domain.FormatM4B, err), nil
	}
	return finalOut, nil
}

// codecFor maps a deliverable target to its default encoder.
func codecFor(target domain.TargetFormat) string {
	switch target {
	case domain.FormatM4B:
		return "aac"
	case domain.FormatMP3:
		return "libmp3lame"
	default:
		return "pcm_s16le"
	}
}

// degradeTarget moves cur down the container chain to the format a
// fallback names. Moves that are sideways or back up the chain are
// refused so a retry can only ever simplify the output.
func degradeTarget(cur domain.TargetFormat, want string) (domain.TargetFormat, bool) {
	if want == "" {
		return cur, false
	}
	next, err := domain.ParseFormat(want)
	if err != nil || next == cur {
		return cur, false
	}
	for f := cur; f != next; {
		d := f.Degrade()
		if d == f {
			return cur, false
		}
		f = d
	}
	return next, true
}

// degrade logs an exhausted lossy conversion and hands back the file
// that already exists.
func (c *Converter) degrade(inputPath string, target domain.TargetFormat, err error) string {
	c.logger.Warn("conversion exhausted retries, keeping existing audio",
		slog.String("target", string(target)),
		slog.String("kept", inputPath),
		slog.Any("error", err),
	)
	return inputPath
}

// writeChapterFile materializes the chapter side file inside the scope.
// No chapters means no file and no chapter mapping.
func (c *Converter) writeChapterFile(scope *temp.Scope, chapters []domain.Chapter) (string, error) {
	if len(chapters) == 0 {
		return "", nil
	}
	f, err := scope.CreateFile("chapters-*.txt")
	if err != nil {
		return "", err
	}
	if err := WriteFFMetadata(f, chapters); err != nil {
		f.Close()
		return "", fmt.Errorf("write chapter metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// Concatenate joins the given WAV files into one process-unique temp
// file. A single path is returned unchanged with zero tool invocations.
func (c *Converter) Concatenate(ctx context.Context, paths []string) (string, error) {
	switch len(paths) {
	case 0:
		return "", domainerrors.InvalidInput("no audio files to concatenate")
	case 1:
		return paths[0], nil
	}

	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return "", domainerrors.Wrapf(err, domainerrors.CodeInternal, "create temp directory %s", c.tempDir)
	}
	f, err := os.CreateTemp(c.tempDir, "combined-*.wav")
	if err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "create concat target")
	}
	output := f.Name()
	f.Close()

	if err := c.tc.Concat(ctx, paths, output); err != nil {
		os.Remove(output)
		return "", domainerrors.Wrapf(err, domainerrors.CodeConversion, "concatenate %d files", len(paths))
	}
	return output, nil
}

// CreateAudiobook assembles processed segments into a chaptered m4b at
// outputPath. When the final encode cannot be completed the combined
// audio is preserved as a WAV next to the requested output.
func (c *Converter) CreateAudiobook(ctx context.Context, segments []string, chapters []domain.Chapter, metadata map[string]string, outputPath string) (string, error) {
	if len(segments) == 0 {
		return "", domainerrors.InvalidInput("no audio segments to assemble")
	}

	combined, err := c.Concatenate(ctx, segments)
	if err != nil {
		return "", err
	}
	// The concat product is ours to clean up; a lone input segment is not.
	ownCombined := combined != segments[0]
	if ownCombined {
		defer os.Remove(combined)
	}

	req := domain.ConversionRequest{
		InputPath: combined,
		Target:    domain.FormatM4B,
		Options: domain.ConversionOptions{
			OutputPath: outputPath,
			Metadata:   metadata,
			Chapters:   chapters,
		},
	}
	result, err := c.Convert(ctx, req)
	if err != nil {
		return "", err
	}

	if result == combined && ownCombined {
		// Degraded: promote the combined temp WAV to a durable location
		// before the deferred cleanup runs.
		preserved := replaceExtPath(outputPath, "wav")
		if mvErr := os.Rename(combined, preserved); mvErr != nil {
			return "", domainerrors.Wrap(mvErr, domainerrors.CodeInternal, "preserve combined audio")
		}
		return preserved, nil
	}
	return result, nil
}

// AddChapterMetadata rewrites the container of an existing file with the
// given chapter bookmarks, producing `<base>_with_chapters.m4b` next to
// it. The audio stream is copied, not re-encoded.
func (c *Converter) AddChapterMetadata(ctx context.Context, path string, chapters []domain.Chapter) (string, error) {
	if len(chapters) == 0 {
		return "", domainerrors.InvalidInput("no chapters to embed")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", domainerrors.NotFoundf("audio file not found: %s", path)
		}
		return "", domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "cannot read %s", path)
	}

	scope, err := temp.NewScope(c.tempDir, c.logger)
	if err != nil {
		return "", err
	}
	defer scope.Close()

	chapterFile, err := c.writeChapterFile(scope, chapters)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	output := base + "_with_chapters.m4b"
	err = c.tc.Encode(ctx, transcoder.EncodeRequest{
		Input:       path,
		Output:      output,
		Codec:       "copy",
		Format:      "mp4",
		FastStart:   true,
		ChapterFile: chapterFile,
	})
	if err != nil {
		return "", domainerrors.Wrapf(err, domainerrors.CodeConversion, "embed chapters into %s", path)
	}
	return output, nil
}

// Probe exposes media inspection to callers that hold a Converter.
func (c *Converter) Probe(ctx context.Context, path string) (*transcoder.Info, error) {
	return c.tc.Probe(ctx, path)
}

// replaceExt swaps the extension of a bare filename.
func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + ext
}

// replaceExtPath swaps the extension of a full path.
func replaceExtPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}
