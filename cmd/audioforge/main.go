// Package main provides the audioforge command-line interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/audioforge/audioforge/internal/config"
	"github.com/audioforge/audioforge/internal/converter"
	"github.com/audioforge/audioforge/internal/di"
	"github.com/audioforge/audioforge/internal/di/providers"
	"github.com/audioforge/audioforge/internal/domain"
	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/logger"
	"github.com/audioforge/audioforge/internal/normalize"
	"github.com/audioforge/audioforge/internal/output"
	"github.com/audioforge/audioforge/internal/segment"
	"github.com/audioforge/audioforge/internal/validation"
)

const usage = `usage: audioforge [flags] <command> [command flags]

Commands:
  convert   convert an audio file to wav, mp3, or m4b
  segment   split an audio file along its chapters
  history   show recovery history
  version   print the version

Run 'audioforge <command> -h' for command flags.
`

var version = "dev"

func main() {
	cfg, args, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "audioforge: %v\n", err)
		os.Exit(2)
	}
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	injector := di.NewContainer(cfg)
	log := do.MustInvoke[*logger.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch args[0] {
	case "convert":
		runErr = runConvert(ctx, injector, cfg, args[1:])
	case "segment":
		runErr = runSegment(ctx, injector, cfg, args[1:])
	case "history":
		runErr = runHistory(ctx, injector, args[1:])
	case "version":
		fmt.Println("audioforge", version)
	default:
		fmt.Fprint(os.Stderr, usage)
		runErr = fmt.Errorf("unknown command %q", args[0])
	}

	if err := injector.Shutdown(); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if hist, err := do.Invoke[*providers.HistoryHandle](injector); err == nil {
		if err := hist.Shutdown(); err != nil {
			log.Error("failed to close history store", "error", err)
		}
	}

	if runErr != nil {
		log.WithError(runErr).Error("command failed")
		os.Exit(exitCode(runErr))
	}
}

// exitCode maps domain error codes onto conventional exit codes.
func exitCode(err error) int {
	var domErr *domainerrors.Error
	if domainerrors.As(err, &domErr) {
		switch domErr.Code {
		case domainerrors.CodeNotFound, domainerrors.CodeInvalidInput, domainerrors.CodeUnsupported:
			return 2
		}
	}
	return 1
}

func runConvert(ctx context.Context, injector do.Injector, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	target := fs.String("to", "wav", "Target format (wav, mp3, m4b)")
	outPath := fs.String("o", "", "Output file path (default: derived from input)")
	bitrate := fs.Int("bitrate", 0, "Lossy bitrate in kbit/s (default: from config)")
	title := fs.String("title", "", "Title metadata tag")
	artist := fs.String("artist", "", "Artist metadata tag")
	album := fs.String("album", "", "Album metadata tag")
	cover := fs.String("cover", "", "Cover image to embed (m4b)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return domainerrors.InvalidInput("convert expects exactly one input file")
	}

	format, err := domain.ParseFormat(*target)
	if err != nil {
		return err
	}

	// A titled conversion without an explicit output takes its filename
	// from the title.
	resolvedOut := *outPath
	if resolvedOut == "" && *title != "" {
		resolvedOut = filepath.Join(cfg.Paths.OutputDir, normalize.SafeFilename(*title)+"."+format.Ext())
	}

	req := domain.ConversionRequest{
		InputPath: fs.Arg(0),
		Target:    format,
		Options: domain.ConversionOptions{
			Bitrate:    orDefault(*bitrate, cfg.Conversion.Bitrate),
			OutputDir:  cfg.Paths.OutputDir,
			OutputPath: resolvedOut,
			Metadata:   metadataTags(*title, *artist, *album),
			CoverImage: *cover,
		},
	}
	if err := do.MustInvoke[*validation.Validator](injector).Validate(req); err != nil {
		return err
	}

	watcherDone, err := startWatcher(ctx, injector, cfg)
	if err != nil {
		return err
	}
	defer watcherDone()

	conv := do.MustInvoke[*converter.Converter](injector)
	result, err := conv.Convert(ctx, req)
	if err != nil {
		return err
	}

	registry := do.MustInvoke[*output.Registry](injector)
	if _, err := registry.Record(ctx, result); err != nil {
		do.MustInvoke[*logger.Logger](injector).WithError(err).Warn("could not record artifact")
	}

	fmt.Println(result)
	return nil
}

func runSegment(ctx context.Context, injector do.Injector, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	perFile := fs.Int("chapters-per-file", cfg.Segmentation.ChaptersPerFile, "Chapters per output file")
	maxDur := fs.Float64("max-duration", cfg.Segmentation.MaxFileDuration, "Max output length in seconds (0 = unlimited)")
	subfolders := fs.Bool("subfolders", cfg.Segmentation.CreateSubfolders, "Write segments into a per-source subfolder")
	outDir := fs.String("o", cfg.Paths.OutputDir, "Output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return domainerrors.InvalidInput("segment expects exactly one input file")
	}
	input := fs.Arg(0)

	segCfg := domain.SegmentationConfig{
		Enabled:             true,
		ChaptersPerFile:     *perFile,
		UseChapterDetection: cfg.Segmentation.UseChapterDetection,
		CreateSubfolders:    *subfolders,
	}
	if *maxDur > 0 {
		segCfg.MaxFileDuration = maxDur
	}

	watcherDone, err := startWatcher(ctx, injector, cfg)
	if err != nil {
		return err
	}
	defer watcherDone()

	conv := do.MustInvoke[*converter.Converter](injector)
	info, err := conv.Probe(ctx, input)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeInvalidInput, "%s is not a decodable audio file", input)
	}

	planner := do.MustInvoke[*segment.Planner](injector)
	paths, err := planner.Segment(ctx, input, info.Chapters, segCfg, *outDir)
	if err != nil {
		return err
	}

	registry := do.MustInvoke[*output.Registry](injector)
	if len(paths) > 1 || (len(paths) == 1 && paths[0] != input) {
		if _, err := registry.RecordSegmented(ctx, paths); err != nil {
			do.MustInvoke[*logger.Logger](injector).WithError(err).Warn("could not record artifacts")
		}
	}

	for _, path := range paths {
		fmt.Println(path)
	}
	return nil
}

func runHistory(ctx context.Context, injector do.Injector, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 10, "Number of recent failures to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	hist := do.MustInvoke[*providers.HistoryHandle](injector)
	if hist.Store == nil {
		return domainerrors.InvalidInput("recovery history is disabled")
	}

	rate, err := hist.Store.SuccessRate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("success rate: %.1f%%\n", rate*100)

	kinds, err := hist.Store.CommonKinds(ctx, 5)
	if err != nil {
		return err
	}
	for _, kc := range kinds {
		fmt.Printf("  %-22s %d\n", kc.Kind, kc.Count)
	}

	failures, err := hist.Store.RecentFailures(ctx, *limit)
	if err != nil {
		return err
	}
	if len(failures) > 0 {
		fmt.Println("recent failures:")
		for _, f := range failures {
			fmt.Printf("  %s  %s  attempt %d  %s\n",
				f.At.Format("2006-01-02 15:04:05"), f.Kind, f.Attempt, f.Message)
		}
	}
	return nil
}

// startWatcher starts the output watcher when configured and returns
// its stop function.
func startWatcher(ctx context.Context, injector do.Injector, cfg *config.Config) (func(), error) {
	if !cfg.Output.Watch {
		return func() {}, nil
	}
	watcher := do.MustInvoke[*output.Watcher](injector)
	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	return func() { _ = watcher.Stop() }, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// metadataTags assembles the non-empty metadata pairs.
func metadataTags(title, artist, album string) map[string]string {
	tags := make(map[string]string)
	for key, value := range map[string]string{
		"title":  strings.TrimSpace(title),
		"artist": strings.TrimSpace(artist),
		"album":  strings.TrimSpace(album),
	} {
		if value != "" {
			tags[key] = value
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
