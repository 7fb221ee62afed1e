// Package config provides application configuration management with
// support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	App          AppConfig
	Logger       LoggerConfig
	Paths        PathsConfig
	Transcoder   TranscoderConfig
	Conversion   ConversionConfig
	Segmentation SegmentationConfig
	History      HistoryConfig
	Output       OutputConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"oneof=debug info warn warning error"`
}

// PathsConfig holds the working directories.
type PathsConfig struct {
	// OutputDir receives produced artifacts (default: ~/AudioForge/output).
	OutputDir string `validate:"required"`
	// TempDir holds intermediate files (default: {output}/tmp).
	TempDir string `validate:"required"`
}

// TranscoderConfig holds external tool configuration.
type TranscoderConfig struct {
	// FFmpegPath overrides auto-detection of ffmpeg (default: auto-detect).
	FFmpegPath string
	// FFprobePath overrides auto-detection of ffprobe (default: auto-detect).
	FFprobePath string
}

// ConversionConfig holds format conversion defaults.
type ConversionConfig struct {
	// Bitrate is the default lossy bitrate in kbit/s (default: 64).
	Bitrate int `validate:"gte=8,lte=320"`
}

// SegmentationConfig holds chapter segmentation configuration.
type SegmentationConfig struct {
	// Enabled turns segmentation on (default: false).
	Enabled bool
	// ChaptersPerFile batches chapters per output (default: 10).
	ChaptersPerFile int `validate:"gte=0"`
	// UseChapterDetection splits along chapter marks (default: true).
	UseChapterDetection bool
	// MaxFileDuration caps output length in seconds; 0 means no cap.
	MaxFileDuration float64 `validate:"gte=0"`
	// CreateSubfolders puts each source's segments in their own folder.
	CreateSubfolders bool
	// Workers bounds concurrent extraction tasks (default: 2).
	Workers int `validate:"gte=0,lte=32"`
	// ForceStreaming always picks the streaming path.
	ForceStreaming bool
}

// HistoryConfig holds recovery history storage configuration.
type HistoryConfig struct {
	// Enabled persists attempt history to SQLite (default: true).
	Enabled bool
	// Path is the database location (default: {output}/history.db).
	Path string
}

// OutputConfig holds artifact registry configuration.
type OutputConfig struct {
	// Watch records files placed into the output directory by external
	// tools (default: false).
	Watch bool
}

// Load builds configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
// The remaining non-flag arguments are returned for command dispatch.
func Load(args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet("audioforge", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	outputDir := fs.String("output-dir", "", "Directory for produced artifacts")
	tempDir := fs.String("temp-dir", "", "Directory for intermediate files")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	ffmpegPath := fs.String("ffmpeg-path", "", "Path to ffmpeg binary (default: auto-detect)")
	ffprobePath := fs.String("ffprobe-path", "", "Path to ffprobe binary (default: auto-detect)")

	bitrate := fs.String("bitrate", "", "Default lossy bitrate in kbit/s (default: 64)")

	segEnabled := fs.String("segmentation", "", "Enable chapter segmentation (default: false)")
	chaptersPerFile := fs.String("chapters-per-file", "", "Chapters per segmented output (default: 10)")
	chapterDetection := fs.String("chapter-detection", "", "Split along chapter marks (default: true)")
	maxFileDuration := fs.String("max-file-duration", "", "Max output length in seconds (default: unlimited)")
	createSubfolders := fs.String("create-subfolders", "", "Per-source segment subfolders (default: false)")
	workers := fs.String("workers", "", "Concurrent extraction workers (default: 2)")
	forceStreaming := fs.String("force-streaming", "", "Always use streaming extraction (default: false)")

	historyEnabled := fs.String("history", "", "Persist recovery history (default: true)")
	historyPath := fs.String("history-path", "", "Recovery history database path")

	watchOutput := fs.String("watch-output", "", "Watch the output directory for external files (default: false)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Paths: PathsConfig{
			OutputDir: getConfigValue(*outputDir, "OUTPUT_DIR", ""),
			TempDir:   getConfigValue(*tempDir, "TEMP_DIR", ""),
		},
		Transcoder: TranscoderConfig{
			FFmpegPath:  getConfigValue(*ffmpegPath, "FFMPEG_PATH", ""),
			FFprobePath: getConfigValue(*ffprobePath, "FFPROBE_PATH", ""),
		},
		Conversion: ConversionConfig{
			Bitrate: getIntConfigValue(*bitrate, "BITRATE", 64),
		},
		Segmentation: SegmentationConfig{
			Enabled:             getBoolConfigValue(*segEnabled, "SEGMENTATION_ENABLED", false),
			ChaptersPerFile:     getIntConfigValue(*chaptersPerFile, "CHAPTERS_PER_FILE", 10),
			UseChapterDetection: getBoolConfigValue(*chapterDetection, "CHAPTER_DETECTION", true),
			MaxFileDuration:     getFloatConfigValue(*maxFileDuration, "MAX_FILE_DURATION", 0),
			CreateSubfolders:    getBoolConfigValue(*createSubfolders, "CREATE_SUBFOLDERS", false),
			Workers:             getIntConfigValue(*workers, "SEGMENTATION_WORKERS", 2),
			ForceStreaming:      getBoolConfigValue(*forceStreaming, "FORCE_STREAMING", false),
		},
		History: HistoryConfig{
			Enabled: getBoolConfigValue(*historyEnabled, "HISTORY_ENABLED", true),
			Path:    getConfigValue(*historyPath, "HISTORY_PATH", ""),
		},
		Output: OutputConfig{
			Watch: getBoolConfigValue(*watchOutput, "WATCH_OUTPUT", false),
		},
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, nil, err
	}

	return cfg, fs.Args(), nil
}

// expandPaths resolves the working directories, applying defaults
// derived from the output directory.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	outputDir, err := expandPath(c.Paths.OutputDir, filepath.Join(homeDir, "AudioForge", "output"))
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}
	c.Paths.OutputDir = outputDir

	tempDir, err := expandPath(c.Paths.TempDir, filepath.Join(outputDir, "tmp"))
	if err != nil {
		return fmt.Errorf("invalid temp directory: %w", err)
	}
	c.Paths.TempDir = tempDir

	historyPath, err := expandPath(c.History.Path, filepath.Join(outputDir, "history.db"))
	if err != nil {
		return fmt.Errorf("invalid history path: %w", err)
	}
	c.History.Path = historyPath

	return nil
}

// expandPath expands ~ and makes the path absolute. An empty path takes
// the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var,
// or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts "true", "1", "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
