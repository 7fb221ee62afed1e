package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, []string) {
	t.Helper()
	// Point at a nonexistent .env so developer machines don't leak one in.
	args = append([]string{"-env-file", filepath.Join(t.TempDir(), "none.env")}, args...)
	cfg, rest, err := Load(args)
	require.NoError(t, err)
	return cfg, rest
}

func TestLoad_Defaults(t *testing.T) {
	cfg, rest := load(t)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 64, cfg.Conversion.Bitrate)
	assert.False(t, cfg.Segmentation.Enabled)
	assert.Equal(t, 10, cfg.Segmentation.ChaptersPerFile)
	assert.True(t, cfg.Segmentation.UseChapterDetection)
	assert.Equal(t, 2, cfg.Segmentation.Workers)
	assert.True(t, cfg.History.Enabled)
	assert.False(t, cfg.Output.Watch)
	assert.Empty(t, rest)

	// Derived paths hang off the output directory.
	assert.NotEmpty(t, cfg.Paths.OutputDir)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputDir, "tmp"), cfg.Paths.TempDir)
	assert.Equal(t, filepath.Join(cfg.Paths.OutputDir, "history.db"), cfg.History.Path)
}

func TestLoad_FlagsBeatEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("BITRATE", "96")

	cfg, _ := load(t, "-log-level", "debug")

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 96, cfg.Conversion.Bitrate)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("SEGMENTATION_ENABLED", "yes")
	t.Setenv("CHAPTERS_PER_FILE", "25")
	t.Setenv("MAX_FILE_DURATION", "1800.5")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, _ := load(t)

	assert.True(t, cfg.Segmentation.Enabled)
	assert.Equal(t, 25, cfg.Segmentation.ChaptersPerFile)
	assert.Equal(t, 1800.5, cfg.Segmentation.MaxFileDuration)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Transcoder.FFmpegPath)
}

func TestLoad_DotEnvFile(t *testing.T) {
	// Register cleanups so values written by the .env loader do not leak
	// into other tests.
	t.Setenv("ENV", "")
	t.Setenv("OUTPUT_DIR", "")
	t.Setenv("HISTORY_ENABLED", "")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`
# comment
ENV=production
OUTPUT_DIR="`+dir+`"
HISTORY_ENABLED='false'
`), 0o644))

	cfg, _, err := Load([]string{"-env-file", envFile})
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, dir, cfg.Paths.OutputDir)
	assert.False(t, cfg.History.Enabled)
}

func TestLoad_RemainingArgsForDispatch(t *testing.T) {
	_, rest := load(t, "-log-level", "warn", "convert", "book.wav")
	assert.Equal(t, []string{"convert", "book.wav"}, rest)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("BITRATE", "loud")
	t.Setenv("SEGMENTATION_WORKERS", "many")

	cfg, _ := load(t)

	assert.Equal(t, 64, cfg.Conversion.Bitrate)
	assert.Equal(t, 2, cfg.Segmentation.Workers)
}

func TestExpandPath(t *testing.T) {
	abs, err := expandPath("/data/out", "")
	require.NoError(t, err)
	assert.Equal(t, "/data/out", abs)

	def, err := expandPath("", "/fallback")
	require.NoError(t, err)
	assert.Equal(t, "/fallback", def)

	home, err := expandPath("~/audio", "")
	require.NoError(t, err)
	homeDir, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(homeDir, "audio"), home)
}
