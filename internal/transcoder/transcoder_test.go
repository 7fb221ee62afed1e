package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioforge/audioforge/internal/logger"
)

func TestBuildEncodeArgs_WAV(t *testing.T) {
	args := buildEncodeArgs(EncodeRequest{
		Input:  "/in/book.m4a",
		Output: "/out/book.wav",
		Codec:  "pcm_s16le",
	})

	assert.Equal(t, []string{
		"-y", "-i", "/in/book.m4a",
		"-vn",
		"-c:a", "pcm_s16le",
		"/out/book.wav",
	}, args)
}

func TestBuildEncodeArgs_MP3WithBitrate(t *testing.T) {
	args := buildEncodeArgs(EncodeRequest{
		Input:       "/in/book.wav",
		Output:      "/out/book.mp3",
		Codec:       "libmp3lame",
		BitrateKbps: 64,
	})

	assert.Contains(t, args, "-b:a")
	idx := indexOf(args, "-b:a")
	require.Less(t, idx+1, len(args))
	assert.Equal(t, "64k", args[idx+1])
}

func TestBuildEncodeArgs_M4BFull(t *testing.T) {
	args := buildEncodeArgs(EncodeRequest{
		Input:       "/in/book.wav",
		Output:      "/out/book.m4b",
		Codec:       "aac",
		BitrateKbps: 64,
		Format:      "mp4",
		FastStart:   true,
		ChapterFile: "/tmp/chapters.txt",
		CoverImage:  "/tmp/cover.jpg",
		Metadata:    map[string]string{"title": "My Book", "artist": "Narrator"},
	})

	// Chapter metadata file is input 1, cover is input 2.
	assert.Equal(t, "/tmp/chapters.txt", args[indexOf(args, "-i")+3])
	assert.Contains(t, args, "-map_metadata")
	assert.Equal(t, "1", args[indexOf(args, "-map_metadata")+1])
	assert.Equal(t, "2:v", args[indexOf(args, "-map")+3])
	assert.Contains(t, args, "-disposition:v:0")
	assert.Contains(t, args, "title=My Book")
	assert.Contains(t, args, "artist=Narrator")
	assert.Contains(t, args, "+faststart")
	assert.Equal(t, "/out/book.m4b", args[len(args)-1])
	// Cover present, so audio-only stripping must not be.
	assert.NotContains(t, args, "-vn")
}

func TestBuildEncodeArgs_SkipsEmptyMetadata(t *testing.T) {
	args := buildEncodeArgs(EncodeRequest{
		Input:    "/in/a.wav",
		Output:   "/out/a.mp3",
		Codec:    "libmp3lame",
		Metadata: map[string]string{"title": "", "album": "Series"},
	})

	assert.NotContains(t, args, "title=")
	assert.Contains(t, args, "album=Series")
}

func TestBuildExtractArgs(t *testing.T) {
	args := buildExtractArgs(ExtractRequest{
		Input:   "/in/long.wav",
		Output:  "/tmp/seg.wav",
		Offset:  90.5,
		Seconds: 1800,
	})

	assert.Equal(t, []string{
		"-y",
		"-ss", "90.500",
		"-t", "1800.000",
		"-i", "/in/long.wav",
		"-vn",
		"-c:a", "pcm_s16le",
		"/tmp/seg.wav",
	}, args)
}

func TestExecError_Message(t *testing.T) {
	err := &ExecError{
		Tool:     "ffmpeg",
		ExitCode: 1,
		Stderr:   "frame=100\nsize=2048\n/out/x.mp3: No space left on device\n",
	}
	assert.Equal(t, "ffmpeg exited with code 1: /out/x.mp3: No space left on device", err.Error())
	assert.True(t, err.StderrContains("no space left"))
	assert.False(t, err.StderrContains("codec not found"))
}

func TestExecError_EmptyStderr(t *testing.T) {
	err := &ExecError{Tool: "ffprobe", ExitCode: 127}
	assert.Equal(t, "ffprobe exited with code 127", err.Error())
}

func TestTruncateStderr_KeepsTail(t *testing.T) {
	long := make([]byte, maxStderrBytes*2)
	for i := range long {
		long[i] = 'a'
	}
	long[len(long)-1] = 'z'

	got := truncateStderr(string(long))
	assert.Len(t, got, maxStderrBytes)
	assert.Equal(t, byte('z'), got[len(got)-1])
}

func TestCanEncodeCodec(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte(
		"#!/bin/sh\n"+
			"echo ' A..... aac                  AAC (Advanced Audio Coding)'\n"+
			"echo ' A..... libmp3lame           MP3 (MPEG audio layer 3)'\n"+
			"echo ' A..... pcm_s16le            PCM signed 16-bit little-endian'\n",
	), 0o755))
	tr := &Transcoder{ffmpegPath: script, logger: logger.Discard().Logger}

	assert.True(t, tr.CanEncodeCodec(context.Background(), "aac"))
	assert.True(t, tr.CanEncodeCodec(context.Background(), "libmp3lame"))
	assert.False(t, tr.CanEncodeCodec(context.Background(), "libopus"))
}

func TestCanEncodeCodec_ListFailureIsOptimistic(t *testing.T) {
	tr := &Transcoder{
		ffmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		logger:     logger.Discard().Logger,
	}

	// When the encoder list cannot be read the encode attempt decides.
	assert.True(t, tr.CanEncodeCodec(context.Background(), "aac"))
}

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}
