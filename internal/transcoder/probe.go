package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/audioforge/audioforge/internal/domain"
)

// Info is the probed description of a media file.
type Info struct {
	Format     string
	Duration   float64 // seconds
	SampleRate int
	Channels   int
	BitRate    int // bits per second
	Size       int64
	Codec      string
	Chapters   []domain.Chapter
}

// probeOutput mirrors the ffprobe -print_format json layout. Numeric
// fields arrive as strings and are parsed leniently.
type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Chapters []struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		Tags      struct {
			Title string `json:"title"`
		} `json:"tags"`
	} `json:"chapters"`
}

// Probe inspects a media file with ffprobe and returns its stream,
// container, and chapter information.
func (t *Transcoder) Probe(ctx context.Context, path string) (*Info, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-show_chapters",
		path,
	}

	cmd := exec.CommandContext(ctx, t.ffprobePath, args...) //nolint:gosec // path resolved at construction
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return nil, &ExecError{
			Tool:     "ffprobe",
			Args:     args,
			ExitCode: exitCode,
			Stderr:   truncateStderr(stderr.String()),
		}
	}

	var raw probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	info := &Info{
		Format:   raw.Format.FormatName,
		Duration: parseFloat(raw.Format.Duration),
		Size:     parseInt64(raw.Format.Size),
		BitRate:  int(parseInt64(raw.Format.BitRate)),
	}

	for _, s := range raw.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.Codec = s.CodecName
		info.SampleRate = int(parseInt64(s.SampleRate))
		info.Channels = s.Channels
		break
	}
	if info.Codec == "" {
		return nil, fmt.Errorf("no audio stream in %s", path)
	}

	for _, c := range raw.Chapters {
		start := parseFloat(c.StartTime)
		end := parseFloat(c.EndTime)
		info.Chapters = append(info.Chapters, domain.Chapter{
			Title:     c.Tags.Title,
			StartTime: start,
			EndTime:   end,
			Timed:     end > start,
		})
	}

	return info, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
