package converter

import (
	"fmt"
	"io"
	"strings"

	"github.com/audioforge/audioforge/internal/domain"
)

const (
	ffmetadataHeader = ";FFMETADATA1"

	// defaultChapterSeconds is assigned to chapters that carry no timing
	// information.
	defaultChapterSeconds = 300.0
)

// WriteFFMetadata writes an ffmpeg metadata side file containing one
// [CHAPTER] block per chapter, in milliseconds. Untimed chapters are
// laid out sequentially after the last known end, 5 minutes each.
func WriteFFMetadata(w io.Writer, chapters []domain.Chapter) error {
	if _, err := fmt.Fprintln(w, ffmetadataHeader); err != nil {
		return err
	}

	cursor := 0.0
	for i, ch := range chapters {
		start, end := ch.StartTime, ch.EndTime
		if !ch.Timed {
			start = cursor
			end = start + defaultChapterSeconds
		}
		cursor = end

		title := ch.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}

		_, err := fmt.Fprintf(w, "\n[CHAPTER]\nTIMEBASE=1/1000\nSTART=%d\nEND=%d\ntitle=%s\n",
			int64(start*1000), int64(end*1000), escapeMetaValue(title))
		if err != nil {
			return err
		}
	}
	return nil
}

// escapeMetaValue escapes the characters the ffmetadata format treats
// specially: '=', ';', '#', '\' and newline.
func escapeMetaValue(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"=", `\=`,
		";", `\;`,
		"#", `\#`,
		"\n", `\`+"\n",
	)
	return r.Replace(s)
}

// DeriveChapterTimings distributes totalDuration evenly across chapters
// that carry no timings. Chapters already timed are returned unchanged.
func DeriveChapterTimings(chapters []domain.Chapter, totalDuration float64) []domain.Chapter {
	out := make([]domain.Chapter, len(chapters))
	copy(out, chapters)
	if len(out) == 0 || totalDuration <= 0 || domain.AllTimed(out) {
		return out
	}

	per := totalDuration / float64(len(out))
	for i := range out {
		out[i].StartTime = float64(i) * per
		out[i].EndTime = float64(i+1) * per
		out[i].Timed = true
	}
	return out
}
