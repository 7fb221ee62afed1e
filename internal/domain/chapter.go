package domain

import (
	"time"

	"github.com/audioforge/audioforge/internal/errors"
)

// Chapter is a labeled time range within a longer track. Before timing
// derivation a chapter may be text-only, in which case Timed is false and
// StartTime/EndTime are meaningless.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"` // seconds
	EndTime   float64 `json:"end_time"`   // seconds
	Content   string  `json:"content,omitempty"`
	Timed     bool    `json:"timed"`
}

// Duration returns the chapter length in seconds.
func (c Chapter) Duration() float64 {
	return c.EndTime - c.StartTime
}

// Validate checks the single-chapter invariant. Ordering and overlap across
// a track are deliberately not checked; upstream chapter sources are
// trusted to be roughly ordered and the even-split derivation fills in
// timing for text-only chapters.
func (c Chapter) Validate() error {
	if !c.Timed {
		return nil
	}
	if c.StartTime >= c.EndTime {
		return errors.InvalidInputf("chapter %q: start %.3fs must precede end %.3fs",
			c.Title, c.StartTime, c.EndTime)
	}
	return nil
}

// AllTimed reports whether every chapter in the list carries real timing.
// An empty list counts as timed; there is nothing to derive.
func AllTimed(chapters []Chapter) bool {
	for _, c := range chapters {
		if !c.Timed {
			return false
		}
	}
	return true
}

// CoveredDuration returns the summed duration of all chapters in seconds.
func CoveredDuration(chapters []Chapter) float64 {
	var total float64
	for _, c := range chapters {
		total += c.Duration()
	}
	return total
}

// SegmentationConfig controls chapter-based output splitting.
type SegmentationConfig struct {
	Enabled             bool     `json:"enabled"`
	ChaptersPerFile     int      `json:"chapters_per_file" validate:"omitempty,gte=0"`
	UseChapterDetection bool     `json:"use_chapter_detection"`
	MaxFileDuration     *float64 `json:"max_file_duration,omitempty"` // seconds
	CreateSubfolders    bool     `json:"create_subfolders"`
}

// DefaultSegmentationConfig returns the segmentation defaults: disabled,
// ten chapters per file, detection on, no duration cap, flat output.
func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{
		Enabled:             false,
		ChaptersPerFile:     10,
		UseChapterDetection: true,
		MaxFileDuration:     nil,
		CreateSubfolders:    false,
	}
}

// ClampedChaptersPerFile returns ChaptersPerFile clamped to [1, 100].
func (c SegmentationConfig) ClampedChaptersPerFile() int {
	return min(100, max(1, c.ChaptersPerFile))
}

// Artifact describes one produced output file.
type Artifact struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	Format       string    `json:"format"`
	Size         int64     `json:"size"`
	Duration     float64   `json:"duration,omitempty"` // seconds
	CreatedAt    time.Time `json:"created_at"`
	Segmented    bool      `json:"segmented"`
	SegmentCount int       `json:"segment_count,omitempty"`
}

// SizeMB returns the artifact size in megabytes.
func (a Artifact) SizeMB() float64 {
	return float64(a.Size) / (1024 * 1024)
}
