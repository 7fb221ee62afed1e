package segment

import (
	"fmt"

	"github.com/audioforge/audioforge/internal/domain"
)

// Group is a batch of consecutive chapters rendered into one output
// file. Ordinals are 1-based so filenames read naturally.
type Group struct {
	First int
	Last  int
	Start float64
	End   float64
}

// Duration returns the group's span in seconds.
func (g Group) Duration() float64 {
	return g.End - g.Start
}

// Filename renders the group's output name: `<base>_<first>-<last>.wav`.
func (g Group) Filename(base string) string {
	return fmt.Sprintf("%s_%d-%d.wav", base, g.First, g.Last)
}

// MakeGroups batches timed chapters into runs of perFile (clamped to
// 1..100). The final group may be shorter. Each group spans from its
// first chapter's start to its last chapter's end.
func MakeGroups(chapters []domain.Chapter, perFile int) []Group {
	perFile = (domain.SegmentationConfig{ChaptersPerFile: perFile}).ClampedChaptersPerFile()

	var groups []Group
	for i := 0; i < len(chapters); i += perFile {
		j := i + perFile
		if j > len(chapters) {
			j = len(chapters)
		}
		groups = append(groups, Group{
			First: i + 1,
			Last:  j,
			Start: chapters[i].StartTime,
			End:   chapters[j-1].EndTime,
		})
	}
	return groups
}
