package domain

import (
	"strings"

	"github.com/audioforge/audioforge/internal/errors"
)

// TargetFormat identifies a deliverable container/codec target.
type TargetFormat string

const (
	// FormatWAV is raw 16-bit PCM in a WAV container.
	FormatWAV TargetFormat = "wav"
	// FormatMP3 is the lossy target (configurable bitrate).
	FormatMP3 TargetFormat = "mp3"
	// FormatM4B is the chaptered audiobook container.
	FormatM4B TargetFormat = "m4b"
)

// DefaultMP3Bitrate is the lossy bitrate in kbit/s used when the request
// does not specify one.
const DefaultMP3Bitrate = 64

// ParseFormat converts a string to a TargetFormat.
func ParseFormat(s string) (TargetFormat, error) {
	switch TargetFormat(strings.ToLower(strings.TrimPrefix(s, "."))) {
	case FormatWAV:
		return FormatWAV, nil
	case FormatMP3:
		return FormatMP3, nil
	case FormatM4B:
		return FormatM4B, nil
	default:
		return "", errors.Unsupportedf("unsupported output format: %s", s)
	}
}

// Ext returns the filename extension for the format, without the dot.
func (f TargetFormat) Ext() string {
	return string(f)
}

// Degrade returns the next simpler format in the fallback chain
// m4b -> mp3 -> wav. WAV has nowhere left to go and returns itself.
func (f TargetFormat) Degrade() TargetFormat {
	switch f {
	case FormatM4B:
		return FormatMP3
	case FormatMP3:
		return FormatWAV
	default:
		return FormatWAV
	}
}
