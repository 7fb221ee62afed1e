// Package normalize provides utilities for normalizing and sanitizing data
// that ends up in output filenames.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxFilenameLen bounds sanitized name components so that the full path
// stays well under common filesystem limits.
const maxFilenameLen = 120

// SafeFilename converts an arbitrary title (often a chapter heading) into a
// string safe to embed in an output filename. It applies NFKC normalization,
// replaces path separators and control characters, and collapses runs of
// whitespace into single underscores.
func SafeFilename(title string) string {
	s := norm.NFKC.String(title)

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		case unicode.IsControl(r):
			// dropped
		case unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}

	out := strings.Trim(b.String(), "._ ")
	if out == "" {
		return "untitled"
	}
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
		// Avoid cutting a multi-byte rune in half.
		out = strings.ToValidUTF8(out, "")
		out = strings.Trim(out, "._ ")
	}
	return out
}
