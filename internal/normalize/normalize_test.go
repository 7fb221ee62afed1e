package normalize

import (
	"strings"
	"testing"
)

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Chapter 1", "Chapter_1"},
		{"Intro: The Beginning", "Intro_The_Beginning"},
		{"a/b\\c", "a_b_c"},
		{"  spaced   out  ", "spaced_out"},
		{"quotes\"and<brackets>", "quotes_and_brackets"},
		{"", "untitled"},
		{"///", "untitled"},
		{"tab\there", "tab_here"},
	}

	for _, tt := range tests {
		if got := SafeFilename(tt.input); got != tt.expected {
			t.Errorf("SafeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSafeFilename_Truncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := SafeFilename(long)
	if len(got) > maxFilenameLen {
		t.Errorf("expected truncation to %d chars, got %d", maxFilenameLen, len(got))
	}
}

func TestSafeFilename_NormalizesUnicode(t *testing.T) {
	// NFKC folds the fullwidth digit to ASCII.
	if got := SafeFilename("Chapter１"); got != "Chapter1" {
		t.Errorf("expected NFKC normalization, got %q", got)
	}
}
