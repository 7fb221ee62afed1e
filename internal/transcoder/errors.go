package transcoder

import (
	"fmt"
	"strings"
)

// maxStderrBytes bounds the captured diagnostic text carried by ExecError.
const maxStderrBytes = 16 * 1024

// ExecError is the structured failure payload from an external tool run.
// It keeps the exit status and stderr so classification can work from
// typed data instead of parsing a flattened message.
type ExecError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	tail := lastLine(e.Stderr)
	if tail == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, tail)
}

// StderrContains reports whether the captured stderr contains the given
// substring, case-insensitively.
func (e *ExecError) StderrContains(substr string) bool {
	return strings.Contains(strings.ToLower(e.Stderr), strings.ToLower(substr))
}

// lastLine returns the last non-empty line of s, which for ffmpeg is
// usually the actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// truncateStderr caps stderr at maxStderrBytes, keeping the tail where
// ffmpeg prints its failure reason.
func truncateStderr(s string) string {
	if len(s) <= maxStderrBytes {
		return s
	}
	return s[len(s)-maxStderrBytes:]
}
