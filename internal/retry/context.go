package retry

import (
	"time"

	"github.com/audioforge/audioforge/internal/faults"
	"github.com/audioforge/audioforge/internal/id"
)

// ErrorRecord captures one failed attempt. Records are immutable once
// appended; retries derive their parameters from the history rather
// than mutating earlier entries.
type ErrorRecord struct {
	Attempt     int
	Kind        faults.Kind
	Message     string
	At          time.Time
	Suggestions []string
	Fallback    *faults.Fallback
}

// OperationContext carries the identity and accumulated failure history
// of one pipeline operation. It is owned by a single goroutine; the
// retry state machine is strictly sequential per operation.
type OperationContext struct {
	ID        string
	Stage     string
	Target    string
	InputPath string
	InputSize int64
	Duration  float64
	Attempt   int

	history []ErrorRecord
}

// NewOperationContext mints an operation with a fresh id.
func NewOperationContext(stage, target string) *OperationContext {
	return &OperationContext{
		ID:     id.MustGenerate(id.PrefixOperation),
		Stage:  stage,
		Target: target,
	}
}

// History returns a copy of the append-only failure history.
func (c *OperationContext) History() []ErrorRecord {
	out := make([]ErrorRecord, len(c.history))
	copy(out, c.history)
	return out
}

// LastRecord returns the most recent failure, or nil when none occurred.
func (c *OperationContext) LastRecord() *ErrorRecord {
	if len(c.history) == 0 {
		return nil
	}
	rec := c.history[len(c.history)-1]
	return &rec
}

func (c *OperationContext) record(rec ErrorRecord) {
	c.history = append(c.history, rec)
}
