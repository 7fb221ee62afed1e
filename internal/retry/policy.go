package retry

import (
	"time"

	"github.com/audioforge/audioforge/internal/faults"
)

// maxTotalAttempts is the outer cap on attempts for any single
// operation, applied on top of the per-kind policy caps.
const maxTotalAttempts = 3

// Policy bounds the attempts for one failure kind. MaxAttempts counts
// every try, including the first.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff before the attempt following the given
// 1-based failed attempt: min(Base * 2^(attempt-1), Max).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay << (attempt - 1)
	if delay > p.MaxDelay || delay <= 0 {
		return p.MaxDelay
	}
	return delay
}

// policyTable groups kinds into three escalation families: quick tool
// retries, patient generation retries, and slow memory-pressure retries.
var policyTable = map[faults.Kind]Policy{
	faults.KindFormatConversion: {MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
	faults.KindExternalTool:     {MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
	faults.KindCodecUnavailable: {MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second},
	faults.KindSegmentation:     {MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second},

	faults.KindInference:       {MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
	faults.KindModelLoad:       {MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
	faults.KindReferenceSample: {MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
	faults.KindUnknown:         {MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},

	faults.KindInsufficientMemory: {MaxAttempts: 2, BaseDelay: 5 * time.Second, MaxDelay: 60 * time.Second},
}

// PolicyFor returns the policy for a kind. Non-retryable kinds get a
// zero-attempt policy.
func PolicyFor(kind faults.Kind) Policy {
	if !faults.Retryable(kind) {
		return Policy{}
	}
	if p, ok := policyTable[kind]; ok {
		return p
	}
	return policyTable[faults.KindUnknown]
}
