// Package retry drives the recovery state machine around pipeline
// operations: classify the failure, consult the per-kind policy, back
// off, apply degraded parameters, and give up cleanly when exhausted.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/audioforge/audioforge/internal/faults"
)

// Decision is the orchestrator's verdict after a failed attempt.
type Decision struct {
	Retry    bool
	Delay    time.Duration
	Fallback *faults.Fallback
}

// Sink persists attempt records, typically to the history store.
type Sink interface {
	RecordAttempt(opID string, rec ErrorRecord) error
}

// OperationSink extends Sink with operation lifecycle persistence.
// Do brackets each run with Begin/Finish so success rates can be
// computed across process restarts.
type OperationSink interface {
	Sink
	BeginOperation(ctx context.Context, op *OperationContext) error
	FinishOperation(ctx context.Context, opID string, ok bool) error
}

// AttemptFunc is one try of an operation. The fallback holds degraded
// parameters derived from the previous failure; nil on the first try.
type AttemptFunc func(ctx context.Context, attempt int, fb *faults.Fallback) error

// Orchestrator applies retry policies and records outcomes.
type Orchestrator struct {
	logger *slog.Logger
	stats  *Stats
	sink   Sink
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink installs a persistence sink for attempt records.
func WithSink(sink Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithSleep overrides the backoff sleeper. Tests use this to pin delay
// schedules without waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// NoSleep disables backoff waits. Intended for tests.
func NoSleep() Option {
	return WithSleep(func(context.Context, time.Duration) error { return nil })
}

// NewOrchestrator builds an orchestrator with fresh stats.
func NewOrchestrator(logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: logger,
		stats:  NewStats(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats exposes the orchestrator's counters.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Attempt records a failed attempt on the operation and decides whether
// to retry. Input and path errors are terminal and leave no attempt
// history.
func (o *Orchestrator) Attempt(opCtx *OperationContext, err error) Decision {
	kind := faults.Classify(err)
	o.stats.RecordFailure(kind)

	if !faults.Retryable(kind) {
		o.logger.Warn("terminal failure, not retrying",
			slog.String("operation", opCtx.ID),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return Decision{}
	}

	rec := ErrorRecord{
		Attempt:     opCtx.Attempt,
		Kind:        kind,
		Message:     err.Error(),
		At:          o.now(),
		Suggestions: faults.Suggestions(kind),
		Fallback:    faults.FallbackParams(kind),
	}
	opCtx.record(rec)
	if o.sink != nil {
		if sinkErr := o.sink.RecordAttempt(opCtx.ID, rec); sinkErr != nil {
			o.logger.Warn("could not persist attempt record",
				slog.String("operation", opCtx.ID),
				slog.Any("error", sinkErr),
			)
		}
	}

	policy := PolicyFor(kind)
	attempts := len(opCtx.history)
	if attempts >= policy.MaxAttempts || attempts >= maxTotalAttempts {
		o.logger.Error("retries exhausted",
			slog.String("operation", opCtx.ID),
			slog.String("kind", string(kind)),
			slog.Int("attempts", attempts),
			slog.Any("suggestions", rec.Suggestions),
		)
		return Decision{}
	}

	delay := policy.Delay(opCtx.Attempt)
	o.logger.Warn("attempt failed, retrying",
		slog.String("operation", opCtx.ID),
		slog.String("kind", string(kind)),
		slog.Int("attempt", opCtx.Attempt),
		slog.Duration("delay", delay),
		slog.Any("error", err),
	)
	return Decision{Retry: true, Delay: delay, Fallback: rec.Fallback}
}

// Do runs fn under the operation's retry policy. It returns nil on the
// first success, the last error once retries are exhausted, or the
// context error when cancelled mid-backoff.
func (o *Orchestrator) Do(ctx context.Context, opCtx *OperationContext, fn AttemptFunc) (err error) {
	if ls, ok := o.sink.(OperationSink); ok {
		if beginErr := ls.BeginOperation(ctx, opCtx); beginErr != nil {
			o.logger.Warn("could not persist operation start",
				slog.String("operation", opCtx.ID),
				slog.Any("error", beginErr),
			)
		}
		defer func() {
			// Outcomes are recorded even when the run was cancelled.
			finCtx := context.WithoutCancel(ctx)
			if finErr := ls.FinishOperation(finCtx, opCtx.ID, err == nil); finErr != nil {
				o.logger.Warn("could not persist operation outcome",
					slog.String("operation", opCtx.ID),
					slog.Any("error", finErr),
				)
			}
		}()
	}

	var fb *faults.Fallback
	for {
		opCtx.Attempt++
		err := fn(ctx, opCtx.Attempt, fb)
		if err == nil {
			o.stats.RecordSuccess()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		decision := o.Attempt(opCtx, err)
		if !decision.Retry {
			return err
		}
		if sleepErr := o.sleep(ctx, decision.Delay); sleepErr != nil {
			return sleepErr
		}
		fb = decision.Fallback
	}
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
