package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/audioforge/audioforge/internal/errors"
	"github.com/audioforge/audioforge/internal/faults"
	"github.com/audioforge/audioforge/internal/logger"
	"github.com/audioforge/audioforge/internal/transcoder"
)

func newTestOrchestrator(delays *[]time.Duration, opts ...Option) *Orchestrator {
	opts = append(opts, WithSleep(func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}))
	return NewOrchestrator(logger.Discard().Logger, opts...)
}

func TestPolicyDelay_Schedules(t *testing.T) {
	conversion := PolicyFor(faults.KindFormatConversion)
	assert.Equal(t, time.Second, conversion.Delay(1))
	assert.Equal(t, 2*time.Second, conversion.Delay(2))

	inference := PolicyFor(faults.KindInference)
	assert.Equal(t, 2*time.Second, inference.Delay(1))
	assert.Equal(t, 4*time.Second, inference.Delay(2))
	assert.Equal(t, 8*time.Second, inference.Delay(3))

	memory := PolicyFor(faults.KindInsufficientMemory)
	assert.Equal(t, 5*time.Second, memory.Delay(1))
	assert.Equal(t, 10*time.Second, memory.Delay(2))
}

func TestPolicyDelay_CapsAtMax(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
	assert.Equal(t, 8*time.Second, p.Delay(4))
	assert.Equal(t, 10*time.Second, p.Delay(5))
	assert.Equal(t, 10*time.Second, p.Delay(50))
}

func TestPolicyFor_NonRetryable(t *testing.T) {
	assert.Zero(t, PolicyFor(faults.KindInvalidInput).MaxAttempts)
	assert.Zero(t, PolicyFor(faults.KindOutputPath).MaxAttempts)
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	o := newTestOrchestrator(nil)
	opCtx := NewOperationContext("convert", "wav")

	calls := 0
	err := o.Do(context.Background(), opCtx, func(context.Context, int, *faults.Fallback) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, opCtx.History())
	assert.Equal(t, 1.0, o.Stats().SuccessRate())
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var delays []time.Duration
	o := newTestOrchestrator(&delays)
	opCtx := NewOperationContext("convert", "mp3")

	calls := 0
	err := o.Do(context.Background(), opCtx, func(_ context.Context, attempt int, fb *faults.Fallback) error {
		calls++
		if attempt == 1 {
			assert.Nil(t, fb)
			return errors.New("inference hiccup")
		}
		// The fallback from the classified failure reaches the next try.
		require.NotNil(t, fb)
		assert.True(t, fb.UseCPU)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, delays)
	assert.Len(t, opCtx.History(), 1)
}

func TestDo_ConversionExhaustsAtPolicyCap(t *testing.T) {
	var delays []time.Duration
	o := newTestOrchestrator(&delays)
	opCtx := NewOperationContext("convert", "mp3")

	boom := errors.New("format conversion produced no output")
	calls := 0
	err := o.Do(context.Background(), opCtx, func(context.Context, int, *faults.Fallback) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, delays)
	assert.Len(t, opCtx.History(), 2)
}

func TestDo_OuterCapLimitsGenerousPolicies(t *testing.T) {
	// The inference policy alone allows 3 attempts; the outer cap must
	// not allow a fourth even if a custom policy would.
	var delays []time.Duration
	o := newTestOrchestrator(&delays)
	opCtx := NewOperationContext("generate", "wav")

	calls := 0
	err := o.Do(context.Background(), opCtx, func(context.Context, int, *faults.Fallback) error {
		calls++
		return errors.New("inference failed")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
}

func TestDo_InvalidInputFailsImmediately(t *testing.T) {
	o := newTestOrchestrator(nil)
	opCtx := NewOperationContext("convert", "mp3")

	calls := 0
	err := o.Do(context.Background(), opCtx, func(context.Context, int, *faults.Fallback) error {
		calls++
		return domainerrors.NotFound("no such input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	// Terminal input errors leave no attempt history.
	assert.Empty(t, opCtx.History())
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	o := NewOrchestrator(logger.Discard().Logger, WithSleep(sleepContext))
	ctx, cancel := context.WithCancel(context.Background())

	opCtx := NewOperationContext("convert", "mp3")
	done := make(chan error, 1)
	go func() {
		done <- o.Do(ctx, opCtx, func(context.Context, int, *faults.Fallback) error {
			return errors.New("external tool ffmpeg failed")
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestAttempt_RecordsImmutableHistory(t *testing.T) {
	o := newTestOrchestrator(nil)
	opCtx := NewOperationContext("convert", "m4b")
	opCtx.Attempt = 1

	execErr := &transcoder.ExecError{Tool: "ffmpeg", ExitCode: 1, Stderr: "Unknown encoder 'aac'"}
	decision := o.Attempt(opCtx, execErr)

	require.True(t, decision.Retry)
	require.NotNil(t, decision.Fallback)
	assert.Equal(t, "wav", decision.Fallback.Format)

	history := opCtx.History()
	require.Len(t, history, 1)
	assert.Equal(t, faults.KindCodecUnavailable, history[0].Kind)
	assert.NotEmpty(t, history[0].Suggestions)

	// Mutating the returned copy must not touch the stored record.
	history[0].Message = "mutated"
	assert.NotEqual(t, "mutated", opCtx.History()[0].Message)
}

type recordingSink struct {
	ops  []string
	recs []ErrorRecord
}

func (s *recordingSink) RecordAttempt(opID string, rec ErrorRecord) error {
	s.ops = append(s.ops, opID)
	s.recs = append(s.recs, rec)
	return nil
}

func TestDo_PersistsAttemptsToSink(t *testing.T) {
	sink := &recordingSink{}
	o := newTestOrchestrator(nil, WithSink(sink))
	opCtx := NewOperationContext("convert", "mp3")

	_ = o.Do(context.Background(), opCtx, func(context.Context, int, *faults.Fallback) error {
		return errors.New("format conversion failed")
	})

	require.Len(t, sink.recs, 2)
	assert.Equal(t, opCtx.ID, sink.ops[0])
	assert.Equal(t, 1, sink.recs[0].Attempt)
	assert.Equal(t, 2, sink.recs[1].Attempt)
}

type lifecycleSink struct {
	recordingSink
	begun    []string
	finished map[string]bool
}

func (s *lifecycleSink) BeginOperation(_ context.Context, op *OperationContext) error {
	s.begun = append(s.begun, op.ID)
	return nil
}

func (s *lifecycleSink) FinishOperation(_ context.Context, opID string, ok bool) error {
	if s.finished == nil {
		s.finished = make(map[string]bool)
	}
	s.finished[opID] = ok
	return nil
}

func TestDo_RecordsOperationOutcomes(t *testing.T) {
	sink := &lifecycleSink{}
	o := newTestOrchestrator(nil, WithSink(sink))

	succeeded := NewOperationContext("convert", "wav")
	require.NoError(t, o.Do(context.Background(), succeeded, func(context.Context, int, *faults.Fallback) error {
		return nil
	}))

	failed := NewOperationContext("convert", "mp3")
	err := o.Do(context.Background(), failed, func(context.Context, int, *faults.Fallback) error {
		return errors.New("format conversion failed")
	})
	require.Error(t, err)

	assert.Equal(t, []string{succeeded.ID, failed.ID}, sink.begun)
	assert.Equal(t, map[string]bool{succeeded.ID: true, failed.ID: false}, sink.finished)
}

func TestStats_Counters(t *testing.T) {
	s := NewStats()
	s.RecordSuccess()
	s.RecordSuccess()
	s.RecordFailure(faults.KindExternalTool)
	s.RecordFailure(faults.KindExternalTool)
	s.RecordFailure(faults.KindInference)

	assert.InDelta(t, 0.4, s.SuccessRate(), 1e-9)

	common := s.CommonKinds(1)
	require.Len(t, common, 1)
	assert.Equal(t, faults.KindExternalTool, common[0].Kind)
	assert.Equal(t, 2, common[0].Count)

	repeated := s.RepeatedSuggestions(2)
	assert.Equal(t, faults.Suggestions(faults.KindExternalTool), repeated)
}

func TestStats_EmptySuccessRate(t *testing.T) {
	assert.Equal(t, 1.0, NewStats().SuccessRate())
}
