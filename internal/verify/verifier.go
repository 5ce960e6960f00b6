// File: internal/verify/verifier.go
// The verifier decides whether an executed action achieved its intended
// effect and drives bounded retry. Per request the state machine runs
// Executing → Verifying → {Succeeded, Retrying, Escalating} → {Succeeded,
// Failed}; every retryable failure is absorbed here and only the terminal
// outcome crosses the module boundary.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/config"
	"github.com/mverte/visor-cli/internal/dispatch"
	"github.com/mverte/visor-cli/internal/perception"
	"github.com/mverte/visor-cli/internal/window"
)

// RetryState lives only for the duration of one ActionRequest's execution.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	Backoff     []time.Duration
	LastError   error
}

// NextDelay returns the backoff delay for the current attempt. The schedule
// is monotonically non-decreasing; its last entry repeats when attempts
// outnumber entries.
func (s *RetryState) NextDelay() time.Duration {
	if len(s.Backoff) == 0 {
		return 0
	}
	idx := s.Attempt
	if idx >= len(s.Backoff) {
		idx = len(s.Backoff) - 1
	}
	return s.Backoff[idx]
}

// Tracker is the slice of the window tracker the verifier drives.
type Tracker interface {
	Geometry(ctx context.Context) (window.Handle, error)
	Activate(ctx context.Context) error
	Locate(ctx context.Context) error
}

// Snapshotter captures and detects one frame of the window's client area.
type Snapshotter interface {
	Snapshot(ctx context.Context, rect schemas.Rect) (*perception.Snapshot, error)
}

// Executor runs one execution pass of a request; the dispatcher implements
// this.
type Executor interface {
	Execute(ctx context.Context, req schemas.ActionRequest, snap *perception.Snapshot, h window.Handle) dispatch.Outcome
	Ops() *dispatch.Registry
}

// Verifier wraps every execution in a before/after snapshot comparison and
// owns the retry/escalation loop.
type Verifier struct {
	tracker Tracker
	snaps   Snapshotter
	exec    Executor
	cfg     config.VerifierConfig
	logger  *zap.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a verifier.
func New(tracker Tracker, snaps Snapshotter, exec Executor, cfg config.VerifierConfig, logger *zap.Logger) (*Verifier, error) {
	if tracker == nil || snaps == nil || exec == nil {
		return nil, fmt.Errorf("verifier dependencies cannot be nil")
	}
	return &Verifier{
		tracker: tracker,
		snaps:   snaps,
		exec:    exec,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "verifier")),
		sleep:   sleepCtx,
	}, nil
}

// Run executes the request with verification and bounded retry, and builds
// the terminal ActionResult. Attempts total at most MaxAttempts plus the
// single post-escalation attempt.
func (v *Verifier) Run(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult {
	state := RetryState{MaxAttempts: v.cfg.MaxAttempts, Backoff: v.cfg.Backoff}
	trail := make([]schemas.AttemptRecord, 0, state.MaxAttempts+1)
	escalated := false

	for {
		rec := v.attempt(ctx, req, escalated)
		trail = append(trail, rec)

		if rec.ErrorKind == schemas.ErrKindNone {
			return finalize(req, trail, true)
		}
		state.LastError = errors.New(rec.Error)

		if ctx.Err() != nil {
			// Session ceiling or cancellation: forced to Failed regardless
			// of remaining retry budget.
			v.logger.Warn("Request aborted by context", zap.String("operation", req.Operation))
			return finalize(req, trail, false)
		}

		// The delay is indexed by retries already taken, so the first retry
		// waits the schedule's first entry.
		delay := state.NextDelay()
		state.Attempt++
		if state.Attempt < state.MaxAttempts {
			v.logger.Info("Retrying operation",
				zap.String("operation", req.Operation),
				zap.Int("attempt", state.Attempt),
				zap.Duration("backoff", delay))
			if err := v.sleep(ctx, delay); err != nil {
				return finalize(req, trail, false)
			}
			continue
		}

		if !escalated {
			// Escalation: the window may have lost focus; re-activate once
			// and allow one final attempt.
			escalated = true
			v.logger.Warn("Retry budget exhausted, escalating with window re-activation",
				zap.String("operation", req.Operation))
			if err := v.tracker.Activate(ctx); err != nil {
				v.logger.Error("Escalation re-activation failed", zap.Error(err))
			}
			continue
		}

		return finalize(req, trail, false)
	}
}

// attempt runs one capture → execute → settle → verify pass.
func (v *Verifier) attempt(ctx context.Context, req schemas.ActionRequest, escalation bool) schemas.AttemptRecord {
	started := time.Now()
	rec := schemas.AttemptRecord{
		Attempt:    0,
		Escalation: escalation,
		StartedAt:  started,
	}

	fail := func(kind schemas.ErrorKind, err error) schemas.AttemptRecord {
		rec.ErrorKind = kind
		rec.Error = err.Error()
		rec.Duration = time.Since(started)
		return rec
	}

	// Geometry is re-queried per attempt and cached only for this action.
	handle, err := v.tracker.Geometry(ctx)
	if err != nil {
		if errors.Is(err, window.ErrWindowLost) || errors.Is(err, window.ErrWindowNotFound) {
			// A lost handle must be reacquired, never reused.
			if lerr := v.tracker.Locate(ctx); lerr == nil {
				if aerr := v.tracker.Activate(ctx); aerr == nil {
					handle, err = v.tracker.Geometry(ctx)
				}
			}
		}
		if err != nil {
			return fail(schemas.ErrKindWindowNotFound, err)
		}
	}
	if !handle.State.Actionable() {
		if err := v.tracker.Activate(ctx); err != nil {
			return fail(schemas.ErrKindWindowNotFound, err)
		}
		if handle, err = v.tracker.Geometry(ctx); err != nil {
			return fail(schemas.ErrKindWindowNotFound, err)
		}
	}

	before, err := v.snaps.Snapshot(ctx, handle.ClientRect)
	if err != nil {
		return fail(schemas.ErrKindTargetNotResolved, fmt.Errorf("baseline snapshot: %w", err))
	}

	outcome := v.exec.Execute(ctx, req, before, handle)
	rec.Modality = outcome.Modality
	rec.Fallback = outcome.FallbackUsed
	if outcome.Failed() {
		return fail(outcome.ErrKind, outcome.Err)
	}

	effect := v.effectFor(req)
	if effect.Kind == schemas.EffectNone || effect.Kind == "" {
		rec.Outcome = schemas.VerificationSkipped
		rec.Duration = time.Since(started)
		return rec
	}

	if err := v.sleep(ctx, v.settleFor(req)); err != nil {
		return fail(schemas.ErrKindVerificationInconclusive, fmt.Errorf("settle interrupted: %w", err))
	}

	after, err := v.snaps.Snapshot(ctx, handle.ClientRect)
	if err != nil {
		return fail(schemas.ErrKindVerificationInconclusive, fmt.Errorf("post-action snapshot: %w", err))
	}

	rec.Outcome = EvaluateEffect(effect, before, after)
	rec.Duration = time.Since(started)
	switch rec.Outcome {
	case schemas.VerificationConfirmed, schemas.VerificationSkipped:
		return rec
	case schemas.VerificationRefuted:
		rec.ErrorKind = schemas.ErrKindVerificationRefuted
		rec.Error = fmt.Sprintf("expected effect %q on %q not observed", effect.Kind, effect.Label)
	default:
		rec.ErrorKind = schemas.ErrKindVerificationInconclusive
		rec.Error = "expected effect could not be evaluated"
	}
	return rec
}

// effectFor resolves the expected-effect predicate: the request's override
// wins, then the operation registry's default.
func (v *Verifier) effectFor(req schemas.ActionRequest) schemas.EffectSpec {
	if req.Expected != nil {
		return *req.Expected
	}
	if spec, ok := v.exec.Ops().Spec(req.Operation); ok {
		return spec.Effect
	}
	return schemas.EffectSpec{Kind: schemas.EffectNone}
}

// settleFor resolves the post-action settle delay for the operation.
func (v *Verifier) settleFor(req schemas.ActionRequest) time.Duration {
	if spec, ok := v.exec.Ops().Spec(req.Operation); ok && spec.SettleDelay > 0 {
		return spec.SettleDelay
	}
	return v.cfg.SettleDelay
}

// finalize builds the immutable terminal result from the attempt trail.
func finalize(req schemas.ActionRequest, trail []schemas.AttemptRecord, success bool) schemas.ActionResult {
	res := schemas.ActionResult{
		RequestID:  req.ID,
		Operation:  req.Operation,
		Success:    success,
		Attempts:   trail,
		FinishedAt: time.Now(),
	}
	for i := range trail {
		trail[i].Attempt = i + 1
		if trail[i].Fallback {
			res.FallbackUsed = true
		}
	}
	if len(trail) > 0 {
		last := trail[len(trail)-1]
		res.ModalityUsed = last.Modality
		res.Verification = last.Outcome
		if !success {
			res.ErrorKind = last.ErrorKind
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
