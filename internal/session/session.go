// File: internal/session/session.go
// A session is the explicitly owned context for one automation run: it holds
// the window tracker, the verifier, and the journal, and it is the single
// entry point callers use. There are no ambient globals; everything the
// pipeline needs travels through the session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
	"github.com/mverte/visor-cli/internal/config"
	"github.com/mverte/visor-cli/internal/journal"
)

// Verifier runs one request to its terminal result.
type Verifier interface {
	Run(ctx context.Context, req schemas.ActionRequest) schemas.ActionResult
}

// Tracker is the slice of the window tracker the session drives.
type Tracker interface {
	WaitForWindow(ctx context.Context) error
	Activate(ctx context.Context) error
	State() schemas.WindowState
}

// journalTimeout bounds the journal write so a slow database cannot stall
// the next action.
const journalTimeout = 10 * time.Second

// Session serializes operations against a single desktop input stream.
// Interleaving two pending actions on the same shared mouse/keyboard focus
// is observably incorrect, so PerformOperation holds an exclusive lock for
// the whole capture → act → verify span. Cancellation is honored only at
// request boundaries.
type Session struct {
	id      string
	mu      sync.Mutex
	tracker Tracker
	verif   Verifier
	journal journal.Journal
	cfg     config.SessionConfig
	logger  *zap.Logger
}

// New creates a session.
func New(tracker Tracker, verif Verifier, jrnl journal.Journal, cfg config.SessionConfig, logger *zap.Logger) (*Session, error) {
	if tracker == nil || verif == nil {
		return nil, fmt.Errorf("session dependencies cannot be nil")
	}
	if jrnl == nil {
		jrnl = journal.Nop{}
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		tracker: tracker,
		verif:   verif,
		journal: jrnl,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "session"), zap.String("session_id", id)),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start waits for the target window and performs the initial activation.
// A degraded activation is a warning, not a failure.
func (s *Session) Start(ctx context.Context) error {
	if err := s.tracker.WaitForWindow(ctx); err != nil {
		return fmt.Errorf("target application not available: %w", err)
	}
	if err := s.tracker.Activate(ctx); err != nil {
		return fmt.Errorf("window activation failed: %w", err)
	}
	if s.tracker.State() == schemas.WindowActivationDegraded {
		s.logger.Warn("Session starting with degraded window activation")
	}
	s.logger.Info("Session started")
	return nil
}

// PerformOperation executes one ActionRequest to completion: it returns
// only after verification, retry and escalation have concluded. The
// configured request timeout is an end-to-end ceiling across
// capture+detect+dispatch+verify; when it trips, the request is forced to
// Failed regardless of remaining retry budget.
func (s *Session) PerformOperation(ctx context.Context, req schemas.ActionRequest) (schemas.ActionResult, error) {
	if req.Operation == "" {
		return schemas.ActionResult{}, fmt.Errorf("request has no operation name")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Request boundary: the only place external cancellation is observed.
	if err := ctx.Err(); err != nil {
		return schemas.ActionResult{}, fmt.Errorf("session cancelled: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	s.logger.Info("Performing operation",
		zap.String("request_id", req.ID),
		zap.String("operation", req.Operation))

	res := s.verif.Run(reqCtx, req)
	if !res.Success && reqCtx.Err() == context.DeadlineExceeded {
		res.ErrorKind = schemas.ErrKindTimeout
	}

	s.record(res)

	if res.Success {
		s.logger.Info("Operation succeeded",
			zap.String("request_id", req.ID),
			zap.String("modality", string(res.ModalityUsed)),
			zap.Bool("fallback", res.FallbackUsed))
	} else {
		s.logger.Error("Operation failed",
			zap.String("request_id", req.ID),
			zap.String("error_kind", string(res.ErrorKind)),
			zap.Int("attempts", len(res.Attempts)))
	}
	return res, nil
}

// record journals the result on a background context so a cancelled request
// still leaves a trail.
func (s *Session) record(res schemas.ActionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := s.journal.Record(ctx, s.id, res); err != nil {
		s.logger.Error("Failed to journal action result",
			zap.String("request_id", res.RequestID),
			zap.Error(err))
	}
}
