// File: internal/journal/journal.go
// Persists the terminal outcome and attempt trail of every ActionRequest.
// The journal is an observer: a write failure is logged and reported but
// never alters the result handed to the caller.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mverte/visor-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Journal records finished operations.
type Journal interface {
	Record(ctx context.Context, sessionID string, res schemas.ActionResult) error
}

// Nop discards all records; used when the journal is disabled.
type Nop struct{}

func (Nop) Record(context.Context, string, schemas.ActionResult) error { return nil }

// DBPool abstracts the pgx pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// createTableSQL keeps the journal self-provisioning on first use.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS action_results (
	id            BIGSERIAL PRIMARY KEY,
	session_id    TEXT        NOT NULL,
	request_id    TEXT        NOT NULL,
	operation     TEXT        NOT NULL,
	success       BOOLEAN     NOT NULL,
	modality      TEXT        NOT NULL,
	fallback_used BOOLEAN     NOT NULL,
	error_kind    TEXT        NOT NULL DEFAULT '',
	verification  TEXT        NOT NULL DEFAULT '',
	attempts      JSONB       NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
)`

const insertSQL = `
INSERT INTO action_results
	(session_id, request_id, operation, success, modality, fallback_used, error_kind, verification, attempts, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Pg is the PostgreSQL journal.
type Pg struct {
	pool DBPool
	log  *zap.Logger
}

// NewPg verifies the connection, provisions the table, and returns the
// journal.
func NewPg(ctx context.Context, pool DBPool, logger *zap.Logger) (*Pg, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to provision journal table: %w", err)
	}
	return &Pg{pool: pool, log: logger.Named("journal")}, nil
}

// Record implements Journal.
func (j *Pg) Record(ctx context.Context, sessionID string, res schemas.ActionResult) error {
	attempts, err := json.Marshal(res.Attempts)
	if err != nil {
		return fmt.Errorf("failed to encode attempt trail: %w", err)
	}

	finishedAt := res.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	_, err = j.pool.Exec(ctx, insertSQL,
		sessionID, res.RequestID, res.Operation, res.Success,
		string(res.ModalityUsed), res.FallbackUsed,
		string(res.ErrorKind), string(res.Verification),
		attempts, finishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert action result: %w", err)
	}
	j.log.Debug("Recorded action result",
		zap.String("request_id", res.RequestID),
		zap.Bool("success", res.Success))
	return nil
}
