// Package store defines the persistence contract for submissions and
// problems (spec.md §6.3) and provides a Postgres-backed implementation
// grounded on the teacher's pkg/database pool, plus an in-memory
// implementation for tests.
package store

import (
	"context"
	"errors"

	"vjudge-orchestrator/internal/vjudge/model"
)

// ErrNotFound is returned when a submission or problem row does not exist.
var ErrNotFound = errors.New("store: not found")

// SubmissionStore is the contract Submitter, StatusCrawler, SubmitterHandler
// and the recovery scan depend on. Every mutation is its own commit/
// transaction; no long-running transactions are used (spec.md §5).
type SubmissionStore interface {
	Get(ctx context.Context, id int64) (*model.Submission, error)
	Insert(ctx context.Context, s *model.Submission) (int64, error)

	// SetSubmitted commits run_id/user_id/verdict=Being Judged atomically
	// (spec.md invariant: Being Judged only after both are set).
	SetSubmitted(ctx context.Context, id int64, runID, userID string) error

	// SetVerdict commits a terminal or transient verdict. Implementations
	// must refuse to overwrite an already-terminal verdict.
	SetVerdict(ctx context.Context, id int64, v model.Verdict) error

	// SetResult commits a terminal verdict together with exe_time/exe_mem.
	SetResult(ctx context.Context, id int64, v model.Verdict, exeTime, exeMem int) error

	// ListPending returns every submission with verdict in
	// {Queuing, Being Judged}, used by SubmitterHandler's crash-recovery
	// scan.
	ListPending(ctx context.Context) ([]*model.Submission, error)
}

// ProblemStore is the contract ProblemCrawler and the periodic refresher
// depend on.
type ProblemStore interface {
	Get(ctx context.Context, ojName, problemID string) (*model.Problem, error)

	// Upsert inserts or replaces the problem row, stamping LastUpdate to
	// now. Idempotent on (OJName, ProblemID) — no per-problem locking is
	// required (spec.md §4.3).
	Upsert(ctx context.Context, p *model.Problem) error

	// Stale returns every problem whose LastUpdate is older than 24h.
	Stale(ctx context.Context) ([]*model.Problem, error)

	// MaxProblemID returns, for each OJ, the maximum problem id currently
	// on record (used for the forward-prefetch of spec.md §4.5). Problem
	// ids that do not integer-parse are ignored for this computation.
	MaxProblemID(ctx context.Context) (map[string]int, error)
}
