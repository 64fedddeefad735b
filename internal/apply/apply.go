// Package apply executes a filtered plan against the live target under an
// optimistic-concurrency gate: no statement runs unless the target still
// matches the state the plan was computed from.
package apply

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"db_declarative_schema_syncer/internal/diff"
	"db_declarative_schema_syncer/internal/secret"
)

// Status is the terminal outcome of one apply call.
type Status string

const (
	StatusApplied             Status = "applied"
	StatusAlreadyApplied      Status = "already_applied"
	StatusFingerprintMismatch Status = "fingerprint_mismatch"
	StatusInvalidPlan         Status = "invalid_plan"
	StatusFailed              Status = "failed"
)

var (
	ErrFingerprintMismatch = errors.New("live state changed since the plan was created")
	ErrInvalidPlan         = errors.New("plan is structurally unusable")
)

// Result reports how an apply ended. Failed results carry the sanitized
// first error plus how many statements succeeded before it, so the caller
// can reconcile; there is no automatic rollback.
type Result struct {
	Status              Status `json:"status"`
	Applied             int    `json:"applied"`
	ExpectedFingerprint string `json:"expected_fingerprint,omitempty"`
	ActualFingerprint   string `json:"actual_fingerprint,omitempty"`
	Error               string `json:"error,omitempty"`
}

// Retryable reports whether re-planning and trying again is the expected
// recovery, as opposed to an error worth alerting on.
func (r Result) Retryable() bool {
	return r.Status == StatusFingerprintMismatch
}

// Executor is the write surface of the live target. *pgxpool.Pool and
// *pgx.Conn satisfy it.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Fingerprinter re-derives the live target's current state summary. The
// built-in oracle implements it.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, conn diff.Querier) (string, error)
}

// Live bundles both surfaces of the real target.
type Live interface {
	Executor
	diff.Querier
}

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Applier runs plans against the live target.
type Applier struct {
	Fingerprints Fingerprinter
	Logger       Logger
}

// Apply executes the plan's statements in order against live.
//
// An empty plan short-circuits to AlreadyApplied without touching the
// target. If the live fingerprint no longer matches the plan's, nothing is
// applied and the result carries both values. All statuses are terminal;
// the plan itself is never mutated.
func (a *Applier) Apply(ctx context.Context, plan *diff.Plan, live Live) Result {
	if plan == nil || plan.Fingerprint == "" {
		return Result{Status: StatusInvalidPlan, Error: ErrInvalidPlan.Error()}
	}
	if !plan.HasChanges() {
		return Result{Status: StatusAlreadyApplied, ExpectedFingerprint: plan.Fingerprint}
	}

	actual, err := a.Fingerprints.Fingerprint(ctx, live)
	if err != nil {
		return Result{Status: StatusFailed, Error: secret.RedactErr(fmt.Errorf("fingerprint live state: %w", err))}
	}
	if actual != plan.Fingerprint {
		if a.Logger != nil {
			a.Logger.Info("apply aborted on fingerprint mismatch",
				"expected", plan.Fingerprint, "actual", actual)
		}
		return Result{
			Status:              StatusFingerprintMismatch,
			ExpectedFingerprint: plan.Fingerprint,
			ActualFingerprint:   actual,
			Error:               ErrFingerprintMismatch.Error(),
		}
	}

	applied := 0
	for _, stmt := range plan.Statements {
		if _, err := live.Exec(ctx, stmt); err != nil {
			// Statement-level transactionality of the target is outside
			// this engine's control; report progress instead.
			return Result{
				Status:              StatusFailed,
				Applied:             applied,
				ExpectedFingerprint: plan.Fingerprint,
				Error:               secret.RedactErr(fmt.Errorf("statement %d: %w", applied+1, err)),
			}
		}
		applied++
	}

	if a.Logger != nil {
		a.Logger.Info("plan applied", "statements", applied)
	}
	return Result{
		Status:              StatusApplied,
		Applied:             applied,
		ExpectedFingerprint: plan.Fingerprint,
	}
}
