// Package syncer orchestrates the forward (push) and reverse (pull) flows
// over the shadow builder, the diff oracle, the statement filter and the
// plan applier.
package syncer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"db_declarative_schema_syncer/internal/apply"
	"db_declarative_schema_syncer/internal/diff"
	"db_declarative_schema_syncer/internal/events"
	"db_declarative_schema_syncer/internal/filter"
	"db_declarative_schema_syncer/internal/pull"
	"db_declarative_schema_syncer/internal/schemafiles"
	"db_declarative_schema_syncer/internal/secret"
	"db_declarative_schema_syncer/internal/seed"
	"db_declarative_schema_syncer/internal/shadow"
)

const previewStatements = 5

// Source lists the declarative schema files, already in apply order.
type Source interface {
	Files() ([]schemafiles.SourceFile, error)
}

// LiveProvider resolves the connection to the real target. The engine
// treats the underlying credential as opaque and never logs it raw.
type LiveProvider interface {
	Acquire(ctx context.Context) (apply.Live, error)
}

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultRules encodes which objects the hosting platform owns.
func DefaultRules() diff.PlatformRules {
	return diff.PlatformRules{
		ReservedSchemas: filter.ReservedSchemas,
		ManagedRoles:    []string{"anon", "authenticated", "service_role", "platform_admin"},
		Publication:     filter.PlatformPublication,
	}
}

// Engine runs synchronization operations. It holds only long-lived
// collaborators; shadows, plans and statement lists are single-call values.
type Engine struct {
	Source Source
	Live   LiveProvider
	Shadow *shadow.Builder
	Oracle diff.Oracle
	Rules  diff.PlatformRules
	Events events.Sink
	Logger Logger

	// SeedFile, when set, is executed against Live after a successful
	// apply, never before.
	SeedFile string
}

// CreatePlan materializes the desired state in a fresh shadow, diffs it
// against Live and filters the raw statements down to the actionable plan.
func (e *Engine) CreatePlan(ctx context.Context) (*diff.Plan, error) {
	files, err := e.Source.Files()
	if err != nil {
		return nil, fmt.Errorf("list schema files: %w", err)
	}

	shadowEng, err := e.Shadow.Build(ctx, files, true)
	if err != nil {
		return nil, fmt.Errorf("build shadow: %w", err)
	}
	defer e.destroy(ctx, shadowEng)

	live, err := e.Live.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire live connection: %w", err)
	}

	raw, err := e.Oracle.Compare(ctx, live, shadowEng, e.Rules)
	if err != nil {
		return nil, fmt.Errorf("compare live and shadow: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("oracle returned no plan")
	}

	plan := &diff.Plan{
		Statements:  filter.Statements(raw.Statements),
		Fingerprint: raw.Fingerprint,
		CreatedAt:   raw.CreatedAt,
	}
	e.emit(events.Event{
		Kind:       events.KindPlanComputed,
		RunID:      uuid.NewString(),
		Statements: len(plan.Statements),
		Preview:    preview(plan.Statements),
	})
	return plan, nil
}

// Push plans and applies in one operation.
func (e *Engine) Push(ctx context.Context) (apply.Result, error) {
	plan, err := e.CreatePlan(ctx)
	if err != nil {
		return apply.Result{}, err
	}
	return e.ApplyPlan(ctx, plan)
}

// ApplyPlan runs a previously computed plan under the fingerprint gate and
// reports the outcome through the event sink.
func (e *Engine) ApplyPlan(ctx context.Context, plan *diff.Plan) (apply.Result, error) {
	live, err := e.Live.Acquire(ctx)
	if err != nil {
		return apply.Result{}, fmt.Errorf("acquire live connection: %w", err)
	}

	runID := uuid.NewString()
	if plan.HasChanges() {
		e.emit(events.Event{Kind: events.KindApplyStarted, RunID: runID, Statements: len(plan.Statements)})
	}

	applier := apply.Applier{Fingerprints: e.Oracle, Logger: e.Logger}
	res := applier.Apply(ctx, plan, live)

	switch res.Status {
	case apply.StatusApplied:
		e.emit(events.Event{Kind: events.KindApplySucceeded, RunID: runID, Statements: res.Applied})
	case apply.StatusFingerprintMismatch:
		e.emit(events.Event{
			Kind:     events.KindFingerprintConflict,
			RunID:    runID,
			Expected: res.ExpectedFingerprint,
			Actual:   res.ActualFingerprint,
		})
	case apply.StatusFailed, apply.StatusInvalidPlan:
		e.emit(events.Event{Kind: events.KindApplyFailed, RunID: runID, Statements: res.Applied, Error: res.Error})
	}

	if res.Status == apply.StatusApplied && e.SeedFile != "" {
		if _, err := seed.RunFile(ctx, live, e.SeedFile); err != nil {
			sanitized := secret.RedactErr(err)
			if e.Logger != nil {
				e.Logger.Error("seed execution failed after apply", "error", sanitized)
			}
			return res, fmt.Errorf("apply succeeded but seeding failed: %s", sanitized)
		}
	}
	return res, nil
}

// Pull reconstructs local source files from live state: an empty shadow is
// the from-state and Live the to-state, so the surviving statements are
// the live schema itself.
func (e *Engine) Pull(ctx context.Context, outDir string) ([]string, error) {
	shadowEng, err := e.Shadow.Build(ctx, nil, false)
	if err != nil {
		return nil, fmt.Errorf("build baseline shadow: %w", err)
	}
	defer e.destroy(ctx, shadowEng)

	live, err := e.Live.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire live connection: %w", err)
	}

	raw, err := e.Oracle.Compare(ctx, shadowEng, live, e.Rules)
	if err != nil {
		return nil, fmt.Errorf("compare shadow and live: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("oracle returned no plan")
	}

	fileSet, err := pull.Build(filter.Statements(raw.Statements))
	if err != nil {
		return nil, fmt.Errorf("categorize pulled statements: %w", err)
	}
	paths, err := pull.Write(outDir, fileSet)
	if err != nil {
		return nil, fmt.Errorf("write pulled files: %w", err)
	}

	e.emit(events.Event{Kind: events.KindPullCompleted, RunID: uuid.NewString(), Files: paths})
	return paths, nil
}

func (e *Engine) emit(ev events.Event) {
	if e.Events == nil {
		return
	}
	ev.Time = nowUTC()
	e.Events.Emit(ev)
}

func (e *Engine) destroy(ctx context.Context, eng shadow.Engine) {
	if err := eng.Destroy(ctx); err != nil && e.Logger != nil {
		e.Logger.Error("destroying shadow", "error", secret.RedactErr(err))
	}
}

func preview(stmts []string) []string {
	n := len(stmts)
	if n > previewStatements {
		n = previewStatements
	}
	out := make([]string, 0, n)
	for _, s := range stmts[:n] {
		if len(s) > 120 {
			s = s[:117] + "..."
		}
		out = append(out, s)
	}
	return out
}
