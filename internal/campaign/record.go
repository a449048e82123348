package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/search"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// recorder writes every evaluation to the run trace and, when enabled, the
// SQLite archive. Observers cannot fail, so the first write error is kept
// and surfaced by guardedSource on the next evaluation.
type recorder struct {
	runID   string
	trace   *store.TraceWriter
	archive *store.SQLiteArchive
	err     error
}

func (r *recorder) OnEvaluation(e search.EvaluationEvent) {
	if r.err != nil {
		return
	}
	entry := store.TraceEntry{
		Index:      e.Index,
		Generation: e.Generation,
		Route:      e.Route,
		Vector:     e.Evaluation.Vector.Clone(),
		Objectives: e.Evaluation.Objectives.Slice(),
		Status:     string(e.Evaluation.Status),
		Message:    e.Evaluation.Message,
		Timestamp:  time.Now(),
	}
	if err := r.trace.Write(entry); err != nil {
		r.err = fmt.Errorf("trace write failed: %w", err)
		return
	}
	if r.archive != nil {
		if err := r.archive.SaveEvaluation(context.Background(), r.runID, entry); err != nil {
			r.err = fmt.Errorf("archive write failed: %w", err)
		}
	}
}

func (r *recorder) OnGeneration(search.GenerationEvent) {
	if r.err != nil {
		return
	}
	if err := r.trace.Flush(); err != nil {
		r.err = fmt.Errorf("trace flush failed: %w", err)
	}
}

// guardedSource refuses to evaluate once the recorder has failed.
type guardedSource struct {
	inner    search.FitnessSource
	recorder *recorder
}

func (g *guardedSource) Evaluate(ctx context.Context, v scenario.Vector, route scenario.RouteConfig) (fitness.Evaluation, error) {
	if g.recorder.err != nil {
		return fitness.Evaluation{}, g.recorder.err
	}
	return g.inner.Evaluate(ctx, v, route)
}
