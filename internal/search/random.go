package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// RandomState is the phase of a random search.
type RandomState int

const (
	StateInit RandomState = iota
	StateSampling
	StateDone
)

func (s RandomState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSampling:
		return "sampling"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("RandomState(%d)", int(s))
}

// RandomOptions configures a random search. A non-empty Vectors batch is
// evaluated as given and CaseNumber is ignored.
type RandomOptions struct {
	CaseNumber int
	Vectors    []scenario.Vector
	Seed       int64
	Observer   Observer
}

// Random evaluates a fixed batch of vectors in order with no feedback.
type Random struct {
	opts  RandomOptions
	state RandomState
	batch []scenario.Vector
}

// NewRandom creates a random search in state Init.
func NewRandom(opts RandomOptions) *Random {
	return &Random{opts: opts}
}

// Name returns the strategy name.
func (r *Random) Name() string { return "random" }

// State reports the current phase.
func (r *Random) State() RandomState {
	return r.state
}

// Run executes Init, then Sampling until the batch is exhausted. A failed
// simulation is recorded and the loop proceeds to the next vector.
func (r *Random) Run(ctx context.Context, src FitnessSource, route scenario.RouteConfig) (*Result, error) {
	r.state = StateInit
	batch, err := r.init()
	if err != nil {
		return nil, err
	}
	r.batch = batch

	r.state = StateSampling
	slog.Info("Random search started", "route", route.Name, "cases", len(batch))

	ev := newEvaluator(src, route, r.opts.Observer)
	for i, v := range batch {
		eval, err := ev.evaluate(ctx, v, 0)
		if err != nil {
			return nil, fmt.Errorf("random search stopped at case %d: %w", i, err)
		}
		if eval.Failed() {
			slog.Warn("Scenario evaluation failed", "case", i, "status", eval.Status, "message", eval.Message)
		} else {
			slog.Debug("Scenario evaluated", "case", i, "objectives", eval.Objectives.Slice())
		}
	}

	r.state = StateDone
	result := &Result{
		Strategy:    r.Name(),
		Evaluations: ev.evals,
		Front:       nonDominated(ev.evals),
	}
	slog.Info("Random search completed", "evaluations", len(result.Evaluations), "failures", result.Failures())
	return result, nil
}

func (r *Random) init() ([]scenario.Vector, error) {
	if len(r.opts.Vectors) > 0 {
		batch := make([]scenario.Vector, len(r.opts.Vectors))
		for i, v := range r.opts.Vectors {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("vector %d: %w", i, err)
			}
			if !v.InBounds() {
				return nil, &scenario.DecodeError{Field: fmt.Sprintf("vectors[%d]", i), Reason: "component outside [0,1]"}
			}
			batch[i] = v.Clone()
		}
		return batch, nil
	}

	if r.opts.CaseNumber <= 0 {
		return nil, fmt.Errorf("case number must be positive, got %d", r.opts.CaseNumber)
	}
	rng := rand.New(rand.NewSource(r.opts.Seed))
	batch := make([]scenario.Vector, r.opts.CaseNumber)
	for i := range batch {
		batch[i] = uniformVector(rng)
	}
	return batch, nil
}

func uniformVector(rng *rand.Rand) scenario.Vector {
	v := make(scenario.Vector, scenario.VectorLen)
	for i := range v {
		v[i] = rng.Float64()
	}
	return v
}
