package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/opt"
	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// ScalarizedOptions configures the weighted-sum search.
type ScalarizedOptions struct {
	Iterations int
	PopSize    int
	Weights    fitness.Objectives
	Seed       int64
	Observer   Observer
}

// Scalarized minimises a weighted sum of the objectives with a
// single-objective optimizer. Every distinct vector is evaluated once;
// repeats are answered from memory.
type Scalarized struct {
	opts      ScalarizedOptions
	optimizer opt.Optimizer
}

// NewScalarized builds the search on the Mayfly optimizer.
func NewScalarized(opts ScalarizedOptions) *Scalarized {
	return NewScalarizedWith(opts, opt.NewMayfly(opts.Iterations, opts.PopSize, opts.Seed))
}

// NewScalarizedWith uses the given optimizer.
func NewScalarizedWith(opts ScalarizedOptions, optimizer opt.Optimizer) *Scalarized {
	return &Scalarized{opts: opts, optimizer: optimizer}
}

// Name returns the strategy name.
func (s *Scalarized) Name() string { return "scalarized" }

// cost is the weighted sum, normalised by the total weight.
func (s *Scalarized) cost(o fitness.Objectives) float64 {
	sum, total := 0.0, 0.0
	for m, w := range s.opts.Weights {
		sum += w * o[m]
		total += w
	}
	if total == 0 {
		return sum
	}
	return sum / total
}

// Run minimises the weighted objective sum with the optimizer.
func (s *Scalarized) Run(ctx context.Context, src FitnessSource, route scenario.RouteConfig) (*Result, error) {
	ev := newEvaluator(src, route, s.opts.Observer)
	memo := make(map[string]fitness.Objectives)
	var fatal error

	// The optimizer cannot be interrupted, so after a fatal error every
	// remaining call returns a cost above the worst without touching the
	// source.
	abort := s.cost(fitness.WorstObjectives) + 1
	objective := func(x []float64) float64 {
		if fatal != nil {
			return abort
		}
		v := make(scenario.Vector, len(x))
		for i, c := range x {
			v[i] = clampBox(c)
		}
		key := v.CSV()
		if o, ok := memo[key]; ok {
			return s.cost(o)
		}
		eval, err := ev.evaluate(ctx, v, 0)
		if err != nil {
			fatal = err
			return abort
		}
		if eval.Failed() {
			slog.Warn("Scenario evaluation failed", "status", eval.Status, "message", eval.Message)
		}
		memo[key] = eval.Objectives
		return s.cost(eval.Objectives)
	}

	slog.Info("Scalarized search started",
		"route", route.Name,
		"iterations", s.opts.Iterations,
		"pop_size", s.opts.PopSize,
		"weights", s.opts.Weights.Slice(),
	)

	lower := make([]float64, scenario.VectorLen)
	upper := make([]float64, scenario.VectorLen)
	for i := range upper {
		upper[i] = upperBound
	}
	best, bestCost, err := s.optimizer.Run(objective, lower, upper, scenario.VectorLen)
	if fatal != nil {
		return nil, fmt.Errorf("scalarized search stopped: %w", fatal)
	}
	if err != nil {
		return nil, fmt.Errorf("scalarized search failed: %w", err)
	}

	result := &Result{
		Strategy:    s.Name(),
		Evaluations: ev.evals,
		Front:       nonDominated(ev.evals),
		Generations: s.opts.Iterations,
	}
	slog.Info("Scalarized search completed",
		"evaluations", len(result.Evaluations),
		"failures", result.Failures(),
		"best_cost", bestCost,
		"best", scenario.Vector(best).CSV(),
	)
	return result, nil
}
