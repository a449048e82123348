// Package search drives scenario vectors through a FitnessSource. The
// strategies never know whether a source runs the simulator or a surrogate.
package search

import (
	"context"
	"fmt"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// FitnessSource scores one scenario vector against a route.
//
// Simulations that crash or time out come back as evaluations with
// worst-case objectives. A non-nil error means the search must stop.
type FitnessSource interface {
	Evaluate(ctx context.Context, v scenario.Vector, route scenario.RouteConfig) (fitness.Evaluation, error)
}

// Strategy is one search algorithm.
type Strategy interface {
	Name() string
	Run(ctx context.Context, src FitnessSource, route scenario.RouteConfig) (*Result, error)
}

// EvaluationEvent is emitted after every completed evaluation.
type EvaluationEvent struct {
	Index      int
	Generation int
	Route      string
	Evaluation fitness.Evaluation
}

// GenerationEvent is emitted once per generation by generational strategies.
type GenerationEvent struct {
	Generation  int
	Evaluations int
	Progress    ProgressStats
}

// Observer receives search progress. Callbacks run on the search goroutine
// and must not block for long.
type Observer interface {
	OnEvaluation(EvaluationEvent)
	OnGeneration(GenerationEvent)
}

// Observers fans events out to every member.
type Observers []Observer

func (o Observers) OnEvaluation(e EvaluationEvent) {
	for _, obs := range o {
		obs.OnEvaluation(e)
	}
}

func (o Observers) OnGeneration(e GenerationEvent) {
	for _, obs := range o {
		obs.OnGeneration(e)
	}
}

type nopObserver struct{}

func (nopObserver) OnEvaluation(EvaluationEvent) {}
func (nopObserver) OnGeneration(GenerationEvent) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

// Front is a set of decision vectors with their objectives, row-aligned.
type Front struct {
	X []scenario.Vector    `json:"x"`
	F []fitness.Objectives `json:"f"`
}

// Len returns the number of rows.
func (f Front) Len() int {
	return len(f.X)
}

// Matrix returns X and F as plain float matrices.
func (f Front) Matrix() ([][]float64, [][]float64) {
	x := make([][]float64, len(f.X))
	obj := make([][]float64, len(f.F))
	for i := range f.X {
		x[i] = f.X[i].Clone()
		obj[i] = f.F[i].Slice()
	}
	return x, obj
}

// Result is the outcome of one search run.
type Result struct {
	Strategy    string
	Evaluations []fitness.Evaluation
	Front       Front
	Generations int
}

// Failures counts evaluations that did not complete.
func (r *Result) Failures() int {
	n := 0
	for _, e := range r.Evaluations {
		if e.Failed() {
			n++
		}
	}
	return n
}

// evaluator wraps a source with ordering, bookkeeping and event emission.
type evaluator struct {
	src      FitnessSource
	route    scenario.RouteConfig
	observer Observer
	evals    []fitness.Evaluation
}

func newEvaluator(src FitnessSource, route scenario.RouteConfig, observer Observer) *evaluator {
	return &evaluator{src: src, route: route, observer: observerOrNop(observer)}
}

func (e *evaluator) evaluate(ctx context.Context, v scenario.Vector, generation int) (fitness.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return fitness.Evaluation{}, err
	}
	eval, err := e.src.Evaluate(ctx, v, e.route)
	if err != nil {
		return fitness.Evaluation{}, fmt.Errorf("evaluation %d: %w", len(e.evals), err)
	}
	if eval.Vector == nil {
		eval.Vector = v.Clone()
	}
	index := len(e.evals)
	e.evals = append(e.evals, eval)
	e.observer.OnEvaluation(EvaluationEvent{
		Index:      index,
		Generation: generation,
		Route:      e.route.Name,
		Evaluation: eval,
	})
	return eval, nil
}

// nonDominated returns the first front of evals, dropping repeated vectors.
func nonDominated(evals []fitness.Evaluation) Front {
	var front Front
	seen := make(map[string]bool)
	for i, a := range evals {
		dominated := false
		for j, b := range evals {
			if i != j && b.Objectives.Dominates(a.Objectives) {
				dominated = true
				break
			}
		}
		if dominated {
			continue
		}
		key := a.Vector.CSV()
		if seen[key] {
			continue
		}
		seen[key] = true
		front.X = append(front.X, a.Vector.Clone())
		front.F = append(front.F, a.Objectives)
	}
	return front
}
