package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// maxDuplicateAttempts bounds the resampling of a duplicate offspring before
// a uniform vector is drawn instead.
const maxDuplicateAttempts = 100

// GeneticOptions configures NSGA-II.
type GeneticOptions struct {
	PopSize       int
	Offspring     int
	Generations   int
	CrossoverProb float64
	CrossoverEta  float64
	MutationEta   float64
	// MutationProb is the per-variable probability; 0 means 1/14.
	MutationProb float64
	Seed         int64

	Observer Observer
}

// DefaultGeneticOptions returns the reference NSGA-II settings.
func DefaultGeneticOptions() GeneticOptions {
	return GeneticOptions{
		PopSize:       50,
		Offspring:     10,
		Generations:   76,
		CrossoverProb: 0.9,
		CrossoverEta:  15,
		MutationEta:   20,
		Seed:          1,
	}
}

// Genetic is NSGA-II over [0,1]^14. Generation 1 is the evaluated initial
// population; every later generation evaluates exactly Offspring new
// vectors, none of which repeats a vector evaluated earlier in the run.
type Genetic struct {
	opts GeneticOptions
}

// NewGenetic creates an NSGA-II search. A zero MutationProb means 1/n.
func NewGenetic(opts GeneticOptions) *Genetic {
	if opts.MutationProb == 0 {
		opts.MutationProb = 1 / float64(scenario.VectorLen)
	}
	return &Genetic{opts: opts}
}

// Name returns the strategy name.
func (g *Genetic) Name() string { return "genetic" }

// Evaluations returns how many evaluations a full run performs.
func (g *Genetic) Evaluations() int {
	return g.opts.PopSize + (g.opts.Generations-1)*g.opts.Offspring
}

func (g *Genetic) validate() error {
	o := g.opts
	if o.PopSize < 2 {
		return fmt.Errorf("population size must be at least 2, got %d", o.PopSize)
	}
	if o.Offspring < 1 {
		return fmt.Errorf("offspring count must be positive, got %d", o.Offspring)
	}
	if o.Generations < 1 {
		return fmt.Errorf("generation count must be positive, got %d", o.Generations)
	}
	if o.CrossoverEta <= 0 || o.MutationEta <= 0 {
		return fmt.Errorf("distribution indices must be positive")
	}
	return nil
}

// Run evolves the population on route and returns every evaluation
// together with the final non-dominated front.
func (g *Genetic) Run(ctx context.Context, src FitnessSource, route scenario.RouteConfig) (*Result, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	o := g.opts
	rng := rand.New(rand.NewSource(o.Seed))
	observer := observerOrNop(o.Observer)
	ev := newEvaluator(src, route, observer)
	tracker := NewProgressTracker(0)

	slog.Info("Genetic search started",
		"route", route.Name,
		"pop_size", o.PopSize,
		"offspring", o.Offspring,
		"generations", o.Generations,
		"seed", o.Seed,
	)

	seen := make(map[string]bool)
	pop := make([]*individual, 0, o.PopSize)
	for len(pop) < o.PopSize {
		x := uniformVector(rng)
		key := x.CSV()
		if seen[key] {
			continue
		}
		seen[key] = true
		ind, err := g.evaluate(ctx, ev, x, 1)
		if err != nil {
			return nil, err
		}
		pop = append(pop, ind)
	}
	g.report(observer, tracker, pop, 1, len(ev.evals))

	for gen := 2; gen <= o.Generations; gen++ {
		rankAndCrowd(pop)

		offspring := g.breed(rng, pop, seen)
		for _, x := range offspring {
			ind, err := g.evaluate(ctx, ev, x, gen)
			if err != nil {
				return nil, err
			}
			pop = append(pop, ind)
		}
		pop = survive(pop, o.PopSize)
		g.report(observer, tracker, pop, gen, len(ev.evals))
	}

	result := &Result{
		Strategy:    g.Name(),
		Evaluations: ev.evals,
		Front:       firstFront(pop),
		Generations: o.Generations,
	}
	slog.Info("Genetic search completed",
		"evaluations", len(result.Evaluations),
		"failures", result.Failures(),
		"front_size", result.Front.Len(),
	)
	return result, nil
}

func (g *Genetic) evaluate(ctx context.Context, ev *evaluator, x scenario.Vector, gen int) (*individual, error) {
	eval, err := ev.evaluate(ctx, x, gen)
	if err != nil {
		return nil, fmt.Errorf("genetic search stopped in generation %d: %w", gen, err)
	}
	if eval.Failed() {
		slog.Warn("Scenario evaluation failed", "generation", gen, "status", eval.Status, "message", eval.Message)
	}
	return &individual{x: x, f: eval.Objectives}, nil
}

// breed produces Offspring vectors that duplicate neither each other nor
// any vector in taken. Accepted vectors are added to taken.
func (g *Genetic) breed(rng *rand.Rand, pop []*individual, taken map[string]bool) []scenario.Vector {
	o := g.opts
	var pending []scenario.Vector
	out := make([]scenario.Vector, 0, o.Offspring)
	attempts := 0
	for len(out) < o.Offspring {
		if len(pending) == 0 {
			pending = g.mate(rng, pop)
		}
		child := pending[0]
		pending = pending[1:]

		key := child.CSV()
		if taken[key] {
			attempts++
			if attempts < maxDuplicateAttempts {
				continue
			}
			child = uniformVector(rng)
			key = child.CSV()
			if taken[key] {
				continue
			}
		}
		attempts = 0
		taken[key] = true
		out = append(out, child)
	}
	return out
}

// mate selects two parents by tournament and returns two mutated children.
func (g *Genetic) mate(rng *rand.Rand, pop []*individual) []scenario.Vector {
	o := g.opts
	p1 := tournament(rng, pop)
	p2 := tournament(rng, pop)

	c1, c2 := p1.x.Clone(), p2.x.Clone()
	if rng.Float64() < o.CrossoverProb {
		c1, c2 = sbx(rng, p1.x, p2.x, o.CrossoverEta)
	}
	polynomialMutation(rng, c1, o.MutationEta, o.MutationProb)
	polynomialMutation(rng, c2, o.MutationEta, o.MutationProb)
	return []scenario.Vector{c1, c2}
}

func (g *Genetic) report(observer Observer, tracker *ProgressTracker, pop []*individual, gen, evaluations int) {
	front := firstFront(pop)
	stats := tracker.Update(gen, front.F)
	observer.OnGeneration(GenerationEvent{
		Generation:  gen,
		Evaluations: evaluations,
		Progress:    stats,
	})
	slog.Info("Generation completed",
		"generation", gen,
		"evaluations", evaluations,
		"front_size", stats.FrontSize,
		"best", stats.Best.Slice(),
	)
}
