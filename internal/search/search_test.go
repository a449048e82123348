package search

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// fakeSource scores vectors with a cheap deterministic function and records
// every call in order.
type fakeSource struct {
	calls   []scenario.Vector
	failAt  map[int]bool
	fatalAt int // -1 disables
	logs    *store.LogSet
}

func newFakeSource() *fakeSource {
	return &fakeSource{failAt: map[int]bool{}, fatalAt: -1}
}

var errFatal = errors.New("simulator unavailable")

func (f *fakeSource) Evaluate(ctx context.Context, v scenario.Vector, _ scenario.RouteConfig) (fitness.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return fitness.Evaluation{}, err
	}
	n := len(f.calls)
	if n == f.fatalAt {
		return fitness.Evaluation{}, errFatal
	}
	f.calls = append(f.calls, v.Clone())
	if f.logs != nil {
		if err := f.logs.Scenario.Append(v.CSV()); err != nil {
			return fitness.Evaluation{}, err
		}
	}
	if f.failAt[n] {
		return fitness.Evaluation{Vector: v.Clone(), Objectives: fitness.WorstObjectives, Status: fitness.StatusCrashed, Message: "boom"}, nil
	}
	return fitness.Evaluation{Vector: v.Clone(), Objectives: zdtLike(v), Status: fitness.StatusOK}, nil
}

// zdtLike has a conflicting pair of objectives over the first two variables.
func zdtLike(v scenario.Vector) fitness.Objectives {
	g := 0.0
	for _, c := range v[2:] {
		g += c
	}
	g = g / float64(len(v)-2)
	return fitness.Objectives{v[0], 1 - math.Sqrt(v[0]) + g/2, math.Abs(v[1]-0.5) * g}
}

type recordingObserver struct {
	evaluations []EvaluationEvent
	generations []GenerationEvent
}

func (r *recordingObserver) OnEvaluation(e EvaluationEvent) { r.evaluations = append(r.evaluations, e) }
func (r *recordingObserver) OnGeneration(e GenerationEvent) { r.generations = append(r.generations, e) }

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(3))
}

func literalVectors(n int) []scenario.Vector {
	out := make([]scenario.Vector, n)
	for i := range out {
		v := make(scenario.Vector, scenario.VectorLen)
		for j := range v {
			v[j] = float64((i+1)*(j+1)%10) / 10
		}
		out[i] = v
	}
	return out
}

func TestRandomLiteralBatchInOrder(t *testing.T) {
	logs, err := store.OpenLogSet(t.TempDir())
	require.NoError(t, err)
	defer logs.Close()

	src := newFakeSource()
	src.logs = logs
	vectors := literalVectors(3)
	obs := &recordingObserver{}

	r := NewRandom(RandomOptions{CaseNumber: 3, Vectors: vectors, Observer: obs})
	assert.Equal(t, StateInit, r.State())

	result, err := r.Run(context.Background(), src, scenario.RouteConfig{Name: "route_00"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, r.State())

	require.Len(t, src.calls, 3)
	for i := range vectors {
		assert.True(t, vectors[i].Equal(src.calls[i]), "call %d out of order", i)
	}
	lines, err := logs.Scenario.Lines()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for i, v := range vectors {
		assert.Equal(t, v.CSV(), lines[i])
	}

	assert.Len(t, result.Evaluations, 3)
	require.Len(t, obs.evaluations, 3)
	assert.Equal(t, "route_00", obs.evaluations[2].Route)
	assert.Equal(t, 2, obs.evaluations[2].Index)
	assert.Positive(t, result.Front.Len())
}

func TestRandomSampledBatchIsSeeded(t *testing.T) {
	a, b := newFakeSource(), newFakeSource()
	_, err := NewRandom(RandomOptions{CaseNumber: 5, Seed: 7}).Run(context.Background(), a, scenario.RouteConfig{})
	require.NoError(t, err)
	_, err = NewRandom(RandomOptions{CaseNumber: 5, Seed: 7}).Run(context.Background(), b, scenario.RouteConfig{})
	require.NoError(t, err)

	require.Len(t, a.calls, 5)
	for i := range a.calls {
		assert.True(t, a.calls[i].Equal(b.calls[i]))
		assert.True(t, a.calls[i].InBounds())
		assert.Len(t, a.calls[i], scenario.VectorLen)
	}
}

func TestRandomRecordsFailuresAndContinues(t *testing.T) {
	src := newFakeSource()
	src.failAt[1] = true

	result, err := NewRandom(RandomOptions{Vectors: literalVectors(3)}).Run(context.Background(), src, scenario.RouteConfig{})
	require.NoError(t, err)
	assert.Len(t, src.calls, 3)
	assert.Equal(t, 1, result.Failures())
	assert.Equal(t, fitness.WorstObjectives, result.Evaluations[1].Objectives)
}

func TestRandomRejectsBadBatch(t *testing.T) {
	short := []scenario.Vector{make(scenario.Vector, 13)}
	_, err := NewRandom(RandomOptions{Vectors: short}).Run(context.Background(), newFakeSource(), scenario.RouteConfig{})
	assert.ErrorIs(t, err, scenario.ErrInvalidVectorLength)

	out := literalVectors(1)
	out[0][3] = 1.5
	_, err = NewRandom(RandomOptions{Vectors: out}).Run(context.Background(), newFakeSource(), scenario.RouteConfig{})
	var decodeErr *scenario.DecodeError
	assert.ErrorAs(t, err, &decodeErr)

	_, err = NewRandom(RandomOptions{}).Run(context.Background(), newFakeSource(), scenario.RouteConfig{})
	assert.Error(t, err)
}

func TestRandomStopsOnFatalError(t *testing.T) {
	src := newFakeSource()
	src.fatalAt = 1
	r := NewRandom(RandomOptions{Vectors: literalVectors(3)})

	_, err := r.Run(context.Background(), src, scenario.RouteConfig{})
	assert.ErrorIs(t, err, errFatal)
	assert.Len(t, src.calls, 1)
	assert.Equal(t, StateSampling, r.State())
}

func TestGeneticReferenceRun(t *testing.T) {
	src := newFakeSource()
	obs := &recordingObserver{}
	opts := DefaultGeneticOptions()
	opts.Observer = obs
	g := NewGenetic(opts)

	result, err := g.Run(context.Background(), src, scenario.RouteConfig{})
	require.NoError(t, err)

	assert.Equal(t, 800, g.Evaluations())
	assert.Len(t, src.calls, 800)
	assert.Len(t, result.Evaluations, 800)
	assert.Equal(t, 76, result.Generations)
	require.Len(t, obs.generations, 76)
	assert.Equal(t, 50, obs.generations[0].Evaluations)
	assert.Equal(t, 60, obs.generations[1].Evaluations)

	// No vector is ever evaluated twice
	seen := map[string]bool{}
	for _, v := range src.calls {
		key := v.CSV()
		assert.False(t, seen[key], "duplicate evaluation of %s", key)
		seen[key] = true
	}

	x, f := result.Front.Matrix()
	require.NotEmpty(t, x)
	rows := map[string]bool{}
	for i, row := range x {
		assert.Len(t, row, scenario.VectorLen)
		assert.True(t, scenario.Vector(row).InBounds())
		key := scenario.Vector(row).CSV()
		assert.False(t, rows[key], "duplicate front row")
		rows[key] = true
		assert.Len(t, f[i], fitness.NumObjectives)
	}

	// Front members are mutually non-dominated
	for i := range result.Front.F {
		for j := range result.Front.F {
			assert.False(t, result.Front.F[i].Dominates(result.Front.F[j]))
		}
	}
}

func TestGeneticDeterministic(t *testing.T) {
	opts := DefaultGeneticOptions()
	opts.Generations = 5
	a, b := newFakeSource(), newFakeSource()

	_, err := NewGenetic(opts).Run(context.Background(), a, scenario.RouteConfig{})
	require.NoError(t, err)
	_, err = NewGenetic(opts).Run(context.Background(), b, scenario.RouteConfig{})
	require.NoError(t, err)

	require.Equal(t, len(a.calls), len(b.calls))
	for i := range a.calls {
		assert.True(t, a.calls[i].Equal(b.calls[i]), "call %d differs", i)
	}
}

func TestGeneticStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := newFakeSource()
	obs := &cancelAfter{n: 5, cancel: cancel}
	opts := DefaultGeneticOptions()
	opts.Observer = obs

	_, err := NewGenetic(opts).Run(ctx, src, scenario.RouteConfig{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.calls, 5)
}

type cancelAfter struct {
	n      int
	seen   int
	cancel context.CancelFunc
}

func (c *cancelAfter) OnEvaluation(EvaluationEvent) {
	c.seen++
	if c.seen == c.n {
		c.cancel()
	}
}
func (c *cancelAfter) OnGeneration(GenerationEvent) {}

func TestGeneticValidatesOptions(t *testing.T) {
	opts := DefaultGeneticOptions()
	opts.PopSize = 1
	_, err := NewGenetic(opts).Run(context.Background(), newFakeSource(), scenario.RouteConfig{})
	assert.ErrorContains(t, err, "population")
}

func TestFastNonDominatedSortAndCrowding(t *testing.T) {
	pop := []*individual{
		{f: fitness.Objectives{0, 1, 0}},
		{f: fitness.Objectives{1, 0, 0}},
		{f: fitness.Objectives{0.5, 0.5, 0}},
		{f: fitness.Objectives{1, 1, 1}},
		{f: fitness.Objectives{0.6, 0.6, 0.1}},
	}
	fronts := rankAndCrowd(pop)
	require.Len(t, fronts, 3)
	assert.ElementsMatch(t, []int{0, 1, 2}, fronts[0])
	assert.Equal(t, []int{4}, fronts[1])
	assert.Equal(t, []int{3}, fronts[2])
	assert.Equal(t, 1, pop[4].rank)

	assert.True(t, math.IsInf(pop[0].crowding, 1))
	assert.True(t, math.IsInf(pop[1].crowding, 1))
	assert.InDelta(t, 2.0, pop[2].crowding, 1e-12)

	next := survive(pop, 4)
	require.Len(t, next, 4)
	for _, ind := range next {
		assert.NotEqual(t, fitness.Objectives{1, 1, 1}, ind.f)
	}
}

func TestOperatorsStayInBounds(t *testing.T) {
	opts := DefaultGeneticOptions()
	rng := newTestRand()
	for i := 0; i < 200; i++ {
		p1, p2 := uniformVector(rng), uniformVector(rng)
		p1[0], p2[0] = 0, 1
		c1, c2 := sbx(rng, p1, p2, opts.CrossoverEta)
		polynomialMutation(rng, c1, opts.MutationEta, 1)
		polynomialMutation(rng, c2, opts.MutationEta, 1)
		assert.True(t, c1.InBounds())
		assert.True(t, c2.InBounds())
	}
}

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker(0.01)
	s := p.Update(1, []fitness.Objectives{{0.5, 0.5, 0.5}})
	assert.True(t, s.Improved)
	assert.Equal(t, 0, s.Stale)

	s = p.Update(2, []fitness.Objectives{{0.499, 0.5, 0.5}})
	assert.False(t, s.Improved)
	assert.Equal(t, 1, s.Stale)
	assert.InDelta(t, 0.499, s.Best[0], 1e-12)

	s = p.Update(3, []fitness.Objectives{{0.5, 0.2, 0.5}, {0.9, 0.9, 0.9}})
	assert.True(t, s.Improved)
	assert.Equal(t, 2, s.FrontSize)
	assert.Len(t, p.History(), 3)

	p.Reset()
	assert.Empty(t, p.History())
	assert.True(t, math.IsInf(p.Best()[0], 1))
}

// stubOptimizer probes the objective at fixed points.
type stubOptimizer struct {
	points [][]float64
}

func (s *stubOptimizer) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	best, bestCost := s.points[0], math.Inf(1)
	for _, p := range s.points {
		if c := eval(p); c < bestCost {
			best, bestCost = p, c
		}
	}
	return best, bestCost, nil
}

func TestScalarizedMemoisesRepeats(t *testing.T) {
	v := literalVectors(2)
	stub := &stubOptimizer{points: [][]float64{v[0], v[1], v[0], v[1], v[0]}}
	src := newFakeSource()

	s := NewScalarizedWith(ScalarizedOptions{Iterations: 1, Weights: fitness.Objectives{1, 1, 1}}, stub)
	result, err := s.Run(context.Background(), src, scenario.RouteConfig{})
	require.NoError(t, err)
	assert.Len(t, src.calls, 2)
	assert.Len(t, result.Evaluations, 2)
	assert.Equal(t, "scalarized", result.Strategy)
}

func TestScalarizedSurfacesFatalError(t *testing.T) {
	v := literalVectors(3)
	stub := &stubOptimizer{points: [][]float64{v[0], v[1], v[2]}}
	src := newFakeSource()
	src.fatalAt = 1

	_, err := NewScalarizedWith(ScalarizedOptions{Weights: fitness.Objectives{1, 0, 0}}, stub).
		Run(context.Background(), src, scenario.RouteConfig{})
	assert.ErrorIs(t, err, errFatal)
	assert.Len(t, src.calls, 1, "no evaluation after the fatal error")
}

func TestScalarizedWithMayfly(t *testing.T) {
	src := newFakeSource()
	s := NewScalarized(ScalarizedOptions{Iterations: 2, PopSize: 20, Weights: fitness.Objectives{1, 1, 1}, Seed: 1})
	result, err := s.Run(context.Background(), src, scenario.RouteConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Evaluations)

	seen := map[string]bool{}
	for _, c := range src.calls {
		assert.False(t, seen[c.CSV()])
		seen[c.CSV()] = true
		assert.True(t, c.InBounds())
	}
}
