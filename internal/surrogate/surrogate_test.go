package surrogate

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/store"
)

func unitScaler() Scaler {
	s := Scaler{Mean: make([]float64, scenario.VectorLen), Scale: make([]float64, scenario.VectorLen)}
	for i := range s.Scale {
		s.Scale[i] = 1
	}
	return s
}

// linearModel predicts intercept + slope*x[0].
func linearModel(intercept, slope float64) *PolynomialModel {
	constant := make([]int, scenario.VectorLen)
	first := make([]int, scenario.VectorLen)
	first[0] = 1
	return &PolynomialModel{Scaler: unitScaler(), Powers: [][]int{constant, first}, Coef: []float64{0, slope}, Intercept: intercept}
}

// countingRegressor wraps a regressor and counts predictions.
type countingRegressor struct {
	Regressor
	calls int
}

func (c *countingRegressor) Predict(x []float64) (float64, error) {
	c.calls++
	return c.Regressor.Predict(x)
}

func writeModel(t *testing.T, dir, kind, criterion string, body any) {
	t.Helper()
	f := map[string]any{"kind": kind, "criterion": criterion}
	switch kind {
	case KindKriging:
		f["kriging"] = body
	case KindPolynomial:
		f["polynomial"] = body
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ModelPath(dir, kind, criterion), data, 0644))
}

func vec(fill float64) scenario.Vector {
	v := make(scenario.Vector, scenario.VectorLen)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestKrigingPredict(t *testing.T) {
	origin := make([]float64, scenario.VectorLen)
	far := make([]float64, scenario.VectorLen)
	far[0] = 100

	m := &KrigingModel{
		Scaler:      unitScaler(),
		XTrain:      [][]float64{origin, far},
		Alpha:       []float64{0.5, 3},
		LengthScale: 1,
	}
	require.NoError(t, m.validate())

	y, err := m.Predict(origin)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, y, 1e-9, "far training point contributes nothing")

	x := make([]float64, scenario.VectorLen)
	x[1] = 1
	y, err = m.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*math.Exp(-0.5), y, 1e-9)

	_, err = m.Predict([]float64{1, 2})
	assert.Error(t, err)
}

func TestPolynomialPredict(t *testing.T) {
	m := linearModel(0.1, 0.5)
	m.Scaler.Mean[0] = 0.2
	m.Scaler.Scale[0] = 0.5
	require.NoError(t, m.validate())

	x := make([]float64, scenario.VectorLen)
	x[0] = 0.7 // scaled: 1.0
	y, err := m.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, y, 1e-12)

	quad := linearModel(0, 1)
	quad.Powers[1][0] = 2
	x[0] = 3
	y, err = quad.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 9, y, 1e-12)
}

func TestLoadModelSet(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, KindPolynomial, fitness.RouteCompletionTest, linearModel(0.2, 0))
	writeModel(t, dir, KindPolynomial, fitness.OutsideRouteLanesTest, linearModel(0.4, 0))
	writeModel(t, dir, KindPolynomial, fitness.CollisionTest, linearModel(0.6, 0))

	set, err := LoadModelSet(dir, KindPolynomial)
	require.NoError(t, err)

	o, err := set.Predict(vec(0.5))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, o[fitness.ObjRouteCompletion], 1e-12)
	assert.InDelta(t, 0.4, o[fitness.ObjLaneKeeping], 1e-12)
	assert.InDelta(t, 0.6, o[fitness.ObjCollision], 1e-12)

	_, err = LoadModelSet(dir, KindKriging)
	assert.Error(t, err, "missing kriging files")
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()

	writeModel(t, dir, "Forest", "X", nil)
	_, err := LoadModel(ModelPath(dir, "Forest", "X"))
	assert.ErrorContains(t, err, "unknown kind")

	writeModel(t, dir, KindKriging, "Y", &KrigingModel{Scaler: unitScaler(), LengthScale: 1})
	_, err = LoadModel(ModelPath(dir, KindKriging, "Y"))
	assert.ErrorContains(t, err, "alpha")

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0644)
	_, err = LoadModel(bad)
	assert.Error(t, err)
}

func TestModelSetClampsPredictions(t *testing.T) {
	set := &ModelSet{Models: [fitness.NumObjectives]Regressor{
		linearModel(-0.3, 0),
		linearModel(1.7, 0),
		linearModel(0.5, 0),
	}}
	o, err := set.Predict(vec(0.1))
	require.NoError(t, err)
	assert.Equal(t, fitness.Objectives{0, 1, 0.5}, o)

	_, err = (&ModelSet{}).Predict(vec(0.1))
	assert.Error(t, err)
}

func newTestSource(t *testing.T, cacheSize int) (*Source, *store.LogSet, *countingRegressor) {
	t.Helper()
	logs, err := store.OpenLogSet(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { logs.Close() })

	counter := &countingRegressor{Regressor: linearModel(0, 1)}
	set := &ModelSet{Models: [fitness.NumObjectives]Regressor{counter, linearModel(0.25, 0), linearModel(0, 0)}}
	src, err := NewSource(set, logs, cacheSize)
	require.NoError(t, err)
	return src, logs, counter
}

func TestSourceLogsEveryQuery(t *testing.T) {
	src, logs, counter := newTestSource(t, 16)
	ctx := context.Background()

	queries := []scenario.Vector{vec(0.3), vec(0.6), vec(0.3)}
	for _, v := range queries {
		eval, err := src.Evaluate(ctx, v, scenario.RouteConfig{})
		require.NoError(t, err)
		assert.Equal(t, fitness.StatusOK, eval.Status)
		assert.InDelta(t, v[0], eval.Objectives[fitness.ObjRouteCompletion], 1e-12)
		assert.InDelta(t, 0.25, eval.Objectives[fitness.ObjLaneKeeping], 1e-12)
	}

	assert.Equal(t, 2, counter.calls, "repeated vector is served from cache")

	scenarios, err := logs.Scenario.Lines()
	require.NoError(t, err)
	predictions, err := logs.Prediction.Lines()
	require.NoError(t, err)
	require.Len(t, scenarios, 3)
	require.Len(t, predictions, 3)
	for i, v := range queries {
		assert.Equal(t, v.CSV(), scenarios[i])
	}
	assert.Equal(t, "0.3,0.25,0", predictions[0])
	assert.Equal(t, predictions[0], predictions[2])

	// The surrogate never touches the simulator logs
	criteria, _ := logs.Criteria.Lines()
	assert.Empty(t, criteria)
}

func TestSourceWithoutCache(t *testing.T) {
	src, _, counter := newTestSource(t, 0)
	for i := 0; i < 3; i++ {
		_, err := src.Evaluate(context.Background(), vec(0.3), scenario.RouteConfig{})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, counter.calls)
}

func TestSourceRejectsBadInput(t *testing.T) {
	src, logs, _ := newTestSource(t, 4)

	_, err := src.Evaluate(context.Background(), make(scenario.Vector, 5), scenario.RouteConfig{})
	assert.ErrorIs(t, err, scenario.ErrInvalidVectorLength)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Evaluate(ctx, vec(0.1), scenario.RouteConfig{})
	assert.ErrorIs(t, err, context.Canceled)

	lines, _ := logs.Scenario.Lines()
	assert.Empty(t, lines)
}
