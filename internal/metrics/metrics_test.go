package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/search"
	"github.com/cwbudde/scenariosearch/internal/store"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserverUpdatesMetrics(t *testing.T) {
	m := New("genetic")
	var obs search.Observer = m

	obs.OnEvaluation(search.EvaluationEvent{Evaluation: fitness.Evaluation{Status: fitness.StatusOK, Duration: time.Second}})
	obs.OnEvaluation(search.EvaluationEvent{Evaluation: fitness.Evaluation{Status: fitness.StatusCrashed}})
	obs.OnEvaluation(search.EvaluationEvent{Evaluation: fitness.Evaluation{Status: fitness.StatusOK}})
	obs.OnGeneration(search.GenerationEvent{
		Generation: 3,
		Progress:   search.ProgressStats{FrontSize: 7, Best: fitness.Objectives{0.1, 0.25, 0.5}},
	})

	text := scrape(t, m)
	assert.Contains(t, text, `scenariosearch_evaluations_total{status="ok",strategy="genetic"} 2`)
	assert.Contains(t, text, `scenariosearch_evaluations_total{status="crashed",strategy="genetic"} 1`)
	assert.Contains(t, text, `scenariosearch_evaluation_duration_seconds_count{strategy="genetic"} 3`)
	assert.Contains(t, text, "scenariosearch_generation 3")
	assert.Contains(t, text, "scenariosearch_front_size 7")
	assert.Contains(t, text, `scenariosearch_best_objective{objective="lane_keeping"} 0.25`)
}

func TestRouteAndBreakerCounters(t *testing.T) {
	m := New("random")
	m.RecordRoute(store.RouteCompleted)
	m.RecordRoute(store.RouteCompleted)
	m.RecordBreakerChange("open")

	text := scrape(t, m)
	assert.Contains(t, text, `scenariosearch_routes_total{status="Completed"} 2`)
	assert.Contains(t, text, `scenariosearch_breaker_transitions_total{to="open"} 1`)
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	a, b := New("random"), New("random")
	a.RecordRoute(store.RouteCrashed)
	assert.NotContains(t, scrape(t, b), "scenariosearch_routes_total{")
}
