package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It stands in for the simulator
// bridge when re-executed by helperSimulator.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, "bad request:", err)
		os.Exit(1)
	}

	switch os.Getenv("HELPER_MODE") {
	case "ok":
		criteria := make([]float64, 15)
		criteria[1] = 90
		criteria[3] = 5
		if req.Scenario.Overlay.Vehicles.InFront {
			criteria[4] = 1
		}
		out := map[string]any{"criteria": criteria, "fitness": []float64{0, 0.5, 3, 3, 0}}
		json.NewEncoder(os.Stdout).Encode(out)
	case "config":
		fmt.Fprintln(os.Stderr, "agent checkpoint missing")
		os.Exit(ExitConfigurationError)
	case "crash":
		fmt.Fprintln(os.Stderr, "server died")
		os.Exit(2)
	case "short":
		fmt.Fprintln(os.Stdout, `{"criteria": [1, 2], "fitness": [0, 0, 0, 0, 0]}`)
	case "garbage":
		fmt.Fprintln(os.Stdout, "not json")
	case "hang":
		time.Sleep(time.Minute)
	}
}

func helperSimulator(mode string) *CommandSimulator {
	return &CommandSimulator{
		Path: os.Args[0],
		Args: []string{"-test.run=TestHelperProcess", "--"},
		Env:  []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
	}
}

func testRequest(t *testing.T) Request {
	t.Helper()
	route := testRoute()
	sc, err := route.Derive(vec(0.9), 50)
	require.NoError(t, err)
	return Request{Scenario: sc, Vector: vec(0.9)}
}

func TestCommandSimulatorSuccess(t *testing.T) {
	m, err := helperSimulator("ok").RunScenario(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 90.0, m.Criteria.RouteCompletionPercent())
	assert.Equal(t, 1.0, m.Criteria.Collision(), "request must reach the bridge")
	assert.Equal(t, 0.5, m.Fitness[1])
}

func TestCommandSimulatorExitCodes(t *testing.T) {
	_, err := helperSimulator("config").RunScenario(context.Background(), testRequest(t))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "agent checkpoint missing")

	_, err = helperSimulator("crash").RunScenario(context.Background(), testRequest(t))
	require.ErrorIs(t, err, ErrSimulationCrashed)
	assert.Contains(t, err.Error(), "server died")
}

func TestCommandSimulatorMalformedOutput(t *testing.T) {
	for _, mode := range []string{"short", "garbage"} {
		_, err := helperSimulator(mode).RunScenario(context.Background(), testRequest(t))
		assert.ErrorIs(t, err, ErrSimulationCrashed, mode)
	}
}

func TestCommandSimulatorDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := helperSimulator("hang").RunScenario(ctx, testRequest(t))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommandSimulatorMissingBinary(t *testing.T) {
	sim, err := NewCommandSimulator([]string{"/nonexistent/bridge"})
	require.NoError(t, err)

	_, err = sim.RunScenario(context.Background(), testRequest(t))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewCommandSimulator(nil)
	require.Error(t, err)
}

func TestCommandSimulatorThroughAdapter(t *testing.T) {
	adapter, logs := newTestAdapter(t, helperSimulator("ok"), Options{})

	out, err := adapter.RunOneCase(context.Background(), vec(0.9), testRoute())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out.Status))

	line, err := logs.Fitness.LastLine()
	require.NoError(t, err)
	assert.Equal(t, "0,0.5,3,3,0", line)
}
