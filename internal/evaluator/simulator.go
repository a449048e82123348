// Package evaluator runs a scenario vector through the driving simulator and
// records the outcome in the append-only criteria, fitness and scenario logs.
package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// Request is everything the simulator needs for one run.
type Request struct {
	Scenario   scenario.Scenario `json:"scenario"`
	Vector     scenario.Vector   `json:"vector"`
	Region     float64           `json:"region"`
	Repetition int               `json:"repetition"`
}

// Measurement is the raw outcome of a completed simulation.
type Measurement struct {
	Criteria fitness.CriteriaRow `json:"criteria"`
	Fitness  fitness.FitnessRow  `json:"fitness"`
}

// Simulator runs one scenario to completion, including world teardown,
// before returning. Implementations report per-scenario failures as
// *CrashError and setup failures as *ConfigurationError.
type Simulator interface {
	RunScenario(ctx context.Context, req Request) (Measurement, error)
}

var (
	// ErrSimulationCrashed matches every per-scenario crash.
	ErrSimulationCrashed = errors.New("simulation crashed")

	// ErrEvaluationTimeout is reported when a run exceeds its deadline.
	ErrEvaluationTimeout = errors.New("evaluation timed out")

	// ErrSimulatorUnavailable is returned once too many consecutive runs
	// crashed. It is fatal to the search.
	ErrSimulatorUnavailable = errors.New("simulator unavailable")
)

// CrashError is a recoverable per-scenario failure.
type CrashError struct {
	Reason string
}

func (e *CrashError) Error() string {
	return "simulation crashed: " + e.Reason
}

func (e *CrashError) Is(target error) bool {
	return target == ErrSimulationCrashed
}

// ConfigurationError means the agent or sensor setup is invalid. Every
// further scenario would fail the same way, so the search aborts.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole search rather than
// mark a single evaluation as failed.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr) ||
		errors.Is(err, ErrSimulatorUnavailable) ||
		errors.Is(err, context.Canceled)
}
