package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// Options tune the adapter.
type Options struct {
	OffsetRange float64
	Region      float64

	// Timeout bounds a single simulation; 0 disables the deadline.
	Timeout time.Duration

	// MaxConsecutiveCrashes opens the breaker; 0 means 5.
	MaxConsecutiveCrashes int

	// OnBreakerChange, if set, is called with the new breaker state.
	OnBreakerChange func(state string)
}

// Outcome summarises one RunOneCase call.
type Outcome struct {
	Status   fitness.Status
	Message  string
	Duration time.Duration
}

// Adapter serialises evaluations against a Simulator. Every attempt that is
// not fatal appends exactly one line to each of the criteria, fitness and
// scenario logs, so the last line of each always describes the latest run.
type Adapter struct {
	sim     Simulator
	logs    *store.LogSet
	opts    Options
	breaker *gobreaker.CircuitBreaker
}

// NewAdapter wires a simulator to its log set.
func NewAdapter(sim Simulator, logs *store.LogSet, opts Options) *Adapter {
	if opts.MaxConsecutiveCrashes <= 0 {
		opts.MaxConsecutiveCrashes = 5
	}
	if opts.OffsetRange == 0 {
		opts.OffsetRange = scenario.DefaultOffsetRange
	}

	maxCrashes := uint32(opts.MaxConsecutiveCrashes)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "simulator",
		// Counts are never cleared while the breaker is closed.
		Interval: 0,
		Timeout:  time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxCrashes
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !(errors.Is(err, ErrSimulationCrashed) || errors.Is(err, ErrEvaluationTimeout))
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Simulator breaker changed state", "from", from.String(), "to", to.String())
			if opts.OnBreakerChange != nil {
				opts.OnBreakerChange(to.String())
			}
		},
	})

	return &Adapter{sim: sim, logs: logs, opts: opts, breaker: breaker}
}

// Logs returns the log set the adapter appends to.
func (a *Adapter) Logs() *store.LogSet {
	return a.logs
}

// RunOneCase simulates v on route and appends its logs. Crashes and
// timeouts are reported through Outcome.Status; the returned error is
// reserved for failures that must abort the search: invalid vectors,
// configuration errors, cancellation, an open breaker and log write errors.
func (a *Adapter) RunOneCase(ctx context.Context, v scenario.Vector, route scenario.RouteConfig) (Outcome, error) {
	sc, err := route.Derive(v, a.opts.OffsetRange)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to decode scenario vector: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	req := Request{
		Scenario:   sc,
		Vector:     v.Clone(),
		Region:     a.opts.Region,
		Repetition: route.RepetitionIndex,
	}

	start := time.Now()
	res, err := a.breaker.Execute(func() (interface{}, error) {
		return a.run(ctx, req)
	})
	duration := time.Since(start)

	switch {
	case err == nil:
		m := res.(Measurement)
		if err := a.append(m.Criteria, m.Fitness, v); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: fitness.StatusOK, Duration: duration}, nil

	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Outcome{}, fmt.Errorf("%w: %d consecutive crashes", ErrSimulatorUnavailable, a.opts.MaxConsecutiveCrashes)

	case ctx.Err() != nil:
		return Outcome{}, ctx.Err()

	case errors.Is(err, ErrSimulationCrashed), errors.Is(err, ErrEvaluationTimeout):
		status := fitness.StatusCrashed
		if errors.Is(err, ErrEvaluationTimeout) {
			status = fitness.StatusTimeout
		}
		slog.Warn("Scenario failed", "route", route.Name, "status", status, "error", err)
		if werr := a.append(fitness.FailureCriteria(), fitness.FailureFitness(), v); werr != nil {
			return Outcome{}, werr
		}
		return Outcome{Status: status, Message: err.Error(), Duration: duration}, nil

	default:
		return Outcome{}, err
	}
}

// run calls the simulator under the per-evaluation deadline and normalises
// its error into the adapter's taxonomy.
func (a *Adapter) run(ctx context.Context, req Request) (Measurement, error) {
	runCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	m, err := a.sim.RunScenario(runCtx, req)
	if err == nil {
		return m, nil
	}

	var cfgErr *ConfigurationError
	switch {
	case ctx.Err() != nil:
		return Measurement{}, ctx.Err()
	case errors.As(err, &cfgErr):
		return Measurement{}, err
	case errors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil:
		return Measurement{}, fmt.Errorf("%w after %s", ErrEvaluationTimeout, a.opts.Timeout)
	case errors.Is(err, ErrSimulationCrashed):
		return Measurement{}, err
	default:
		return Measurement{}, &CrashError{Reason: err.Error()}
	}
}

func (a *Adapter) append(c fitness.CriteriaRow, f fitness.FitnessRow, v scenario.Vector) error {
	if err := a.logs.Criteria.Append(c.CSV()); err != nil {
		return fmt.Errorf("criteria log: %w", err)
	}
	if err := a.logs.Fitness.Append(f.CSV()); err != nil {
		return fmt.Errorf("fitness log: %w", err)
	}
	if err := a.logs.Scenario.Append(v.CSV()); err != nil {
		return fmt.Errorf("scenario log: %w", err)
	}
	return nil
}
