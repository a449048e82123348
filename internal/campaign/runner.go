// Package campaign wires configuration, routes, the fitness source and a
// search strategy into a checkpointed run.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/scenariosearch/internal/config"
	"github.com/cwbudde/scenariosearch/internal/evaluator"
	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/metrics"
	"github.com/cwbudde/scenariosearch/internal/route"
	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/search"
	"github.com/cwbudde/scenariosearch/internal/store"
	"github.com/cwbudde/scenariosearch/internal/surrogate"
)

// Options are the collaborators of a Runner. Zero values select the
// configured defaults.
type Options struct {
	// RunID names the run; empty generates a fresh UUID.
	RunID string

	// Resume continues the run's checkpoint instead of starting over.
	Resume bool

	// Simulator overrides the configured simulator command.
	Simulator evaluator.Simulator

	// Vectors overrides the random search batch and the sweep baseline.
	Vectors []scenario.Vector

	Observer search.Observer
	Metrics  *metrics.Metrics
}

// Summary is what a finished run reports.
type Summary struct {
	RunID  string
	Mode   string
	Routes []store.RouteRecord
	Result *search.Result
}

// Runner executes one run against a checkpoint store.
type Runner struct {
	cfg   *config.Config
	store *store.FSStore
	opts  Options
	runID string
}

// New validates cfg and prepares a runner.
func New(cfg *config.Config, st *store.FSStore, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	runID := opts.RunID
	if runID == "" {
		if opts.Resume {
			return nil, fmt.Errorf("resume requires a run ID")
		}
		runID = uuid.New().String()
	}
	return &Runner{cfg: cfg, store: st, opts: opts, runID: runID}, nil
}

// RunID returns the run's identifier.
func (r *Runner) RunID() string {
	return r.runID
}

// Search runs the configured strategy against the terminal route of the
// route set. Earlier routes are iterated past but not searched.
func (r *Runner) Search(ctx context.Context) (*Summary, error) {
	ix, err := r.indexer(config.ModeSearch)
	if err != nil {
		return nil, err
	}
	summary := &Summary{RunID: r.runID, Mode: config.ModeSearch}
	if ix.Checkpoint().Done() {
		slog.Info("Run already completed", "run_id", r.runID)
		summary.Routes = ix.Checkpoint().Routes
		return summary, nil
	}

	target, err := ix.Drain()
	if err != nil {
		return nil, err
	}

	// An interrupted search restarts its route at evaluation 0, so the
	// trace of the abandoned attempt is dropped.
	env, err := r.open(false)
	if err != nil {
		return nil, err
	}
	defer env.close()

	strategy, err := r.strategy(env.observer)
	if err != nil {
		return nil, err
	}

	slog.Info("Search started",
		"run_id", r.runID,
		"strategy", strategy.Name(),
		"route", target.Name,
		"surrogate", r.cfg.Surrogate,
	)
	start := time.Now()
	result, runErr := strategy.Run(ctx, env.src, target)
	if runErr == nil {
		runErr = env.recorder.err
	}
	if runErr != nil {
		if rec, ok := failureRecord(runErr); ok {
			rec.Duration = time.Since(start)
			if err := r.saveRoute(ix, rec); err != nil {
				slog.Error("Failed to record route failure", "run_id", r.runID, "error", err)
			}
		}
		return nil, fmt.Errorf("search on %s: %w", target.Name, runErr)
	}

	if err := r.saveResult(ctx, env, target, result); err != nil {
		return nil, err
	}
	rec := store.RouteRecord{
		Status:      store.RouteCompleted,
		Evaluations: len(result.Evaluations),
		Failures:    result.Failures(),
		Duration:    time.Since(start),
	}
	if err := r.saveRoute(ix, rec); err != nil {
		return nil, err
	}

	summary.Routes = ix.Checkpoint().Routes
	summary.Result = result
	slog.Info("Search completed",
		"run_id", r.runID,
		"evaluations", len(result.Evaluations),
		"failures", result.Failures(),
		"front_size", result.Front.Len(),
		"elapsed", time.Since(start),
	)
	return summary, nil
}

// Sweep evaluates the baseline vector against every route in order and
// checkpoints after each one. A route rejected by the simulator is recorded
// and skipped; an unavailable simulator stops the sweep.
func (r *Runner) Sweep(ctx context.Context) (*Summary, error) {
	ix, err := r.indexer(config.ModeSweep)
	if err != nil {
		return nil, err
	}
	summary := &Summary{RunID: r.runID, Mode: config.ModeSweep}
	if !ix.Peek() {
		slog.Info("Run already completed", "run_id", r.runID)
		summary.Routes = ix.Checkpoint().Routes
		return summary, nil
	}

	env, err := r.open(r.opts.Resume)
	if err != nil {
		return nil, err
	}
	defer env.close()

	baseline := scenario.Baseline()
	vectors, err := r.vectors()
	if err != nil {
		return nil, err
	}
	if len(vectors) > 0 {
		baseline = vectors[0]
	}

	slog.Info("Sweep started", "run_id", r.runID, "cursor", ix.Cursor(), "total", ix.Total())
	for ix.Peek() {
		rc, err := ix.Next()
		if err != nil {
			return nil, err
		}

		start := time.Now()
		eval, evalErr := env.src.Evaluate(ctx, baseline, rc)
		if evalErr == nil {
			env.observer.OnEvaluation(search.EvaluationEvent{
				Index:      rc.Index,
				Route:      rc.Name,
				Evaluation: eval,
			})
			evalErr = env.recorder.err
		}
		if evalErr != nil {
			rec, ok := failureRecord(evalErr)
			if !ok {
				return nil, fmt.Errorf("sweep on %s: %w", rc.Name, evalErr)
			}
			rec.Duration = time.Since(start)
			if err := r.saveRoute(ix, rec); err != nil {
				return nil, err
			}
			if rec.Status == store.RouteRejected {
				slog.Warn("Route rejected", "route", rc.Name, "error", evalErr)
				continue
			}
			return nil, fmt.Errorf("sweep on %s: %w", rc.Name, evalErr)
		}

		rec := store.RouteRecord{
			Status:      store.RouteCompleted,
			Evaluations: 1,
			Message:     eval.Message,
			Duration:    time.Since(start),
		}
		if eval.Failed() {
			rec.Status = store.RouteCrashed
			rec.Failures = 1
		}
		if err := r.saveRoute(ix, rec); err != nil {
			return nil, err
		}
		slog.Info("Route evaluated",
			"route", rc.Name,
			"index", rc.Index,
			"status", rec.Status,
			"objectives", eval.Objectives.Slice(),
		)
	}

	summary.Routes = ix.Checkpoint().Routes
	slog.Info("Sweep completed", "run_id", r.runID, "routes", len(summary.Routes))
	return summary, nil
}

func (r *Runner) indexer(mode string) (*route.Indexer, error) {
	routes, err := route.LoadFile(r.cfg.RoutesPath)
	if err != nil {
		return nil, err
	}
	ix, err := route.NewIndexer(routes, r.cfg.Repetitions)
	if err != nil {
		return nil, err
	}
	ix.Bind(r.store, r.runID, r.cfg.Snapshot(mode))
	if r.opts.Resume {
		err := ix.Resume()
		switch {
		case errors.Is(err, store.ErrNotFound):
			slog.Warn("No checkpoint to resume, starting from the first route", "run_id", r.runID)
		case err != nil:
			return nil, fmt.Errorf("failed to resume run %s: %w", r.runID, err)
		}
	}
	return ix, nil
}

func (r *Runner) saveRoute(ix *route.Indexer, rec store.RouteRecord) error {
	if err := ix.SaveState(rec); err != nil {
		return err
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordRoute(rec.Status)
	}
	return nil
}

// failureRecord maps a run-stopping error to the route status it leaves
// behind. Interrupts and I/O failures leave no record, so a resumed run
// retries the route.
func failureRecord(err error) (store.RouteRecord, bool) {
	var cfgErr *evaluator.ConfigurationError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return store.RouteRecord{}, false
	case errors.As(err, &cfgErr):
		return store.RouteRecord{Status: store.RouteRejected, Message: err.Error()}, true
	case errors.Is(err, evaluator.ErrSimulatorUnavailable):
		return store.RouteRecord{Status: store.RouteCrashed, Message: err.Error()}, true
	}
	return store.RouteRecord{}, false
}

// env holds the per-run resources that must be closed.
type env struct {
	logs     *store.LogSet
	src      search.FitnessSource
	trace    *store.TraceWriter
	archive  *store.SQLiteArchive
	recorder *recorder
	observer search.Observer
}

func (e *env) close() {
	if e.trace != nil {
		if err := e.trace.Close(); err != nil {
			slog.Error("Failed to close trace", "error", err)
		}
	}
	if e.archive != nil {
		e.archive.Close()
	}
	if e.logs != nil {
		if err := e.logs.Close(); err != nil {
			slog.Error("Failed to close logs", "error", err)
		}
	}
}

// open prepares the per-run resources. appendTrace keeps the entries of
// an earlier attempt in the trace.
func (r *Runner) open(appendTrace bool) (_ *env, err error) {
	e := &env{}
	defer func() {
		if err != nil {
			e.close()
		}
	}()

	logDir := r.cfg.LogDir(r.runID)
	e.logs, err = store.OpenLogSet(logDir)
	if err != nil {
		return nil, err
	}
	e.src, err = r.source(e.logs)
	if err != nil {
		return nil, err
	}

	e.trace, err = store.NewTraceWriter(r.store.BaseDir(), r.runID, appendTrace)
	if err != nil {
		return nil, err
	}
	if r.cfg.ArchivePath != "" {
		e.archive = store.NewSQLiteArchive(r.cfg.ArchivePath)
		if err := e.archive.Init(context.Background()); err != nil {
			return nil, err
		}
	}

	e.recorder = &recorder{runID: r.runID, trace: e.trace, archive: e.archive}
	e.src = &guardedSource{inner: e.src, recorder: e.recorder}

	observers := search.Observers{e.recorder}
	if r.cfg.Log {
		observers = append(observers, logObserver{})
	}
	if r.opts.Metrics != nil {
		observers = append(observers, r.opts.Metrics)
	}
	if r.opts.Observer != nil {
		observers = append(observers, r.opts.Observer)
	}
	e.observer = observers

	slog.Info("Run resources opened",
		"run_id", r.runID,
		"log_dir", logDir,
		"trace", e.trace.Path(),
		"archive", r.cfg.ArchivePath,
	)
	return e, nil
}

// source selects the live simulator or the surrogate. Strategies only see
// the FitnessSource.
func (r *Runner) source(logs *store.LogSet) (search.FitnessSource, error) {
	if r.cfg.Surrogate {
		kind := surrogate.KindKriging
		if r.cfg.Models.Kind == config.ModelPolynomial {
			kind = surrogate.KindPolynomial
		}
		models, err := surrogate.LoadModelSet(r.cfg.Models.Dir, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to load surrogate models: %w", err)
		}
		return surrogate.NewSource(models, logs, r.cfg.Models.CacheSize)
	}

	sim := r.opts.Simulator
	if sim == nil {
		cmd, err := evaluator.NewCommandSimulator(r.cfg.Simulator.Command)
		if err != nil {
			return nil, err
		}
		sim = cmd
	}
	opts := evaluator.Options{
		OffsetRange:           r.cfg.OffsetRange,
		Region:                r.cfg.Region,
		Timeout:               r.cfg.Simulator.Timeout,
		MaxConsecutiveCrashes: r.cfg.Simulator.MaxConsecutiveCrashes,
	}
	if r.opts.Metrics != nil {
		opts.OnBreakerChange = r.opts.Metrics.RecordBreakerChange
	}
	return evaluator.NewLiveSource(evaluator.NewAdapter(sim, logs, opts)), nil
}

func (r *Runner) strategy(observer search.Observer) (search.Strategy, error) {
	switch r.cfg.Strategy {
	case config.StrategyRandom:
		vectors, err := r.vectors()
		if err != nil {
			return nil, err
		}
		return search.NewRandom(search.RandomOptions{
			CaseNumber: r.cfg.Random.CaseNumber,
			Vectors:    vectors,
			Seed:       r.cfg.Seed,
			Observer:   observer,
		}), nil

	case config.StrategyGenetic:
		g := r.cfg.Genetic
		return search.NewGenetic(search.GeneticOptions{
			PopSize:       g.PopSize,
			Offspring:     g.Offspring,
			Generations:   g.Generations,
			CrossoverProb: g.CrossoverProb,
			CrossoverEta:  g.CrossoverEta,
			MutationEta:   g.MutationEta,
			MutationProb:  g.MutationProb,
			Seed:          r.cfg.Seed,
			Observer:      observer,
		}), nil

	case config.StrategyScalarized:
		s := r.cfg.Scalarized
		return search.NewScalarized(search.ScalarizedOptions{
			Iterations: s.Iterations,
			PopSize:    s.PopSize,
			Weights:    fitness.Objectives(s.Weights),
			Seed:       r.cfg.Seed,
			Observer:   observer,
		}), nil
	}
	return nil, fmt.Errorf("unknown strategy: %s", r.cfg.Strategy)
}

func (r *Runner) saveResult(ctx context.Context, e *env, target scenario.RouteConfig, result *search.Result) error {
	x, f := result.Front.Matrix()
	out := &store.Result{
		RunID:       r.runID,
		Strategy:    result.Strategy,
		Route:       target.Name,
		X:           x,
		F:           f,
		Evaluations: len(result.Evaluations),
		Failures:    result.Failures(),
		Generations: result.Generations,
		Created:     time.Now(),
	}
	if err := r.store.SaveResult(r.runID, out); err != nil {
		return err
	}
	if e.archive != nil {
		if err := e.archive.SaveResult(ctx, out); err != nil {
			return fmt.Errorf("failed to archive result: %w", err)
		}
	}
	slog.Info("Result saved", "run_id", r.runID, "rows", len(x))
	return nil
}

// vectors returns the literal batch: the Options override, else the
// configured vectors file, else nil.
func (r *Runner) vectors() ([]scenario.Vector, error) {
	if len(r.opts.Vectors) > 0 || r.cfg.Random.VectorsPath == "" {
		return r.opts.Vectors, nil
	}
	return loadVectors(r.cfg.Random.VectorsPath)
}

func loadVectors(path string) ([]scenario.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vectors: %w", err)
	}
	defer f.Close()
	vectors, err := scenario.ReadVectors(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%s: no vectors", path)
	}
	return vectors, nil
}

type logObserver struct{}

func (logObserver) OnEvaluation(e search.EvaluationEvent) {
	slog.Info("Evaluation",
		"index", e.Index,
		"generation", e.Generation,
		"route", e.Route,
		"status", e.Evaluation.Status,
		"objectives", e.Evaluation.Objectives.Slice(),
		"vector", e.Evaluation.Vector.CSV(),
	)
}

func (logObserver) OnGeneration(search.GenerationEvent) {}
