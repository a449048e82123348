package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/cwbudde/scenariosearch/internal/campaign"
	"github.com/cwbudde/scenariosearch/internal/config"
	"github.com/cwbudde/scenariosearch/internal/evaluator"
	"github.com/cwbudde/scenariosearch/internal/metrics"
	"github.com/cwbudde/scenariosearch/internal/search"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// progressInterval throttles evaluation events to 2 per second per job.
// Generation and final events are always sent.
const progressInterval = 500 * time.Millisecond

// runEnv is what a worker needs besides the job manager.
type runEnv struct {
	store     *store.FSStore
	config    *config.Config
	metrics   *metrics.Metrics
	simulator evaluator.Simulator

	// slots bounds the number of concurrently executing runs. The
	// simulator serves one scenario at a time.
	slots *semaphore.Weighted

	// isolateLogs gives each run its own subdirectory of the configured
	// fitness path. Set when runs may execute concurrently.
	isolateLogs bool
}

// runConfig resolves the configuration of one run. Concurrent runs must
// not share log files: the adapter reads back the last appended line.
func runConfig(env runEnv, job Job) *config.Config {
	cfg := job.Request.Apply(env.config)
	if env.isolateLogs && cfg.FitnessPath != "" {
		cfg.FitnessPath = filepath.Join(cfg.FitnessPath, job.ID)
	}
	return cfg
}

// runJob executes a run in the background and reports progress through the
// job manager's broadcaster.
func runJob(ctx context.Context, jm *JobManager, env runEnv, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if env.slots != nil {
		if err := env.slots.Acquire(ctx, 1); err != nil {
			markJobCancelled(jm, jobID)
			return err
		}
		defer env.slots.Release(1)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.StartTime = time.Now()
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "mode", job.Request.Mode, "resume", job.Request.Resume)

	cfg := runConfig(env, job)
	runner, err := campaign.New(cfg, env.store, campaign.Options{
		RunID:     jobID,
		Resume:    job.Request.Resume,
		Simulator: env.simulator,
		Observer:  newJobObserver(jm, jobID),
		Metrics:   env.metrics,
	})
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var summary *campaign.Summary
	switch job.Request.Mode {
	case config.ModeSweep:
		summary, err = runner.Sweep(ctx)
	default:
		summary, err = runner.Search(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			markJobCancelled(jm, jobID)
		} else {
			markJobFailed(jm, jobID, err)
		}
		return err
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Routes = len(summary.Routes)
		if summary.Result != nil {
			j.Evaluations = len(summary.Result.Evaluations)
			j.Failures = summary.Result.Failures()
			j.Generation = summary.Result.Generations
			j.FrontSize = summary.Result.Front.Len()
		}
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	final, _ := jm.GetJob(jobID)
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", endTime.Sub(final.StartTime),
		"evaluations", final.Evaluations,
		"routes", final.Routes,
	)
	jm.broadcaster.Broadcast(progressEvent(final))
	return nil
}

// jobObserver mirrors search progress into the job and its SSE stream.
type jobObserver struct {
	jm      *JobManager
	jobID   string
	limiter *rate.Limiter
}

func newJobObserver(jm *JobManager, jobID string) *jobObserver {
	return &jobObserver{
		jm:      jm,
		jobID:   jobID,
		limiter: rate.NewLimiter(rate.Every(progressInterval), 1),
	}
}

func (o *jobObserver) OnEvaluation(e search.EvaluationEvent) {
	o.jm.UpdateJob(o.jobID, func(j *Job) {
		j.Evaluations++
		if e.Evaluation.Failed() {
			j.Failures++
		}
	})
	if o.limiter.Allow() {
		o.broadcast()
	}
}

func (o *jobObserver) OnGeneration(e search.GenerationEvent) {
	o.jm.UpdateJob(o.jobID, func(j *Job) {
		j.Generation = e.Generation
		j.FrontSize = e.Progress.FrontSize
		j.Best = e.Progress.Best.Slice()
	})
	o.broadcast()
}

func (o *jobObserver) broadcast() {
	if job, ok := o.jm.GetJob(o.jobID); ok {
		o.jm.broadcaster.Broadcast(progressEvent(job))
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressEvent(job))
	}
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressEvent(job))
	}
}
