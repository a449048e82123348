package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/scenariosearch/internal/config"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// RunRequest is the body of POST /api/v1/runs. Unset fields keep the
// server's configuration.
type RunRequest struct {
	Mode       string `json:"mode"` // search, sweep
	RunID      string `json:"runId,omitempty"`
	Resume     bool   `json:"resume,omitempty"`
	Surrogate  *bool  `json:"surrogate,omitempty"`
	Seed       *int64 `json:"seed,omitempty"`
	CaseNumber int    `json:"caseNumber,omitempty"`
}

// Apply returns a copy of base with the request's overrides.
func (r RunRequest) Apply(base *config.Config) *config.Config {
	cfg := *base
	if r.Surrogate != nil {
		cfg.Surrogate = *r.Surrogate
	}
	if r.Seed != nil {
		cfg.Seed = *r.Seed
	}
	if r.CaseNumber > 0 {
		cfg.Random.CaseNumber = r.CaseNumber
	}
	return &cfg
}

// Job represents a search or sweep run owned by the server
type Job struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Request     RunRequest `json:"request"`
	Strategy    string     `json:"strategy"`
	Evaluations int        `json:"evaluations"`
	Failures    int        `json:"failures"`
	Generation  int        `json:"generation"`
	FrontSize   int        `json:"frontSize"`
	Best        []float64  `json:"best,omitempty"`
	Routes      int        `json:"routes"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]*cancelHandle
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]*cancelHandle),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job. The job ID is the run ID, so a resume
// request reuses the run it names. A run that is still active cannot be
// submitted twice.
func (jm *JobManager) CreateJob(req RunRequest, strategy string) (*Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	id := req.RunID
	if id == "" {
		id = uuid.New().String()
	}
	if prev, exists := jm.jobs[id]; exists && !prev.State.Terminal() {
		return nil, fmt.Errorf("run %s is already %s", id, prev.State)
	}

	job := &Job{
		ID:        id,
		State:     StatePending,
		Request:   req,
		Strategy:  strategy,
		StartTime: time.Now(),
	}
	jm.jobs[job.ID] = job
	return job, nil
}

// GetJob returns a copy of the job with the given ID
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return job.snapshot(), true
}

// ListJobs returns copies of all jobs
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}

// cancelHandle wraps one worker's cancel func. clearCancel removes only
// the handle it was given.
type cancelHandle struct {
	cancel context.CancelFunc
}

// setCancel stores the function that stops the job's worker.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) *cancelHandle {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	h := &cancelHandle{cancel: cancel}
	jm.cancels[id] = h
	return h
}

func (jm *JobManager) clearCancel(id string, h *cancelHandle) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if jm.cancels[id] == h {
		delete(jm.cancels, id)
	}
}

// CancelJob stops a pending or running job.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s already %s", id, job.State)
	}
	if h, ok := jm.cancels[id]; ok {
		h.cancel()
	}
	return nil
}

// CancelAll stops every active job.
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	for _, h := range jm.cancels {
		h.cancel()
	}
}

func (j *Job) snapshot() Job {
	c := *j
	c.Best = append([]float64(nil), j.Best...)
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return c
}
