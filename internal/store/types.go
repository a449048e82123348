package store

import (
	"fmt"
	"time"
)

// RunConfig is the snapshot of the settings a run was started with.
// It lives here rather than in the config package to keep store free of
// upward imports.
type RunConfig struct {
	RoutesPath  string  `json:"routesPath"`
	Mode        string  `json:"mode"`     // search, sweep
	Strategy    string  `json:"strategy"` // random, genetic, scalarized
	Surrogate   bool    `json:"surrogate"`
	Region      float64 `json:"region,omitempty"`
	Repetitions int     `json:"repetitions"`
	CaseNumber  int     `json:"caseNumber,omitempty"`
	Seed        int64   `json:"seed"`

	// VectorsPath is the literal vector batch, if any.
	VectorsPath string `json:"vectorsPath,omitempty"`

	// Genetic population sizing. Checked only for genetic searches.
	PopSize     int `json:"popSize,omitempty"`
	Offspring   int `json:"offspring,omitempty"`
	Generations int `json:"generations,omitempty"`
}

// RouteStatus is the outcome recorded for a route.
type RouteStatus string

const (
	RouteCompleted RouteStatus = "Completed"
	RouteCrashed   RouteStatus = "Crashed"
	RouteRejected  RouteStatus = "Rejected"
)

// RouteRecord holds the per-route statistics of a run.
type RouteRecord struct {
	Index       int           `json:"index"`
	Name        string        `json:"name"`
	Repetition  int           `json:"repetition"`
	Status      RouteStatus   `json:"status"`
	Evaluations int           `json:"evaluations"`
	Failures    int           `json:"failures"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Checkpoint is the persisted progress of a run.
//
// Cursor counts routes fully processed. A resumed run starts at route
// Cursor, so the route recorded last is never re-evaluated. The search
// strategies themselves are not checkpointed: a search interrupted mid-run
// restarts its route from scratch.
type Checkpoint struct {
	RunID string `json:"runId"`

	// Cursor is the index of the next route to process.
	Cursor int `json:"cursor"`

	// Total is the number of routes including repetitions.
	Total int `json:"total"`

	Routes []RouteRecord `json:"routes"`

	Timestamp time.Time `json:"timestamp"`

	// Config is compared against the resuming run's settings.
	Config RunConfig `json:"config"`
}

// CheckpointInfo is the listing view of a checkpoint.
type CheckpointInfo struct {
	RunID     string    `json:"runId"`
	Cursor    int       `json:"cursor"`
	Total     int       `json:"total"`
	Failures  int       `json:"failures"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Strategy  string    `json:"strategy"`
	Routes    string    `json:"routesPath"`
}

// NewCheckpoint creates an empty checkpoint for a fresh run.
func NewCheckpoint(runID string, total int, config RunConfig) *Checkpoint {
	return &Checkpoint{
		RunID:     runID,
		Total:     total,
		Routes:    []RouteRecord{},
		Timestamp: time.Now(),
		Config:    config,
	}
}

// Record appends a route record and advances the cursor past it.
func (c *Checkpoint) Record(rec RouteRecord) {
	c.Routes = append(c.Routes, rec)
	c.Cursor = rec.Index + 1
	c.Timestamp = time.Now()
}

// Done reports whether every route was processed.
func (c *Checkpoint) Done() bool {
	return c.Cursor >= c.Total
}

// ToInfo converts a full Checkpoint to CheckpointInfo.
func (c *Checkpoint) ToInfo() CheckpointInfo {
	failures := 0
	for _, r := range c.Routes {
		if r.Status != RouteCompleted {
			failures++
		}
	}
	return CheckpointInfo{
		RunID:     c.RunID,
		Cursor:    c.Cursor,
		Total:     c.Total,
		Failures:  failures,
		Timestamp: c.Timestamp,
		Mode:      c.Config.Mode,
		Strategy:  c.Config.Strategy,
		Routes:    c.Config.RoutesPath,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if c.Total <= 0 {
		return &ValidationError{Field: "Total", Reason: "must be positive"}
	}
	if c.Cursor < 0 || c.Cursor > c.Total {
		return &ValidationError{Field: "Cursor", Reason: fmt.Sprintf("must be within [0, %d]", c.Total)}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.RoutesPath == "" {
		return &ValidationError{Field: "Config.RoutesPath", Reason: "cannot be empty"}
	}
	if c.Config.Mode == "" {
		return &ValidationError{Field: "Config.Mode", Reason: "cannot be empty"}
	}
	for i, r := range c.Routes {
		if r.Index < 0 || r.Index >= c.Total {
			return &ValidationError{Field: fmt.Sprintf("Routes[%d].Index", i), Reason: "out of range"}
		}
		switch r.Status {
		case RouteCompleted, RouteCrashed, RouteRejected:
		default:
			return &ValidationError{Field: fmt.Sprintf("Routes[%d].Status", i), Reason: "unknown status " + string(r.Status)}
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
func (c *Checkpoint) IsCompatible(config RunConfig) error {
	if c.Config.RoutesPath != config.RoutesPath {
		return &CompatibilityError{Field: "RoutesPath", Expected: c.Config.RoutesPath, Actual: config.RoutesPath}
	}
	if c.Config.Mode != config.Mode {
		return &CompatibilityError{Field: "Mode", Expected: c.Config.Mode, Actual: config.Mode}
	}
	if c.Config.Strategy != config.Strategy {
		return &CompatibilityError{Field: "Strategy", Expected: c.Config.Strategy, Actual: config.Strategy}
	}
	if c.Config.Repetitions != config.Repetitions {
		return intMismatch("Repetitions", c.Config.Repetitions, config.Repetitions)
	}
	if c.Config.VectorsPath != config.VectorsPath {
		return &CompatibilityError{Field: "VectorsPath", Expected: c.Config.VectorsPath, Actual: config.VectorsPath}
	}
	if c.Config.Mode == "search" && c.Config.Strategy == "genetic" {
		if c.Config.PopSize != config.PopSize {
			return intMismatch("PopSize", c.Config.PopSize, config.PopSize)
		}
		if c.Config.Offspring != config.Offspring {
			return intMismatch("Offspring", c.Config.Offspring, config.Offspring)
		}
		if c.Config.Generations != config.Generations {
			return intMismatch("Generations", c.Config.Generations, config.Generations)
		}
	}
	return nil
}

func intMismatch(field string, expected, actual int) *CompatibilityError {
	return &CompatibilityError{
		Field:    field,
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", actual),
	}
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
