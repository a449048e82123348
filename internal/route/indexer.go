// Package route iterates route configurations deterministically and persists
// the iteration cursor so an interrupted run can resume.
package route

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// ErrExhausted is returned by Next when every route was handed out.
var ErrExhausted = errors.New("route iterator exhausted")

// Indexer hands out routes in order. Each base route is repeated
// consecutively; the expanded position becomes RouteConfig.Index.
type Indexer struct {
	routes []scenario.RouteConfig
	cursor int

	st         store.Store
	runID      string
	checkpoint *store.Checkpoint
}

// NewIndexer expands routes by repetitions.
func NewIndexer(routes []scenario.RouteConfig, repetitions int) (*Indexer, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("no routes to iterate")
	}
	if repetitions < 1 {
		return nil, fmt.Errorf("repetitions must be at least 1, got %d", repetitions)
	}

	expanded := make([]scenario.RouteConfig, 0, len(routes)*repetitions)
	for _, r := range routes {
		for rep := 0; rep < repetitions; rep++ {
			rc := r
			rc.Index = len(expanded)
			rc.RepetitionIndex = rep
			rc.Trajectory = append([]scenario.Waypoint(nil), r.Trajectory...)
			expanded = append(expanded, rc)
		}
	}
	return &Indexer{routes: expanded}, nil
}

// Bind attaches a checkpoint store. Until bound, SaveState and Resume fail.
func (ix *Indexer) Bind(st store.Store, runID string, cfg store.RunConfig) {
	ix.st = st
	ix.runID = runID
	ix.checkpoint = store.NewCheckpoint(runID, len(ix.routes), cfg)
}

// Peek reports whether another route is available.
func (ix *Indexer) Peek() bool {
	return ix.cursor < len(ix.routes)
}

// Next returns the current route and advances the cursor.
func (ix *Indexer) Next() (scenario.RouteConfig, error) {
	if !ix.Peek() {
		return scenario.RouteConfig{}, ErrExhausted
	}
	rc := ix.routes[ix.cursor]
	ix.cursor++
	return rc, nil
}

// Drain advances to the end and returns the terminal route. A search run
// targets exactly one route: the last one configured.
func (ix *Indexer) Drain() (scenario.RouteConfig, error) {
	var (
		last scenario.RouteConfig
		got  bool
	)
	for ix.Peek() {
		rc, err := ix.Next()
		if err != nil {
			return scenario.RouteConfig{}, err
		}
		last, got = rc, true
	}
	if !got {
		return scenario.RouteConfig{}, ErrExhausted
	}
	return last, nil
}

// Total is the number of routes including repetitions.
func (ix *Indexer) Total() int {
	return len(ix.routes)
}

// Cursor is the index of the next route Next will return.
func (ix *Indexer) Cursor() int {
	return ix.cursor
}

// Checkpoint returns the bound checkpoint, or nil.
func (ix *Indexer) Checkpoint() *store.Checkpoint {
	return ix.checkpoint
}

// SaveState records the outcome of the route returned last by Next and
// persists the checkpoint.
func (ix *Indexer) SaveState(rec store.RouteRecord) error {
	if ix.st == nil {
		return fmt.Errorf("indexer has no checkpoint store")
	}
	if ix.cursor == 0 {
		return fmt.Errorf("no route has been handed out yet")
	}
	current := ix.routes[ix.cursor-1]
	rec.Index = current.Index
	if rec.Name == "" {
		rec.Name = current.Name
	}
	rec.Repetition = current.RepetitionIndex

	ix.checkpoint.Record(rec)
	if err := ix.st.SaveCheckpoint(ix.runID, ix.checkpoint); err != nil {
		return fmt.Errorf("failed to save route state: %w", err)
	}
	return nil
}

// Resume loads the bound run's checkpoint and moves the cursor past every
// recorded route. The checkpoint must have been written for the same route
// set and settings.
func (ix *Indexer) Resume() error {
	if ix.st == nil {
		return fmt.Errorf("indexer has no checkpoint store")
	}

	cp, err := ix.st.LoadCheckpoint(ix.runID)
	if err != nil {
		return err
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("invalid checkpoint: %w", err)
	}
	if err := cp.IsCompatible(ix.checkpoint.Config); err != nil {
		return err
	}
	if cp.Total != len(ix.routes) {
		return &store.CompatibilityError{
			Field:    "Total",
			Expected: fmt.Sprintf("%d", cp.Total),
			Actual:   fmt.Sprintf("%d", len(ix.routes)),
		}
	}

	ix.checkpoint = cp
	ix.cursor = cp.Cursor
	slog.Info("Resuming route iteration", "run_id", ix.runID, "cursor", cp.Cursor, "total", cp.Total)
	return nil
}
