package search

import (
	"log/slog"
	"math"

	"github.com/cwbudde/scenariosearch/internal/fitness"
)

// DefaultProgressThreshold is the smallest per-objective drop that counts as
// progress.
const DefaultProgressThreshold = 1e-3

// ProgressStats summarises one generation.
type ProgressStats struct {
	Generation int                `json:"generation"`
	FrontSize  int                `json:"frontSize"`
	Best       fitness.Objectives `json:"best"` // per-objective minimum seen so far
	Improved   bool               `json:"improved"`
	Stale      int                `json:"stale"` // generations since the last improvement
}

// ProgressTracker follows the per-objective best values across generations.
// It only reports; the genetic search runs its full generation count.
type ProgressTracker struct {
	threshold float64
	best      fitness.Objectives
	history   []ProgressStats
	stale     int
}

// NewProgressTracker creates a tracker; threshold <= 0 uses the default.
func NewProgressTracker(threshold float64) *ProgressTracker {
	if threshold <= 0 {
		threshold = DefaultProgressThreshold
	}
	p := &ProgressTracker{threshold: threshold}
	p.Reset()
	return p
}

// Update records the first front of a generation.
func (p *ProgressTracker) Update(generation int, front []fitness.Objectives) ProgressStats {
	improved := false
	for _, o := range front {
		for m, v := range o {
			if p.best[m]-v >= p.threshold || (math.IsInf(p.best[m], 1) && !math.IsInf(v, 1)) {
				improved = true
			}
			if v < p.best[m] {
				p.best[m] = v
			}
		}
	}
	if improved {
		p.stale = 0
	} else {
		p.stale++
	}

	stats := ProgressStats{
		Generation: generation,
		FrontSize:  len(front),
		Best:       p.best,
		Improved:   improved,
		Stale:      p.stale,
	}
	p.history = append(p.history, stats)

	slog.Debug("Generation progress",
		"generation", generation,
		"front_size", stats.FrontSize,
		"best", stats.Best.Slice(),
		"stale_count", stats.Stale,
	)
	return stats
}

// Best returns the per-objective minimum seen so far.
func (p *ProgressTracker) Best() fitness.Objectives {
	return p.best
}

// History returns the stats of every generation seen.
func (p *ProgressTracker) History() []ProgressStats {
	return append([]ProgressStats{}, p.history...)
}

// StaleCount returns the number of generations without improvement.
func (p *ProgressTracker) StaleCount() int {
	return p.stale
}

// Reset clears the tracker's state
func (p *ProgressTracker) Reset() {
	for m := range p.best {
		p.best[m] = math.Inf(1)
	}
	p.history = nil
	p.stale = 0
}
