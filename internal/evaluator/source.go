package evaluator

import (
	"context"
	"fmt"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// LiveSource scores vectors by running the simulator and aggregating the
// last line of the criteria and fitness logs.
type LiveSource struct {
	adapter *Adapter
}

// NewLiveSource returns a FitnessSource that runs every scenario through
// the adapter.
func NewLiveSource(adapter *Adapter) *LiveSource {
	return &LiveSource{adapter: adapter}
}

// Evaluate runs one case. Failed simulations come back as evaluations with
// worst-case objectives; the error is non-nil only when the search must stop.
func (s *LiveSource) Evaluate(ctx context.Context, v scenario.Vector, route scenario.RouteConfig) (fitness.Evaluation, error) {
	out, err := s.adapter.RunOneCase(ctx, v, route)
	if err != nil {
		return fitness.Evaluation{}, err
	}

	logs := s.adapter.Logs()
	cLine, err := logs.Criteria.LastLine()
	if err != nil {
		return fitness.Evaluation{}, fmt.Errorf("criteria log: %w", err)
	}
	fLine, err := logs.Fitness.LastLine()
	if err != nil {
		return fitness.Evaluation{}, fmt.Errorf("fitness log: %w", err)
	}

	c, err := fitness.ParseCriteriaLine(cLine)
	if err != nil {
		return fitness.Evaluation{}, err
	}
	f, err := fitness.ParseFitnessLine(fLine)
	if err != nil {
		return fitness.Evaluation{}, err
	}

	return fitness.Evaluation{
		Vector:     v.Clone(),
		Objectives: fitness.Aggregate(c, f),
		Status:     out.Status,
		Message:    out.Message,
		Duration:   out.Duration,
	}, nil
}
