package surrogate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
	"github.com/cwbudde/scenariosearch/internal/store"
)

// Source scores vectors with a ModelSet. Every query, cached or not, is
// appended to the scenario and prediction logs in lockstep so the pair can
// be used for retraining.
type Source struct {
	models *ModelSet
	logs   *store.LogSet

	mu    sync.Mutex
	cache *lru.Cache[string, fitness.Objectives]
}

// NewSource builds a surrogate source; cacheSize <= 0 disables caching.
func NewSource(models *ModelSet, logs *store.LogSet, cacheSize int) (*Source, error) {
	s := &Source{models: models, logs: logs}
	if cacheSize > 0 {
		cache, err := lru.New[string, fitness.Objectives](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create prediction cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Evaluate predicts the objectives of v and appends them to the prediction
// log. The route is ignored.
func (s *Source) Evaluate(ctx context.Context, v scenario.Vector, _ scenario.RouteConfig) (fitness.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return fitness.Evaluation{}, err
	}
	if err := v.Validate(); err != nil {
		return fitness.Evaluation{}, err
	}

	start := time.Now()
	key := v.CSV()

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := fitness.Objectives{}, false
	if s.cache != nil {
		obj, ok = s.cache.Get(key)
	}
	if !ok {
		var err error
		obj, err = s.models.Predict(v)
		if err != nil {
			return fitness.Evaluation{}, fmt.Errorf("surrogate prediction failed: %w", err)
		}
		if s.cache != nil {
			s.cache.Add(key, obj)
		}
	}

	if err := s.logs.Prediction.Append(objectivesCSV(obj)); err != nil {
		return fitness.Evaluation{}, fmt.Errorf("prediction log: %w", err)
	}
	if err := s.logs.Scenario.Append(key); err != nil {
		return fitness.Evaluation{}, fmt.Errorf("scenario log: %w", err)
	}

	return fitness.Evaluation{
		Vector:     v.Clone(),
		Objectives: obj,
		Status:     fitness.StatusOK,
		Duration:   time.Since(start),
	}, nil
}

func objectivesCSV(o fitness.Objectives) string {
	parts := make([]string, len(o))
	for i, v := range o {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
