package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Result is the output artifact of a search: the non-dominated vectors X
// and their objectives F, row aligned.
type Result struct {
	RunID       string      `json:"runId"`
	Strategy    string      `json:"strategy"`
	Route       string      `json:"route"`
	X           [][]float64 `json:"X"`
	F           [][]float64 `json:"F"`
	Evaluations int         `json:"evaluations"`
	Failures    int         `json:"failures"`
	Generations int         `json:"generations,omitempty"`
	Created     time.Time   `json:"created"`
}

func (fs *FSStore) resultPath(runID string) string {
	return filepath.Join(fs.RunDir(runID), "output.json")
}

// SaveResult atomically writes <baseDir>/runs/<runID>/output.json.
func (fs *FSStore) SaveResult(runID string, result *Result) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if len(result.X) != len(result.F) {
		return fmt.Errorf("result has %d vectors but %d objective rows", len(result.X), len(result.F))
	}
	if err := os.MkdirAll(fs.RunDir(runID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := writeJSONAtomic(fs.resultPath(runID), result); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// LoadResult reads the output artifact of a run.
func (fs *FSStore) LoadResult(runID string) (*Result, error) {
	data, err := os.ReadFile(fs.resultPath(runID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}
	return &result, nil
}
