package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	a := NewSQLiteArchive(filepath.Join(t.TempDir(), "archive.db"))
	if err := a.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSQLiteArchive_Evaluations(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	for i := 2; i >= 0; i-- {
		entry := TraceEntry{
			Index:      i,
			Generation: 1,
			Route:      "r0",
			Vector:     []float64{0.1 * float64(i), 0.5},
			Objectives: []float64{1, 0.5, 0},
			Status:     "ok",
			Timestamp:  time.Now(),
		}
		if err := a.SaveEvaluation(ctx, "run-a", entry); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}
	}

	// Re-saving an index replaces the row
	if err := a.SaveEvaluation(ctx, "run-a", TraceEntry{
		Index: 1, Route: "r0", Vector: []float64{0.9}, Objectives: []float64{1, 1, 1},
		Status: "crashed", Message: "exit 1", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("SaveEvaluation failed: %v", err)
	}

	entries, err := a.Evaluations(ctx, "run-a")
	if err != nil {
		t.Fatalf("Evaluations failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Index != i {
			t.Errorf("Entries should be ordered by index, got %d at %d", e.Index, i)
		}
	}
	if entries[1].Status != "crashed" || entries[1].Message != "exit 1" || entries[1].Vector[0] != 0.9 {
		t.Errorf("Replaced entry not stored: %+v", entries[1])
	}

	other, err := a.Evaluations(ctx, "run-b")
	if err != nil {
		t.Fatalf("Evaluations failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Runs should be isolated, got %d entries", len(other))
	}
}

func TestSQLiteArchive_Result(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	if _, ok, err := a.GetResult(ctx, "missing"); err != nil || ok {
		t.Errorf("Missing result should report ok=false, got ok=%v err=%v", ok, err)
	}

	result := &Result{
		RunID:       "run-a",
		Strategy:    "genetic",
		Route:       "r0",
		X:           [][]float64{{0.1, 0.2}},
		F:           [][]float64{{1, 0.5, 0}},
		Evaluations: 800,
	}
	if err := a.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	result.Evaluations = 810
	if err := a.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult upsert failed: %v", err)
	}

	got, ok, err := a.GetResult(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("GetResult failed: ok=%v err=%v", ok, err)
	}
	if got.Strategy != "genetic" || got.Evaluations != 810 || len(got.F) != 1 {
		t.Errorf("Unexpected result: %+v", got)
	}
}

func TestSQLiteArchive_NotInitialized(t *testing.T) {
	a := NewSQLiteArchive(filepath.Join(t.TempDir(), "archive.db"))
	if _, err := a.Evaluations(context.Background(), "run-a"); err == nil {
		t.Error("Expected error before Init")
	}
	if err := NewSQLiteArchive("").Init(context.Background()); err == nil {
		t.Error("Expected error for empty path")
	}
}
