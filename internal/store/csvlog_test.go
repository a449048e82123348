package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCSVLogAppendAndLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "criteria.csv")

	log, err := OpenCSVLog(path)
	if err != nil {
		t.Fatalf("OpenCSVLog failed: %v", err)
	}
	defer log.Close()

	if _, err := log.LastLine(); !errors.Is(err, ErrEmptyLog) {
		t.Errorf("Expected ErrEmptyLog on fresh log, got %v", err)
	}

	for _, line := range []string{"1,2,3", "4,5,6", "7,8,9"} {
		if err := log.Append(line); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		last, err := log.LastLine()
		if err != nil {
			t.Fatalf("LastLine failed: %v", err)
		}
		if last != line {
			t.Errorf("Expected last line %q, got %q", line, last)
		}
	}

	lines, err := log.Lines()
	if err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	if len(lines) != 3 || lines[0] != "1,2,3" {
		t.Errorf("Unexpected lines: %v", lines)
	}
}

func TestCSVLogRejectsNewlines(t *testing.T) {
	log, err := OpenCSVLog(filepath.Join(t.TempDir(), "x.csv"))
	if err != nil {
		t.Fatalf("OpenCSVLog failed: %v", err)
	}
	defer log.Close()

	if err := log.Append("1,2\n3,4"); err == nil {
		t.Error("Expected error for embedded newline")
	}
	lines, _ := log.Lines()
	if len(lines) != 0 {
		t.Errorf("Rejected line must not be written, got %v", lines)
	}
}

func TestCSVLogReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.csv")

	log, _ := OpenCSVLog(path)
	log.Append("a")
	log.Close()

	log, err := OpenCSVLog(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer log.Close()
	log.Append("b")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("Expected appended content, got %q", string(data))
	}
}

func TestOpenLogSet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")

	set, err := OpenLogSet(dir)
	if err != nil {
		t.Fatalf("OpenLogSet failed: %v", err)
	}

	set.Criteria.Append("c")
	set.Fitness.Append("f")
	set.Scenario.Append("s")
	set.Prediction.Append("p")
	if err := set.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, name := range []string{CriteriaLogName, FitnessLogName, ScenarioLogName, PredictionLogName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}
}
