package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log file names inside a log directory.
const (
	CriteriaLogName   = "criteria.csv"
	FitnessLogName    = "fitness.csv"
	ScenarioLogName   = "scenario.csv"
	PredictionLogName = "prediction.csv"
)

// ErrEmptyLog is returned by LastLine when the log holds no lines.
var ErrEmptyLog = errors.New("log is empty")

// CSVLog is an append-only line log. Every Append is synced before it
// returns, so a reader that runs after Append always sees the line.
type CSVLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenCSVLog opens path for appending, creating the file and its parent
// directory when needed.
func OpenCSVLog(path string) (*CSVLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	return &CSVLog{path: path, file: file}, nil
}

// Path returns the filesystem path of the log.
func (l *CSVLog) Path() string {
	return l.path
}

// Append writes one line. line must not contain a newline.
func (l *CSVLog) Append(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("log line for %s contains a newline", filepath.Base(l.path))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append to %s: %w", l.path, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", l.path, err)
	}
	return nil
}

// Lines returns every non-empty line of the log in file order.
func (l *CSVLog) Lines() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readLogLines(l.path)
}

// LastLine returns the most recently appended line.
func (l *CSVLog) LastLine() (string, error) {
	lines, err := l.Lines()
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", ErrEmptyLog
	}
	return lines[len(lines)-1], nil
}

// Close closes the underlying file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func readLogLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log %s: %w", path, err)
	}
	return lines, nil
}

// LogSet bundles the per-run logs the evaluators append to.
type LogSet struct {
	Dir        string
	Criteria   *CSVLog
	Fitness    *CSVLog
	Scenario   *CSVLog
	Prediction *CSVLog
}

// OpenLogSet opens (or creates) all logs under dir.
func OpenLogSet(dir string) (*LogSet, error) {
	set := &LogSet{Dir: dir}
	targets := []struct {
		dst  **CSVLog
		name string
	}{
		{&set.Criteria, CriteriaLogName},
		{&set.Fitness, FitnessLogName},
		{&set.Scenario, ScenarioLogName},
		{&set.Prediction, PredictionLogName},
	}
	for _, t := range targets {
		log, err := OpenCSVLog(filepath.Join(dir, t.name))
		if err != nil {
			set.Close()
			return nil, err
		}
		*t.dst = log
	}
	return set, nil
}

// Close closes every opened log and returns the first error.
func (s *LogSet) Close() error {
	var first error
	for _, log := range []*CSVLog{s.Criteria, s.Fitness, s.Scenario, s.Prediction} {
		if log == nil {
			continue
		}
		if err := log.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
