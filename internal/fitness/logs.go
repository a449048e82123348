package fitness

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// AggregateLogs re-scores every evaluation recorded in a pair of criteria and
// fitness logs. The logs are paired line by line; a length mismatch means
// one of the writers broke the append contract.
func AggregateLogs(criteria, fitness io.Reader) ([]Objectives, error) {
	cLines, err := readLines(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to read criteria log: %w", err)
	}
	fLines, err := readLines(fitness)
	if err != nil {
		return nil, fmt.Errorf("failed to read fitness log: %w", err)
	}
	if len(cLines) != len(fLines) {
		return nil, fmt.Errorf("criteria log has %d lines but fitness log has %d", len(cLines), len(fLines))
	}

	out := make([]Objectives, len(cLines))
	for i := range cLines {
		c, err := ParseCriteriaLine(cLines[i])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		f, err := ParseFitnessLine(fLines[i])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out[i] = Aggregate(c, f)
	}
	return out, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
