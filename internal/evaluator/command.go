package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/cwbudde/scenariosearch/internal/fitness"
)

// ExitConfigurationError is the bridge exit code for an invalid agent or
// sensor setup. Any other non-zero exit is a crash.
const ExitConfigurationError = 3

// CommandSimulator runs an external bridge process per scenario. The
// Request is written to its stdin as JSON; it must print
//
//	{"criteria": [15 numbers], "fitness": [5 numbers]}
//
// on stdout and exit 0.
type CommandSimulator struct {
	Path string
	Args []string
	// Env is appended to the inherited environment when non-empty.
	Env []string
}

// NewCommandSimulator builds a simulator from a command line.
func NewCommandSimulator(command []string) (*CommandSimulator, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("simulator command cannot be empty")
	}
	return &CommandSimulator{Path: command[0], Args: command[1:]}, nil
}

type measurementWire struct {
	Criteria []float64 `json:"criteria"`
	Fitness  []float64 `json:"fitness"`
}

// RunScenario starts the bridge command, writes the request to its stdin
// and decodes the measurement from its stdout.
func (c *CommandSimulator) RunScenario(ctx context.Context, req Request) (Measurement, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Measurement{}, fmt.Errorf("failed to encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Starting simulator", "path", c.Path, "route", req.Scenario.Route.Name)
	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Measurement{}, ctxErr
	}
	if err != nil {
		reason := lastLine(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == ExitConfigurationError {
				return Measurement{}, &ConfigurationError{Reason: reason}
			}
			return Measurement{}, &CrashError{Reason: fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), reason)}
		}
		return Measurement{}, &ConfigurationError{Reason: "cannot start simulator", Err: err}
	}

	var wire measurementWire
	if err := json.Unmarshal(stdout.Bytes(), &wire); err != nil {
		return Measurement{}, &CrashError{Reason: fmt.Sprintf("malformed simulator output: %v", err)}
	}
	if len(wire.Criteria) != fitness.CriteriaColumns || len(wire.Fitness) != fitness.FitnessColumns {
		return Measurement{}, &CrashError{Reason: fmt.Sprintf("simulator reported %d criteria and %d fitness values",
			len(wire.Criteria), len(wire.Fitness))}
	}

	var m Measurement
	copy(m.Criteria[:], wire.Criteria)
	copy(m.Fitness[:], wire.Fitness)
	return m, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
