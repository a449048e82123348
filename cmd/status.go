package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Query server status or a specific run",
	Long: `Queries the server for run status information.
If no run-id is provided, lists all runs.
If run-id is provided, shows detailed status for that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listRuns(fmt.Sprintf("%s/api/v1/runs", serverURL))
	}
	runID := args[0]
	return getRunStatus(fmt.Sprintf("%s/api/v1/runs/%s/status", serverURL, runID), runID)
}

// runView is the subset of the server's job JSON the CLI prints.
type runView struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Strategy    string    `json:"strategy"`
	Evaluations int       `json:"evaluations"`
	Failures    int       `json:"failures"`
	Generation  int       `json:"generation"`
	FrontSize   int       `json:"frontSize"`
	Best        []float64 `json:"best"`
	Routes      int       `json:"routes"`
	Elapsed     float64   `json:"elapsed"`
	EPS         float64   `json:"eps"`
	Error       string    `json:"error"`
	Request     struct {
		Mode   string `json:"mode"`
		Resume bool   `json:"resume"`
	} `json:"request"`
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listRuns(url string) error {
	var runs []runView
	if _, err := fetchJSON(url, &runs); err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("Found %d run(s):\n\n", len(runs))
	for _, run := range runs {
		fmt.Printf("Run ID: %s\n", run.ID)
		fmt.Printf("  State: %s\n", run.State)
		fmt.Printf("  Mode: %s (%s)\n", run.Request.Mode, run.Strategy)
		fmt.Printf("  Evaluations: %d (%d failed)\n", run.Evaluations, run.Failures)
		fmt.Println()
	}

	return nil
}

func getRunStatus(url, runID string) error {
	var run runView
	code, err := fetchJSON(url, &run)
	if code == http.StatusNotFound {
		return fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("State: %s\n", run.State)
	fmt.Printf("Mode: %s\n", run.Request.Mode)
	fmt.Printf("Strategy: %s\n", run.Strategy)
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Evaluations: %d (%d failed)\n", run.Evaluations, run.Failures)
	if run.Generation > 0 {
		fmt.Printf("  Generation: %d\n", run.Generation)
	}
	if run.FrontSize > 0 {
		fmt.Printf("  Front size: %d\n", run.FrontSize)
	}
	if len(run.Best) > 0 {
		fmt.Printf("  Best objectives: %v\n", run.Best)
	}
	if run.Routes > 0 {
		fmt.Printf("  Routes: %d\n", run.Routes)
	}

	elapsed := time.Duration(run.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if run.EPS > 0 {
		fmt.Printf("  Throughput: %.2f evaluations/sec\n", run.EPS)
	}

	if run.Error != "" {
		fmt.Printf("\nError: %s\n", run.Error)
	}

	return nil
}
