package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/scenariosearch/internal/campaign"
	"github.com/cwbudde/scenariosearch/internal/config"
	"github.com/cwbudde/scenariosearch/internal/metrics"
)

var (
	runID       string
	strategy    string
	seed        int64
	caseNumber  int
	vectorsPath string
	archivePath string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the terminal route for critical scenarios",
	Long: `Runs the configured strategy (random, genetic or scalarized) against the
last route of the route file and writes the non-dominated scenarios to
<data-dir>/runs/<run-id>/output.json.

Set GA=1 to select the genetic strategy and SURROGATE=1 to score scenarios
with the surrogate models instead of the simulator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCampaign(cmd, config.ModeSearch, runID, false, nil)
	},
}

func init() {
	addRunFlags(searchCmd)
	searchCmd.Flags().StringVar(&strategy, "strategy", "", "Search strategy: random, genetic, scalarized (overrides the config)")
	searchCmd.Flags().IntVar(&caseNumber, "cases", 0, "Number of random scenarios (overrides the config)")
	searchCmd.Flags().StringVar(&vectorsPath, "vectors", "", "CSV of literal scenario vectors for the random strategy")
	rootCmd.AddCommand(searchCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated when empty)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (overrides the config)")
	cmd.Flags().StringVar(&archivePath, "archive", "", "SQLite archive of every evaluation (overrides the config)")
}

// runCampaign loads the configuration, applies adjust and the command's
// overrides and executes one search or sweep.
func runCampaign(cmd *cobra.Command, mode, id string, resume bool, adjust func(*config.Config)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(cfg)
	}
	flags := cmd.Flags()
	if flags.Changed("strategy") {
		cfg.Strategy = strategy
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("cases") {
		cfg.Random.CaseNumber = caseNumber
	}
	if flags.Changed("vectors") {
		cfg.Random.VectorsPath = vectorsPath
	}
	if flags.Changed("archive") {
		cfg.ArchivePath = archivePath
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	runner, err := campaign.New(cfg, st, campaign.Options{
		RunID:   id,
		Resume:  resume,
		Metrics: metrics.New(cfg.Strategy),
	})
	if err != nil {
		return err
	}

	slog.Info("Starting run", "run_id", runner.RunID(), "mode", mode, "strategy", cfg.Strategy, "resume", resume)
	start := time.Now()

	var summary *campaign.Summary
	if mode == config.ModeSweep {
		summary, err = runner.Sweep(cmd.Context())
	} else {
		summary, err = runner.Search(cmd.Context())
	}
	if err != nil {
		return err
	}

	printSummary(summary, time.Since(start))
	return nil
}

func printSummary(summary *campaign.Summary, elapsed time.Duration) {
	fmt.Printf("Run %s (%s) finished in %s\n", summary.RunID, summary.Mode, elapsed.Round(time.Millisecond))
	for _, r := range summary.Routes {
		fmt.Printf("  route %d %s (rep %d): %s, %d evaluations, %d failures\n",
			r.Index, r.Name, r.Repetition, r.Status, r.Evaluations, r.Failures)
	}
	if res := summary.Result; res != nil {
		fmt.Printf("Evaluated %d scenarios (%d failed), %d on the non-dominated front\n",
			len(res.Evaluations), res.Failures(), res.Front.Len())
	}
}
