package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/store"
)

var (
	logDir       string
	aggregateOut string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [run-id]",
	Short: "Re-score the criteria and fitness logs of a run",
	Long: `Reads the criteria and fitness logs of a run line by line and prints the
three objectives (route completion, lane keeping, collision severity) of
every recorded evaluation as CSV. Use --log-dir for logs outside the data dir.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVar(&logDir, "log-dir", "", "Directory holding the logs (instead of a run ID)")
	aggregateCmd.Flags().StringVarP(&aggregateOut, "out", "o", "", "Output file (stdout when empty)")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	dir := logDir
	if dir == "" {
		if len(args) == 0 {
			return fmt.Errorf("either a run ID or --log-dir is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.LogDir(args[0])
	}

	criteria, err := os.Open(filepath.Join(dir, store.CriteriaLogName))
	if err != nil {
		return fmt.Errorf("failed to open criteria log: %w", err)
	}
	defer criteria.Close()

	fit, err := os.Open(filepath.Join(dir, store.FitnessLogName))
	if err != nil {
		return fmt.Errorf("failed to open fitness log: %w", err)
	}
	defer fit.Close()

	objectives, err := fitness.AggregateLogs(criteria, fit)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if aggregateOut != "" {
		f, err := os.Create(aggregateOut)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeObjectives(w, objectives)
}

// writeObjectives prints a header and one CSV row per evaluation.
func writeObjectives(w io.Writer, objectives []fitness.Objectives) error {
	if _, err := fmt.Fprintln(w, strings.Join(fitness.ObjectiveNames[:], ",")); err != nil {
		return err
	}
	for _, o := range objectives {
		cells := make([]string, len(o))
		for i, v := range o {
			cells[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return err
		}
	}
	return nil
}
