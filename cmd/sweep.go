package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/scenariosearch/internal/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evaluate the baseline scenario on every route",
	Long: `Evaluates one scenario, the neutral baseline or the first row of --vectors,
on every route of the route file in order. Progress is checkpointed after
each route, so an interrupted sweep continues with "resume <run-id>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCampaign(cmd, config.ModeSweep, runID, false, nil)
	},
}

func init() {
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&vectorsPath, "vectors", "", "CSV whose first vector replaces the baseline")
	rootCmd.AddCommand(sweepCmd)
}
