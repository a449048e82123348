package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/scenariosearch/internal/config"
	"github.com/cwbudde/scenariosearch/internal/store"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume a run from its checkpoint",
	Long: `Continues a search or sweep after the last route recorded in its
checkpoint. The run's mode, strategy and seed are restored from the
checkpoint. The route file and repetitions come from the config and must
match the checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		cp, err := st.LoadCheckpoint(id)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if cp.Done() {
			fmt.Printf("Run %s already completed (%d/%d routes)\n", id, cp.Cursor, cp.Total)
			return nil
		}

		return runCampaign(cmd, cp.Config.Mode, id, true, func(c *config.Config) {
			restoreSnapshot(c, cp.Config)
		})
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

// restoreSnapshot puts the search settings a run was started with back into
// cfg. The route set is left alone so a mismatch is caught on resume.
func restoreSnapshot(cfg *config.Config, rc store.RunConfig) {
	cfg.Strategy = rc.Strategy
	cfg.Surrogate = rc.Surrogate
	cfg.Region = rc.Region
	cfg.Seed = rc.Seed
	if rc.CaseNumber > 0 {
		cfg.Random.CaseNumber = rc.CaseNumber
	}
	cfg.Random.VectorsPath = rc.VectorsPath
	if rc.PopSize > 0 {
		cfg.Genetic.PopSize = rc.PopSize
		cfg.Genetic.Offspring = rc.Offspring
		cfg.Genetic.Generations = rc.Generations
	}
}
