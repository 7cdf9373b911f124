package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dan9191/bnpl-service/internal/config"
	"github.com/Dan9191/bnpl-service/internal/scoring"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect scoring configuration",
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check a scoring config the way the API does at startup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			engine, err := loadEngine(path)
			if err != nil {
				return err
			}
			cfg := engine.Config()
			fmt.Fprintf(cmd.OutOrStdout(), "scoring config OK: threshold %d, %d tiers, max limit %d cents\n",
				cfg.ApprovalThreshold, len(cfg.Tiers), cfg.Tiers.MaxLimit())
			return nil
		},
	}

	defaults := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in scoring config as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.MarshalScoring(scoring.DefaultConfig())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(validate, defaults)
	return cmd
}
