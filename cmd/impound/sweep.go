package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one automated sweep now",
		Long:  "Executes the automated sweep once: sends due statutory notices and advances eligible vehicles. Idempotent and safe alongside the daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	return cmd
}

func runSweep(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	_, _, engine, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	result, err := engine.RunAutomatedSweep(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sweep %s: processed %d vehicles, advanced %d\n",
		result.SweepID, result.Processed, result.Advanced)
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  error: %s\n", e)
	}
	return nil
}
