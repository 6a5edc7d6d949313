package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newActionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List due actions across all active vehicles",
		Long:  "Derives the prioritized action list the scheduler and dashboard work from. Read-only.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActions(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	return cmd
}

func runActions(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	_, _, engine, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	actions, err := engine.AllDueActions(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(actions) == 0 {
		fmt.Fprintln(out, "No due actions.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tCASE\tACTION\tDUE\tAUTO\tDESCRIPTION")
	for _, a := range actions {
		auto := ""
		if a.Automatic {
			auto = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.PriorityStr, a.CallNumber, a.Type, a.DueAt.Format("2006-01-02"), auto, a.Description)
	}
	return w.Flush()
}
