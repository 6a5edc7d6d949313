package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/towops/impound/internal/stage"
)

func newVehicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Vehicle inspection and manual transitions",
	}

	cmd.AddCommand(newVehicleShowCmd())
	cmd.AddCommand(newVehicleHistoryCmd())
	cmd.AddCommand(newVehicleAdvanceCmd())
	return cmd
}

func newVehicleShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <call-number>",
		Short: "Show a vehicle's stage and due actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVehicleShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	return cmd
}

func runVehicleShow(cmd *cobra.Command, configPath, callNumber string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	st, _, engine, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	v, err := st.GetVehicle(cmd.Context(), callNumber)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	cur := stage.FromStatus(v.Status)
	fmt.Fprintf(out, "Case %s: %s %s (%s)\n", v.CallNumber, v.Make, v.Model, v.VIN)
	fmt.Fprintf(out, "Stage: %s (raw status %q)\n", cur, v.Status)
	fmt.Fprintf(out, "Impounded: %s  Owner known: %t\n", v.ImpoundedAt.Format("2006-01-02"), v.OwnerKnown)
	if v.NoticeSentAt != nil {
		fmt.Fprintf(out, "Notice sent: %s\n", v.NoticeSentAt.Format("2006-01-02"))
	}
	if !cur.Terminal() {
		fmt.Fprintf(out, "Valid next stages: %v\n", stage.ValidSuccessors(cur))
	}

	actions, err := engine.VehicleActions(cmd.Context(), callNumber)
	if err != nil {
		return err
	}
	for _, a := range actions {
		fmt.Fprintf(out, "Due: [%s] %s: %s (due %s)\n",
			a.PriorityStr, a.Type, a.Description, a.DueAt.Format("2006-01-02"))
	}
	return nil
}

func newVehicleHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history <call-number>",
		Short: "Show a vehicle's stage history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVehicleHistory(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	return cmd
}

func runVehicleHistory(cmd *cobra.Command, configPath, callNumber string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	st, _, _, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	entries, err := st.History(cmd.Context(), callNumber)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No stage history.")
		return nil
	}
	for _, e := range entries {
		exited := "current"
		if e.ExitedAt != nil {
			exited = e.ExitedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "%s  %s -> %s  by %s", e.EnteredAt.Format("2006-01-02 15:04"), e.Stage, exited, e.Actor)
		if e.Note != "" {
			fmt.Fprintf(out, "  (%s)", e.Note)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func newVehicleAdvanceCmd() *cobra.Command {
	var (
		configPath string
		note       string
		actor      string
	)

	cmd := &cobra.Command{
		Use:   "advance <call-number> <stage>",
		Short: "Manually advance a vehicle to a new stage",
		Long:  "Validates the transition against the stage registry and commits it with optimistic concurrency. A rejected or conflicting transition exits non-zero.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVehicleAdvance(cmd, configPath, args[0], args[1], note, actor)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	cmd.Flags().StringVar(&note, "note", "", "free-text note for the history entry")
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor recorded on the transition")
	return cmd
}

func runVehicleAdvance(cmd *cobra.Command, configPath, callNumber, toRaw, note, actor string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	_, _, engine, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	to := stage.FromStatus(toRaw)
	if !stage.Known(toRaw) {
		return fmt.Errorf("unknown stage %q", toRaw)
	}

	ok, err := engine.AdvanceStage(cmd.Context(), callNumber, to, note, actor, "")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("transition to %s rejected (invalid successor, eligibility, or concurrent edit)", to)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Case %s advanced to %s\n", callNumber, to)
	return nil
}
