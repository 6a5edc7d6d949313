package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification queue commands",
	}

	cmd.AddCommand(newNotifyFlushCmd())
	cmd.AddCommand(newNotifyListCmd())
	return cmd
}

func newNotifyFlushCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Attempt delivery for all pending notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifyFlush(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	return cmd
}

func runNotifyFlush(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	_, dispatcher, _, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	result, err := dispatcher.FlushPending(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Flush: sent %d, failed %d, remaining %d\n",
		result.Sent, result.Failed, result.Remaining)
	return nil
}

func newNotifyListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notification records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifyList(cmd, configPath, status)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, sent, failed)")
	return cmd
}

func runNotifyList(cmd *cobra.Command, configPath, status string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	_, dispatcher, _, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	recs, err := dispatcher.List(cmd.Context(), status)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No notification records.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCASE\tTYPE\tRECIPIENT\tSTATUS\tATTEMPTS\tQUEUED")
	for _, r := range recs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CallNumber, r.Type, r.Recipient, r.Status, r.Attempts,
			r.QueuedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
