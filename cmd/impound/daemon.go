package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/towops/impound/internal/dashboard"
	"github.com/towops/impound/internal/scheduler"
)

func newDaemonCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler and management dashboard",
		Long:  "Starts the five recurring jobs (recheck, sweep, notification flush, morning batch, cleanup) and the management HTTP surface. Runs until SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	cmd.Flags().IntVar(&port, "port", 0, "dashboard port (overrides config)")
	return cmd
}

func runDaemon(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	st, dispatcher, engine, err := buildEngine(cfg, gormDB)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Opts{
		Engine:     engine,
		Dispatcher: dispatcher,
		Store:      st,
		Config:     cfg,
	})
	if err != nil {
		return err
	}

	if port <= 0 {
		port = cfg.Dashboard.Port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	fmt.Fprintf(out, "Scheduler running (%d jobs)\n", len(sched.Status()))

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
		fmt.Fprintln(out, "Scheduler stopped.")
	}()

	return dashboard.Start(ctx, dashboard.StartOpts{
		Engine:     engine,
		Scheduler:  sched,
		Dispatcher: dispatcher,
		Store:      st,
		Port:       port,
		Out:        out,
	})
}
