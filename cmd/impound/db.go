package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/towops/impound/internal/config"
	"github.com/towops/impound/internal/db"
	"github.com/towops/impound/internal/notify"
	"github.com/towops/impound/internal/store"
	"github.com/towops/impound/internal/workflow"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the impound database",
		Long:  "Creates the database and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config for lot %q from %s\n", cfg.Lot, configPath)

	adminDB, err := db.ConnectAdmin(cfg.DB.User, cfg.DB.Host, cfg.DB.Port)
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", cfg.DB.Host, cfg.DB.Port, err)
	}

	if err := db.CreateDatabase(adminDB, cfg.DB.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s ready\n", cfg.DB.Database)

	gormDB, err := db.Connect(cfg.DB.User, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the impound database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to drop the database without --force")
			}
			return runDBReset(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "impound.yaml", "path to config file")
	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive reset")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	adminDB, err := db.ConnectAdmin(cfg.DB.User, cfg.DB.Host, cfg.DB.Port)
	if err != nil {
		return err
	}

	if err := db.DropDatabase(adminDB, cfg.DB.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped database %s\n", cfg.DB.Database)

	return runDBInit(cmd, configPath)
}

// connectFromConfig loads the config and opens the database connection.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.DB.User, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// buildEngine wires the store, dispatcher, and workflow engine over an open
// connection.
func buildEngine(cfg *config.Config, gormDB *gorm.DB) (*store.Store, *notify.Dispatcher, *workflow.Engine, error) {
	st, err := store.New(gormDB)
	if err != nil {
		return nil, nil, nil, err
	}

	var transport notify.Transport
	if cfg.Notify.Command != "" {
		transport = &notify.CommandTransport{Command: cfg.Notify.Command}
	}

	dispatcher, err := notify.New(notify.Opts{
		DB:          gormDB,
		Transport:   transport,
		MaxAttempts: cfg.Notify.MaxAttempts,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := workflow.New(workflow.Opts{
		Store:      st,
		Dispatcher: dispatcher,
		Config:     cfg,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return st, dispatcher, engine, nil
}
