package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"toaster/internal/app"
	"toaster/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the config chain and creates a wired App. The caller
// must defer a.Close(). operation identifies the CLI command being run
// (e.g. "AddRawfile", "Process").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.LoadFromEnv(defaults["base_dir"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "toaster",
	Short: "Pulsar timing data ingestion and curation",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Set %s=%s to use it\n", config.EnvVar, defaults["config_path"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Archive Root:   %s\n", cfg.ArchiveRoot)
		fmt.Printf("Layout:         %s\n", cfg.LayoutTemplate)
		fmt.Printf("Fit Method:     %s\n", cfg.FitMethod)
		fmt.Printf("Archive Policy: %s\n", cfg.ArchivePolicy)
		fmt.Printf("Warn Mode:      %s\n", cfg.WarnMode)
		fmt.Printf("Tmp Dir:        %s\n", cfg.TmpDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Operator:       %s\n", cfg.Operator)
		fmt.Printf("Database:       %s (%s)\n", cfg.Database.Type, cfg.Database.Path)
		if cfg.Mirror.Type != "" {
			fmt.Printf("Mirror:         %s\n", cfg.Mirror.Type)
		}
		return nil
	},
}

// db command

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.NewForMigration(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		if err := a.MigrateUp(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	dbCmd.AddCommand(dbMigrateCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
