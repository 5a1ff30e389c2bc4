package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kebairia/budgetease/internal/config"
	"github.com/kebairia/budgetease/internal/logger"
	"github.com/kebairia/budgetease/internal/metrics"
	"github.com/kebairia/budgetease/internal/operations"
)

var (
	// ConfigFile is the path to the YAML configuration. Empty means the
	// default search locations.
	ConfigFile string

	cfg config.Config
	log logger.Logger = logger.Nop()

	// rootCmd is the base command for budgetease.
	rootCmd = &cobra.Command{
		Use:   config.AppName,
		Short: "Backup, restore and retention for the budgetease data store",
		Long: `budgetease keeps timestamped snapshots of the event-budget data store,
restores the newest one when the data store is missing and deletes
snapshots older than the retention window.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads the configuration and builds the logger for every subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(ConfigFile)
	if err != nil {
		return err
	}
	l, err := logger.New(loaded.Logging.Level, loaded.Logging.Development)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	cfg, log = loaded, l
	return nil
}

func newManager(cmd *cobra.Command, m *metrics.Metrics) (*operations.OperationManager, error) {
	return operations.NewOperationManager(cmd.Context(), cfg, log, m)
}
