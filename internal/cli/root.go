// Package cli provides the command-line interface for triggerexport.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/config"
	"github.com/raphaelgruber/triggerexport/internal/ledger"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "triggerexport",
	Short: "Export policy triggers from Athena to CSV",
	Long: `Triggerexport extracts policy-trigger records from a time-partitioned
Athena table and writes them as one CSV export to S3.

A full export queries the whole window. An incremental export keeps the
still-valid rows of the newest previous export and only queries what the
previous export does not cover.`,
	Version:       Version,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for commands that only print
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "hash-key" {
			return nil
		}

		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

// connectLedger opens the run ledger when it is enabled.
// A nil client means runs are not recorded.
func connectLedger(ctx context.Context, required bool) (*ledger.Client, error) {
	if !cfg.LedgerEnabled {
		if required {
			return nil, fmt.Errorf("run ledger disabled, set TRIGGEREXPORT_LEDGER=true")
		}
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := ledger.NewClient(ctx, ledger.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to ledger: %w", err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}
	return client, nil
}

func closeLedger(client *ledger.Client) {
	if client == nil {
		return
	}
	if err := client.Close(context.Background()); err != nil {
		logger.Warn("failed to close ledger", "error", err)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(fullCmd)
	rootCmd.AddCommand(incrementalCmd)
	rootCmd.AddCommand(loadPartitionsCmd)
	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}
