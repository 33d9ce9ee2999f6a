package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/pgrotate/cmd/pgrotate/commands"
	"github.com/systmms/pgrotate/internal/config"
	"github.com/systmms/pgrotate/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "pgrotate",
		Short: "Rotate PostgreSQL credentials stored in AWS Secrets Manager",
		Long: `pgrotate drives a PostgreSQL credential through the four-step
Secrets Manager rotation protocol: create a pending version, apply it to
the database, verify it, and promote it to current.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.Logger = logger
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "pgrotate.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewStepCommand(cfg),
		commands.NewServeCommand(cfg),
	)

	return rootCmd.Execute()
}
