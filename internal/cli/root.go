// Package cli implements the athena command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/athena-ops/athena-stack/internal/config"
	"github.com/athena-ops/athena-stack/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "athena",
	Short: "Athena observability analysis platform",
	Long: `athena runs the multi-agent analysis service and provides tools to
query it, seed demo data, and manage access tokens.

Configuration is read from $ATHENA_CONFIG_DIR/config.yaml and ATHENA_*
environment variables.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("output", "text", "output format: text, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load config: %v\n", err)
		cfg = &config.Config{}
	}
}

func newLogger() *logging.Logger {
	return logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	)
}
