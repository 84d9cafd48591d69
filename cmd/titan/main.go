// Command titan is the flowtitan CLI: compile and run a single DSL
// plan, watch a directory of plans for hot-reload, or print the health
// table of a short-lived demo supervisor.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowtitan/flowtitan/internal/config"
	"github.com/flowtitan/flowtitan/internal/logging"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "titan",
	Short: "flowtitan - an autonomous agent runtime",
	Long: `flowtitan compiles an indentation-sensitive plan DSL into a
control-flow graph and executes it under a supervised, autonomy-gated
orchestrator.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(level); err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "flowtitan.yaml", "Path to the flowtitan config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd, watchCmd, statusCmd)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
		os.Exit(1)
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
