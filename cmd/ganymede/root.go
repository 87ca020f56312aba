package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - policy-driven action engine with human approval",
	Long: `Ganymede delegates low-risk repetitive decisions to operator-authored
policies while keeping humans in the approval loop.

It provides:
  - Policy evaluation with per-user confidence estimation
  - Proposed actions with rationale, approved or rejected by humans
  - An online learner that adapts per-user feature weights
  - A nightly active-learning pipeline with canary-gated promotion
  - Budgeted execution with an absolute dry-run gate`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
