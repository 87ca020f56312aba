package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/policy/source"
	"mercator-hq/ganymede/pkg/telemetry/logging"
)

var validateFlags struct {
	policyPath string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and policy files",
	Long: `Validate the configuration file and the policy files it references.

Checks configuration field ranges, the cron schedule, and every policy's
condition tree. Exits non-zero on the first problem found.

Examples:
  # Validate the default config and its policies
  ganymede validate

  # Validate a specific policy path
  ganymede validate --policies ./policies/`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.policyPath, "policies", "", "override policy file or directory")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)

	path := cfg.Policy.Path
	if validateFlags.policyPath != "" {
		path = validateFlags.policyPath
	}
	if path == "" {
		fmt.Println("  (no policy path configured, skipping policy validation)")
		return nil
	}

	logger, err := logging.New(cfg.Telemetry.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	policies, err := source.NewFileSource(path, logger).LoadPolicies()
	if err != nil {
		return fmt.Errorf("policies invalid: %w", err)
	}
	fmt.Printf("✓ Policies valid: %s (%d policies)\n", path, len(policies))

	for _, p := range policies {
		status := "enabled"
		if !p.Enabled {
			status = "disabled"
		}
		fmt.Printf("  - %s (%s, priority %d, action %s, threshold %.2f)\n",
			p.ID, status, p.Priority, p.Action, p.ConfidenceThreshold)
	}
	return nil
}
