package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pipeline"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

var pipelineFlags struct {
	agent string
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the active-learning pipeline once",
	Long: `Run the active-learning pipeline immediately, outside its schedule.

Each configured agent's decisions are folded into the training set, a
candidate bundle is trained and proposed when enough new examples exist,
judge weights are refreshed, the review queue is resampled and the
canary guard evaluates any canary in flight.

Examples:
  # Run for all configured agents
  ganymede pipeline

  # Run for a single agent
  ganymede pipeline --agent email-triage`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().StringVar(&pipelineFlags.agent, "agent", "", "run for a single agent only")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	slog.SetDefault(logger)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	pipe, err := pipeline.New(store, cfg.Pipeline, collector, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	ctx := context.Background()
	agents := cfg.Pipeline.Agents
	if pipelineFlags.agent != "" {
		agents = []string{pipelineFlags.agent}
	}
	if len(agents) == 0 {
		return fmt.Errorf("no agents configured")
	}

	for _, agent := range agents {
		result, err := pipe.Run(ctx, agent)
		if err != nil {
			return fmt.Errorf("pipeline failed for agent %s: %w", agent, err)
		}

		fmt.Printf("✓ %s: %d examples ingested, %d total\n", agent, result.Ingested, result.Examples)
		if result.BundleID != "" {
			fmt.Printf("  candidate bundle %s proposed\n", result.BundleID)
			if result.Diff != "" {
				fmt.Print(indent(result.Diff))
			}
		}
		fmt.Printf("  %d judges reweighted, %d predictions queued for review, guard: %s\n",
			result.JudgeWeights, result.Queued, result.GuardDecision)
	}
	return nil
}

func indent(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
