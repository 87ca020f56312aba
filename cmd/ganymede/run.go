package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pipeline"
	"mercator-hq/ganymede/pkg/policy/source"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/storage"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede engine",
	Long: `Start the Ganymede engine with the specified configuration.

The engine loads operator policies, opens the storage backend, serves
metrics and health on the admin address and schedules the nightly
active-learning pipeline.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override the admin listen address
  ganymede run --listen 0.0.0.0:9464

  # Validate config without starting
  ganymede run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override admin listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the engine")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Ganymede v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	fmt.Printf("✓ Storage opened (%s)\n", cfg.Storage.Backend)

	// Policies
	if cfg.Policy.Path != "" {
		policySource := source.NewFileSource(cfg.Policy.Path, logger)
		if err := loadPolicies(ctx, policySource, store); err != nil {
			return fmt.Errorf("failed to load policies: %w", err)
		}
		policies, _ := store.ListPolicies(ctx)
		fmt.Printf("✓ Policies loaded (%d policies)\n", len(policies))
	} else {
		logger.Warn("no policy path configured")
	}

	if cfg.Policy.Watch && cfg.Policy.Path != "" {
		policySource := source.NewFileSource(cfg.Policy.Path, logger)
		watcher, err := source.NewWatcher(cfg.Policy.Path, 0, logger)
		if err != nil {
			return fmt.Errorf("failed to watch policy path: %w", err)
		}
		defer watcher.Close()
		go func() {
			err := watcher.Watch(ctx, func() error {
				return loadPolicies(ctx, policySource, store)
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("policy watcher stopped", "error", err)
			}
		}()
		fmt.Println("✓ Policy hot reload enabled")
	}

	// Metrics
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	// Pipeline scheduler
	pipe, err := pipeline.New(store, cfg.Pipeline, collector, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	scheduler := pipeline.NewScheduler(pipe, cfg.Pipeline.Schedule, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()
	if next := scheduler.NextRun(); !next.IsZero() {
		fmt.Printf("✓ Pipeline scheduled (next run %s)\n", next.Format("2006-01-02 15:04:05"))
	}

	// Admin server
	srv := server.NewServer(&cfg.Server, collector.Handler(), logger)
	srv.AddHealthCheck("storage", func(ctx context.Context) error {
		_, err := store.ListPolicies(ctx)
		return err
	})

	fmt.Printf("✓ Admin server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Engine stopped")
	return nil
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return storage.NewSQLiteStore(storage.SQLiteConfig{
			DBPath:           cfg.Storage.DBPath,
			BusyTimeout:      cfg.Storage.BusyTimeout,
			SnapshotInterval: cfg.Storage.SnapshotInterval,
		})
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// loadPolicies reads the policy path and upserts every policy into the
// store, making the set visible to proposers.
func loadPolicies(ctx context.Context, src *source.FileSource, store storage.Store) error {
	policies, err := src.LoadPolicies()
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := store.UpsertPolicy(ctx, p); err != nil {
			return fmt.Errorf("failed to store policy %s: %w", p.ID, err)
		}
	}
	return nil
}
