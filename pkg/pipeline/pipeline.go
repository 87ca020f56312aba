package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pipeline/bundle"
	"mercator-hq/ganymede/pkg/pipeline/feed"
	"mercator-hq/ganymede/pkg/pipeline/guard"
	"mercator-hq/ganymede/pkg/pipeline/judge"
	"mercator-hq/ganymede/pkg/pipeline/sampler"
	"mercator-hq/ganymede/pkg/pipeline/trainer"
	"mercator-hq/ganymede/pkg/storage"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Stage names, as reported in stage duration metrics.
const (
	stageFeed   = "feed"
	stageTrain  = "train"
	stageBundle = "bundle"
	stageJudge  = "judge"
	stageSample = "sample"
	stageGuard  = "guard"
)

// Result summarizes one pipeline run for a single agent.
type Result struct {
	// Agent is the agent this run processed.
	Agent string

	// Ingested is the number of new labeled examples loaded from
	// decisions.
	Ingested int

	// Examples is the training set size after ingestion.
	Examples int64

	// BundleID is the id of the proposed candidate bundle, empty when
	// no bundle was produced this run.
	BundleID string

	// Diff describes the candidate payload against the active one.
	Diff string

	// JudgeWeights is the number of judges reweighted.
	JudgeWeights int

	// Queued is the review queue size after sampling.
	Queued int

	// GuardDecision is what the guard did with the canary.
	GuardDecision guard.Decision
}

// Pipeline runs the active-learning stages for the configured agents.
type Pipeline struct {
	store       storage.Store
	loader      *feed.Loader
	trainer     trainer.Trainer
	bundles     *bundle.Manager
	weighter    *judge.Weighter
	sampler     *sampler.Sampler
	guard       *guard.Guard
	agents      []string
	minExamples int
	collector   *metrics.Collector
	logger      *slog.Logger
}

// New wires the pipeline stages from configuration. collector may be nil
// when metrics are not wired.
func New(store storage.Store, cfg config.PipelineConfig, collector *metrics.Collector, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tr, err := trainer.New(cfg)
	if err != nil {
		return nil, err
	}
	smp, err := sampler.NewSampler(store, cfg, collector, logger)
	if err != nil {
		return nil, err
	}
	bundles := bundle.NewManager(store, cfg.InitialCanaryPercent, collector, logger)
	quality := guard.NewStoreQuality(store, bundles)

	return &Pipeline{
		store:       store,
		loader:      feed.NewLoader(store, cfg, logger),
		trainer:     tr,
		bundles:     bundles,
		weighter:    judge.NewWeighter(store, cfg, logger),
		sampler:     smp,
		guard:       guard.NewGuard(bundles, quality, cfg, logger),
		agents:      cfg.Agents,
		minExamples: cfg.MinExamples,
		collector:   collector,
		logger:      logger.With("component", "pipeline"),
	}, nil
}

// Bundles exposes the bundle manager the pipeline operates on.
func (p *Pipeline) Bundles() *bundle.Manager {
	return p.bundles
}

// RunAll runs the pipeline for every configured agent. A failing agent
// does not stop the others; the first error is returned after all agents
// ran.
func (p *Pipeline) RunAll(ctx context.Context) error {
	var firstErr error
	for _, agent := range p.agents {
		result, err := p.Run(ctx, agent)
		if err != nil {
			p.logger.Error("pipeline run failed", "agent", agent, "error", err)
			if p.collector != nil {
				p.collector.RecordPipelineRun(agent, "error")
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("pipeline failed for agent %s: %w", agent, err)
			}
			continue
		}
		if p.collector != nil {
			p.collector.RecordPipelineRun(agent, "success")
		}
		p.logger.Info("pipeline run complete",
			"agent", agent,
			"ingested", result.Ingested,
			"examples", result.Examples,
			"bundle_id", result.BundleID,
			"queued", result.Queued,
			"guard_decision", result.GuardDecision)
	}
	return firstErr
}

// Run executes all stages for a single agent.
func (p *Pipeline) Run(ctx context.Context, agent string) (*Result, error) {
	result := &Result{Agent: agent, GuardDecision: guard.DecisionNone}

	start := time.Now()
	ingested, err := p.loader.LoadDecisions(ctx, agent)
	p.observeStage(stageFeed, start)
	if err != nil {
		return nil, fmt.Errorf("feed stage: %w", err)
	}
	result.Ingested = ingested
	if p.collector != nil && ingested > 0 {
		p.collector.RecordIngested(string(storage.SourceApproval), ingested)
	}

	start = time.Now()
	payload, count, err := p.train(ctx, agent)
	p.observeStage(stageTrain, start)
	if err != nil {
		return nil, fmt.Errorf("train stage: %w", err)
	}
	result.Examples = count

	start = time.Now()
	if payload != nil {
		bundleID, diff, err := p.propose(ctx, agent, payload)
		if err != nil {
			p.observeStage(stageBundle, start)
			return nil, fmt.Errorf("bundle stage: %w", err)
		}
		result.BundleID = bundleID
		result.Diff = diff
	}
	p.observeStage(stageBundle, start)

	start = time.Now()
	weights, err := p.weighter.Run(ctx, agent)
	p.observeStage(stageJudge, start)
	if err != nil {
		return nil, fmt.Errorf("judge stage: %w", err)
	}
	result.JudgeWeights = len(weights)

	start = time.Now()
	predictions, err := p.sampler.Collect(ctx, agent)
	if err != nil {
		p.observeStage(stageSample, start)
		return nil, fmt.Errorf("sample stage: %w", err)
	}
	queued, err := p.sampler.Run(ctx, agent, predictions)
	p.observeStage(stageSample, start)
	if err != nil {
		return nil, fmt.Errorf("sample stage: %w", err)
	}
	result.Queued = len(queued)

	start = time.Now()
	decision, err := p.guard.Run(ctx, agent)
	p.observeStage(stageGuard, start)
	if err != nil {
		return nil, fmt.Errorf("guard stage: %w", err)
	}
	result.GuardDecision = decision

	return result, nil
}

// train fits a candidate payload from the agent's labeled examples. A
// training set below the minimum, or one that has not grown since the
// last produced bundle, yields a nil payload and no error.
func (p *Pipeline) train(ctx context.Context, agent string) (*bundle.Payload, int64, error) {
	examples, err := p.store.ListLabeledExamples(ctx, agent)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list examples: %w", err)
	}
	count := int64(len(examples))

	if len(examples) < p.minExamples {
		p.logger.Info("training set below minimum, skipping training",
			"agent", agent,
			"examples", count,
			"min_examples", p.minExamples)
		return nil, count, nil
	}

	// One candidate at a time. While a canary is out, training waits
	// for the guard to settle it.
	if canary, err := p.bundles.Canary(ctx, agent); err != nil {
		return nil, count, err
	} else if canary != nil {
		p.logger.Info("canary in flight, skipping training",
			"agent", agent,
			"bundle_id", canary.ID)
		return nil, count, nil
	}

	last, err := p.lastTrained(ctx, agent)
	if err != nil {
		return nil, count, err
	}
	if last == len(examples) {
		p.logger.Info("no new examples since last candidate, skipping training",
			"agent", agent,
			"examples", count)
		return nil, count, nil
	}

	payload, err := p.trainer.Fit(examples)
	if errors.Is(err, trainer.ErrInsufficientData) {
		p.logger.Info("trainer declined the training set",
			"agent", agent,
			"examples", count)
		return nil, count, nil
	}
	if err != nil {
		return nil, count, fmt.Errorf("training failed: %w", err)
	}
	return payload, count, nil
}

// propose creates the candidate bundle and queues it for approval.
func (p *Pipeline) propose(ctx context.Context, agent string, payload *bundle.Payload) (string, string, error) {
	var current *bundle.Payload
	if active, err := p.bundles.Active(ctx, agent); err != nil {
		return "", "", err
	} else if active != nil {
		current = active.Payload
	}
	diff := bundle.Diff(current, payload)

	b, err := p.bundles.Create(ctx, agent, payload)
	if err != nil {
		return "", "", err
	}
	if err := p.bundles.Propose(ctx, agent, b.ID); err != nil {
		return "", "", err
	}
	if err := p.setLastTrained(ctx, agent, payload.ExampleCount); err != nil {
		return "", "", err
	}

	p.logger.Info("proposed candidate bundle",
		"agent", agent,
		"bundle_id", b.ID,
		"strategy", payload.Strategy,
		"examples", payload.ExampleCount,
		"diff", diff)
	return b.ID, diff, nil
}

// lastTrainedKey is the KV key holding the size of the training set the
// most recent candidate bundle was fitted on. It makes reruns over
// unchanged data no-ops.
const lastTrainedKey = "last_trained"

func (p *Pipeline) lastTrained(ctx context.Context, agent string) (int, error) {
	entry, err := p.store.GetKV(ctx, agent, lastTrainedKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last trained marker: %w", err)
	}
	n, err := strconv.Atoi(string(entry.Value))
	if err != nil {
		return 0, fmt.Errorf("malformed last trained marker: %w", err)
	}
	return n, nil
}

func (p *Pipeline) setLastTrained(ctx context.Context, agent string, count int) error {
	var version int64
	if entry, err := p.store.GetKV(ctx, agent, lastTrainedKey); err == nil {
		version = entry.Version
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to read last trained marker: %w", err)
	}
	if _, err := p.store.PutKV(ctx, agent, lastTrainedKey, []byte(strconv.Itoa(count)), version); err != nil {
		return fmt.Errorf("failed to write last trained marker: %w", err)
	}
	return nil
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.collector != nil {
		p.collector.RecordPipelineStage(stage, time.Since(start))
	}
}
