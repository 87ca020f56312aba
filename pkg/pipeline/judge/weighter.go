package judge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/storage"
)

// Weighter recomputes judge reliability weights from verdict history.
//
// For each (agent, judge) pair, verdicts are joined to labeled examples
// by key and scored with an exponential half-life decay, so a judge that
// drifted recently is not propped up by months-old agreement. The
// persisted weight is agreement minus half the calibration error, where
// calibration error is the gap between the judge's mean stated
// confidence and its observed agreement.
type Weighter struct {
	store    storage.Store
	halfLife time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewWeighter creates a judge weighter.
func NewWeighter(store storage.Store, cfg config.PipelineConfig, logger *slog.Logger) *Weighter {
	if logger == nil {
		logger = slog.Default()
	}
	halfLife := cfg.JudgeHalfLife
	if halfLife == 0 {
		halfLife = 168 * time.Hour
	}
	return &Weighter{
		store:    store,
		halfLife: halfLife,
		now:      time.Now,
		logger:   logger.With("component", "pipeline.judge"),
	}
}

// Run recomputes and persists weights for every judge of the agent.
// Judges whose verdicts never match a labeled key are skipped; there is
// nothing to score them against yet.
func (w *Weighter) Run(ctx context.Context, agent string) ([]*storage.JudgeWeight, error) {
	verdicts, err := w.store.ListJudgeVerdicts(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list verdicts: %w", err)
	}
	examples, err := w.store.ListLabeledExamples(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("failed to list examples: %w", err)
	}

	truth := make(map[string]int, len(examples))
	for _, e := range examples {
		truth[e.Key] = e.Label
	}

	type tally struct {
		weightSum float64
		agreeSum  float64
		confSum   float64
		samples   int
	}
	tallies := make(map[string]*tally)

	now := w.now().UTC()
	for _, v := range verdicts {
		label, labeled := truth[v.Key]
		if !labeled {
			continue
		}

		decay := math.Pow(0.5, now.Sub(v.CreatedAt).Hours()/w.halfLife.Hours())
		t := tallies[v.JudgeID]
		if t == nil {
			t = &tally{}
			tallies[v.JudgeID] = t
		}
		t.weightSum += decay
		t.confSum += decay * v.Confidence
		if v.Label == label {
			t.agreeSum += decay
		}
		t.samples++
	}

	var out []*storage.JudgeWeight
	for judgeID, t := range tallies {
		if t.weightSum == 0 {
			continue
		}
		agreement := t.agreeSum / t.weightSum
		meanConfidence := t.confSum / t.weightSum
		calibration := math.Abs(meanConfidence - agreement)

		jw := &storage.JudgeWeight{
			Agent:            agent,
			JudgeID:          judgeID,
			Agreement:        agreement,
			CalibrationError: calibration,
			Weight:           agreement - 0.5*calibration,
			Samples:          t.samples,
		}
		if err := w.store.UpsertJudgeWeight(ctx, jw); err != nil {
			return out, fmt.Errorf("failed to persist weight for judge %q: %w", judgeID, err)
		}
		out = append(out, jw)
	}

	w.logger.Info("recomputed judge weights",
		"agent", agent,
		"judges", len(out),
		"verdicts", len(verdicts))
	return out, nil
}
