package trainer

import (
	"errors"
	"fmt"
	"testing"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/storage"
)

// separableExamples builds a training set where category:promo predicts
// +1 and category:urgent predicts -1.
func separableExamples(n int) []*storage.LabeledExample {
	var out []*storage.LabeledExample
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, &storage.LabeledExample{
				ID:         fmt.Sprintf("ex-%d", i),
				Key:        fmt.Sprintf("msg-%d", i),
				Features:   []string{"category:promo", "contains:sale"},
				Label:      1,
				Confidence: 0.9,
			})
		} else {
			out = append(out, &storage.LabeledExample{
				ID:         fmt.Sprintf("ex-%d", i),
				Key:        fmt.Sprintf("msg-%d", i),
				Features:   []string{"category:urgent"},
				Label:      -1,
				Confidence: 0.9,
			})
		}
	}
	return out
}

func TestNewSelectsStrategy(t *testing.T) {
	tests := []struct {
		strategy string
		want     string
		wantErr  bool
	}{
		{"logistic", StrategyLogistic, false},
		{"", StrategyLogistic, false},
		{"stump", StrategyStump, false},
		{"forest", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			tr, err := New(config.PipelineConfig{Strategy: tt.strategy, MinExamples: 10})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tr.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", tr.Name(), tt.want)
			}
		})
	}
}

func TestFitRefusesBelowMinimum(t *testing.T) {
	for _, tr := range []Trainer{
		&Logistic{minExamples: 50},
		&Stump{minExamples: 50},
	} {
		t.Run(tr.Name(), func(t *testing.T) {
			_, err := tr.Fit(separableExamples(10))
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("Fit() error = %v, want ErrInsufficientData", err)
			}
		})
	}
}

func TestLogisticLearnsSeparableSet(t *testing.T) {
	tr := &Logistic{minExamples: 10}
	payload, err := tr.Fit(separableExamples(60))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if payload.Strategy != StrategyLogistic || payload.ExampleCount != 60 {
		t.Errorf("payload = %+v", payload)
	}
	promo := payload.FeatureWeights["category:promo"]
	urgent := payload.FeatureWeights["category:urgent"]
	if promo <= 0 {
		t.Errorf("weight[category:promo] = %v, want positive", promo)
	}
	if urgent >= 0 {
		t.Errorf("weight[category:urgent] = %v, want negative", urgent)
	}
	if promo <= urgent {
		t.Errorf("promo weight %v not above urgent weight %v", promo, urgent)
	}
}

func TestStumpPicksMostPredictiveFeature(t *testing.T) {
	tr := &Stump{minExamples: 10}
	payload, err := tr.Fit(separableExamples(60))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if payload.Strategy != StrategyStump {
		t.Errorf("strategy = %s", payload.Strategy)
	}
	if len(payload.FeatureWeights) != 1 {
		t.Fatalf("weights = %v, want exactly one feature", payload.FeatureWeights)
	}
	// category:promo and category:urgent are both perfect separators;
	// either is an acceptable pick, with the right polarity.
	if w, ok := payload.FeatureWeights["category:promo"]; ok && w != 1 {
		t.Errorf("weight[category:promo] = %v, want +1", w)
	}
	if w, ok := payload.FeatureWeights["category:urgent"]; ok && w != -1 {
		t.Errorf("weight[category:urgent] = %v, want -1", w)
	}
	if acc := payload.Thresholds["accuracy"]; acc < 0.99 {
		t.Errorf("accuracy = %v, want 1.0 on a separable set", acc)
	}
}

func TestConfidenceWeighting(t *testing.T) {
	// Two perfectly contradictory features; the one backed by gold
	// confidence should dominate the stump choice.
	var examples []*storage.LabeledExample
	for i := 0; i < 30; i++ {
		examples = append(examples, &storage.LabeledExample{
			ID:         fmt.Sprintf("gold-%d", i),
			Features:   []string{"list_id:deals"},
			Label:      1,
			Confidence: 1.0,
		})
		examples = append(examples, &storage.LabeledExample{
			ID:         fmt.Sprintf("weak-%d", i),
			Features:   []string{"list_id:deals"},
			Label:      -1,
			Confidence: 0.1,
		})
	}

	tr := &Stump{minExamples: 10}
	payload, err := tr.Fit(examples)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if w := payload.FeatureWeights["list_id:deals"]; w != 1 {
		t.Errorf("weight[list_id:deals] = %v, want +1 (gold outweighs weak feedback)", w)
	}
}
