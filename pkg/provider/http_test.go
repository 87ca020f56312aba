package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /entities/e1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Entity{
			ID:       "e1",
			Features: map[string]any{"category": "promo", "risk_score": 10.0},
		})
	})
	mux.HandleFunc("GET /aggregates", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dimension") != "sender_domain" {
			http.Error(w, "bad dimension", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Aggregate{Count: 120, Ratio: 0.7})
	})
	mux.HandleFunc("POST /entities/e1/actions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string         `json:"action"`
			Params map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Action == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(ExecStats{RowsAffected: 1, Duration: 5 * time.Millisecond})
	})
	mux.HandleFunc("POST /entities/broken/actions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(t *testing.T) *HTTPProvider {
	t.Helper()
	p, err := NewHTTPProvider(HTTPProviderConfig{BaseURL: newTestServer(t).URL})
	if err != nil {
		t.Fatalf("NewHTTPProvider() error = %v", err)
	}
	return p
}

func TestHTTPProviderGetEntity(t *testing.T) {
	p := newTestProvider(t)

	entity, err := p.GetEntity(context.Background(), "e1")
	if err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if entity.ID != "e1" {
		t.Errorf("ID = %q, want e1", entity.ID)
	}
	if entity.Features["category"] != "promo" {
		t.Errorf("category = %v, want promo", entity.Features["category"])
	}
}

func TestHTTPProviderGetEntityNotFound(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.GetEntity(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetEntity() returned nil error for missing entity")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("error chain does not include ErrEntityNotFound: %v", err)
	}
}

func TestHTTPProviderQueryDailyAggregate(t *testing.T) {
	p := newTestProvider(t)

	agg, err := p.QueryDailyAggregate(context.Background(), AggregateQuery{
		Dimension: "sender_domain",
		Value:     "deals.example.com",
		Day:       time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("QueryDailyAggregate() error = %v", err)
	}
	if agg.Count != 120 || agg.Ratio != 0.7 {
		t.Errorf("aggregate = %+v, want count 120 ratio 0.7", agg)
	}
}

func TestHTTPProviderExecuteAction(t *testing.T) {
	p := newTestProvider(t)

	stats, err := p.ExecuteAction(context.Background(), "e1", "archive", map[string]any{"folder": "old"})
	if err != nil {
		t.Fatalf("ExecuteAction() error = %v", err)
	}
	if stats.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", stats.RowsAffected)
	}
}

func TestHTTPProviderExecuteActionServerError(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.ExecuteAction(context.Background(), "broken", "archive", nil)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if perr.Op != "execute_action" {
		t.Errorf("Op = %q, want execute_action", perr.Op)
	}
}

func TestNewHTTPProviderValidation(t *testing.T) {
	if _, err := NewHTTPProvider(HTTPProviderConfig{}); err == nil {
		t.Error("NewHTTPProvider() accepted empty base URL")
	}
}

func TestMockProviderScriptedFailure(t *testing.T) {
	m := NewMockProvider()
	m.AddEntity(&Entity{ID: "e1", Features: map[string]any{}})
	m.FailExecute("e1", errors.New("imap timeout"))

	if _, err := m.ExecuteAction(context.Background(), "e1", "archive", nil); err == nil {
		t.Error("scripted failure did not fire")
	}
	if m.ExecutionCount() != 0 {
		t.Errorf("failed execution was recorded: count = %d", m.ExecutionCount())
	}
}
