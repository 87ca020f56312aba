package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider talks JSON over HTTP to the real ingestion/storage
// subsystem. Endpoint layout:
//
//	GET  {base}/entities/{id}
//	GET  {base}/aggregates?dimension=...&value=...&day=YYYY-MM-DD
//	POST {base}/entities/{id}/actions   {"action": ..., "params": {...}}
type HTTPProvider struct {
	name    string
	baseURL string
	client  *http.Client
}

// HTTPProviderConfig configures an HTTPProvider.
type HTTPProviderConfig struct {
	// Name is the provider name used in errors and logs.
	// Default: "http"
	Name string

	// BaseURL is the base URL of the provider API.
	BaseURL string

	// Timeout is the per-call timeout.
	// Default: 10s
	Timeout time.Duration
}

// NewHTTPProvider creates an HTTP provider.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &HTTPProvider{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// GetEntity implements Provider.
func (p *HTTPProvider) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	var entity Entity
	err := p.getJSON(ctx, p.baseURL+"/entities/"+url.PathEscape(entityID), &entity)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Op: "get_entity", EntityID: entityID, Err: err, Retryable: retryable(err)}
	}
	return &entity, nil
}

// QueryDailyAggregate implements Provider.
func (p *HTTPProvider) QueryDailyAggregate(ctx context.Context, q AggregateQuery) (*Aggregate, error) {
	params := url.Values{}
	params.Set("dimension", q.Dimension)
	params.Set("value", q.Value)
	params.Set("day", q.Day.UTC().Format("2006-01-02"))

	var agg Aggregate
	err := p.getJSON(ctx, p.baseURL+"/aggregates?"+params.Encode(), &agg)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Op: "query_aggregate", Err: err, Retryable: retryable(err)}
	}
	return &agg, nil
}

// ExecuteAction implements Provider.
func (p *HTTPProvider) ExecuteAction(ctx context.Context, entityID, action string, params map[string]any) (*ExecStats, error) {
	body, err := json.Marshal(map[string]any{
		"action": action,
		"params": params,
	})
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Op: "execute_action", EntityID: entityID,
			Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	endpoint := p.baseURL + "/entities/" + url.PathEscape(entityID) + "/actions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Op: "execute_action", EntityID: entityID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Op: "execute_action", EntityID: entityID, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := statusError(resp)
		return nil, &ProviderError{Provider: p.name, Op: "execute_action", EntityID: entityID,
			Err: statusErr, Retryable: retryable(statusErr)}
	}

	var stats ExecStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, &ProviderError{Provider: p.name, Op: "execute_action", EntityID: entityID,
			Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if stats.Duration == 0 {
		stats.Duration = time.Since(start)
	}
	return &stats, nil
}

// Name implements Provider.
func (p *HTTPProvider) Name() string {
	return p.name
}

// getJSON performs a GET and decodes the JSON response into out.
func (p *HTTPProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrEntityNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError summarizes a non-OK HTTP response, keeping a short body
// excerpt for diagnostics.
func statusError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &statusCodeError{code: resp.StatusCode, body: string(excerpt)}
}

// statusCodeError is a non-OK HTTP status carried through the error
// chain so retryability can be classified.
type statusCodeError struct {
	code int
	body string
}

func (e *statusCodeError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
	}
	return fmt.Sprintf("unexpected status %d", e.code)
}

// retryable classifies a request failure. Transport errors and server
// side statuses may succeed on retry; not-found and client errors will
// not.
func retryable(err error) bool {
	if errors.Is(err, ErrEntityNotFound) {
		return false
	}
	var sc *statusCodeError
	if errors.As(err, &sc) {
		return sc.code >= 500 || sc.code == http.StatusTooManyRequests
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
