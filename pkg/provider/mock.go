package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider is an in-memory Provider for tests and the "mock" runtime
// configuration. Entities and aggregates are seeded directly; failures can
// be scripted per entity to exercise partial-failure paths.
type MockProvider struct {
	mu sync.Mutex

	entities   map[string]*Entity
	aggregates map[string]*Aggregate

	// failGets and failExecs script errors for specific entity ids.
	failGets  map[string]error
	failExecs map[string]error

	// Executions records every successful ExecuteAction call in order.
	Executions []ExecutionRecord
}

// ExecutionRecord captures one ExecuteAction call against the mock.
type ExecutionRecord struct {
	EntityID string
	Action   string
	Params   map[string]any
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		entities:   make(map[string]*Entity),
		aggregates: make(map[string]*Aggregate),
		failGets:   make(map[string]error),
		failExecs:  make(map[string]error),
	}
}

// AddEntity seeds an entity.
func (m *MockProvider) AddEntity(e *Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = e
}

// AddAggregate seeds an aggregate for a (dimension, value) pair.
func (m *MockProvider) AddAggregate(dimension, value string, agg *Aggregate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregates[dimension+"/"+value] = agg
}

// FailGet scripts GetEntity to fail for an entity id.
func (m *MockProvider) FailGet(entityID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failGets[entityID] = err
}

// FailExecute scripts ExecuteAction to fail for an entity id.
func (m *MockProvider) FailExecute(entityID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failExecs[entityID] = err
}

// GetEntity implements Provider.
func (m *MockProvider) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failGets[entityID]; ok {
		return nil, &ProviderError{Provider: m.Name(), Op: "get_entity", EntityID: entityID, Err: err}
	}
	e, ok := m.entities[entityID]
	if !ok {
		return nil, &ProviderError{Provider: m.Name(), Op: "get_entity", EntityID: entityID, Err: ErrEntityNotFound}
	}
	return e, nil
}

// QueryDailyAggregate implements Provider.
func (m *MockProvider) QueryDailyAggregate(ctx context.Context, q AggregateQuery) (*Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.aggregates[q.Dimension+"/"+q.Value]
	if !ok {
		return &Aggregate{}, nil
	}
	return agg, nil
}

// ExecuteAction implements Provider.
func (m *MockProvider) ExecuteAction(ctx context.Context, entityID, action string, params map[string]any) (*ExecStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failExecs[entityID]; ok {
		return nil, &ProviderError{Provider: m.Name(), Op: "execute_action", EntityID: entityID, Err: err}
	}
	if _, ok := m.entities[entityID]; !ok {
		return nil, &ProviderError{Provider: m.Name(), Op: "execute_action", EntityID: entityID, Err: ErrEntityNotFound}
	}

	m.Executions = append(m.Executions, ExecutionRecord{
		EntityID: entityID,
		Action:   action,
		Params:   params,
	})

	return &ExecStats{RowsAffected: 1, Duration: time.Millisecond}, nil
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// ExecutionCount returns the number of successful executions recorded.
func (m *MockProvider) ExecutionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Executions)
}

// LastExecution returns the most recent execution record.
func (m *MockProvider) LastExecution() (ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Executions) == 0 {
		return ExecutionRecord{}, fmt.Errorf("no executions recorded")
	}
	return m.Executions[len(m.Executions)-1], nil
}
