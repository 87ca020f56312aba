package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/policy/engine"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
// All state is lost on Close.
type MemoryStore struct {
	mu sync.RWMutex

	policies    map[string]*engine.Policy
	proposals   map[string]*ProposedAction
	audit       []*AuditAction
	weights     map[string]map[string]float64 // user -> feature -> weight
	stats       map[string]*PolicyStats       // policyID/userID
	examples    map[string]*LabeledExample    // source/sourceID
	verdicts    []*JudgeVerdict
	judges      map[string]*JudgeWeight // agent/judgeID
	reviewQueue map[string][]*ReviewItem
	kv          map[string]*KVEntry // agent/key
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies:    make(map[string]*engine.Policy),
		proposals:   make(map[string]*ProposedAction),
		weights:     make(map[string]map[string]float64),
		stats:       make(map[string]*PolicyStats),
		examples:    make(map[string]*LabeledExample),
		judges:      make(map[string]*JudgeWeight),
		reviewQueue: make(map[string][]*ReviewItem),
		kv:          make(map[string]*KVEntry),
	}
}

// UpsertPolicy implements Store.
func (s *MemoryStore) UpsertPolicy(ctx context.Context, p *engine.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.policies[p.ID] = &cp
	return nil
}

// GetPolicy implements Store.
func (s *MemoryStore) GetPolicy(ctx context.Context, id string) (*engine.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPolicies implements Store.
func (s *MemoryStore) ListPolicies(ctx context.Context) ([]*engine.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*engine.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		cp := *p
		out = append(out, &cp)
	}
	engine.SortPolicies(out)
	return out, nil
}

// CreateProposal implements Store.
func (s *MemoryStore) CreateProposal(ctx context.Context, p *ProposedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.proposals[p.ID] = &cp
	return nil
}

// GetProposal implements Store.
func (s *MemoryStore) GetProposal(ctx context.Context, id string) (*ProposedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// HasActiveProposal implements Store.
func (s *MemoryStore) HasActiveProposal(ctx context.Context, entityID, policyID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.proposals {
		if p.EntityID == entityID && p.PolicyID == policyID &&
			(p.Status == StatusPending || p.Status == StatusApproved) {
			return true, nil
		}
	}
	return false, nil
}

// TransitionProposal implements Store.
func (s *MemoryStore) TransitionProposal(ctx context.Context, id string, from, to ProposalStatus, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return ErrNotFound
	}
	// The status check and the write happen under one lock: this is the
	// memory backend's equivalent of the SQL conditional update.
	if p.Status != from {
		return ErrConflict
	}
	p.Status = to
	p.DecidedBy = actor
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ListProposals implements Store.
func (s *MemoryStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]*ProposedAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ProposedAction
	for _, p := range s.proposals {
		if filter.Agent != "" && p.Agent != filter.Agent {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// AppendAudit implements Store.
func (s *MemoryStore) AppendAudit(ctx context.Context, a *AuditAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.audit = append(s.audit, &cp)
	return nil
}

// ListAudit implements Store.
func (s *MemoryStore) ListAudit(ctx context.Context, entityID string, limit int) ([]*AuditAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*AuditAction
	for i := len(s.audit) - 1; i >= 0; i-- {
		a := s.audit[i]
		if entityID != "" && a.EntityID != entityID {
			continue
		}
		cp := *a
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// AddUserWeight implements Store.
func (s *MemoryStore) AddUserWeight(ctx context.Context, userID, feature string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.weights[userID] == nil {
		s.weights[userID] = make(map[string]float64)
	}
	s.weights[userID][feature] += delta
	return nil
}

// GetUserWeights implements Store.
func (s *MemoryStore) GetUserWeights(ctx context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.weights[userID]))
	for f, w := range s.weights[userID] {
		out[f] = w
	}
	return out, nil
}

// BumpPolicyStats implements Store.
func (s *MemoryStore) BumpPolicyStats(ctx context.Context, policyID, userID string, dFired, dApproved, dRejected int64, windowDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := policyID + "/" + userID
	st, ok := s.stats[key]
	if !ok {
		st = &PolicyStats{PolicyID: policyID, UserID: userID}
		s.stats[key] = st
	}
	st.Fired += dFired
	st.Approved += dApproved
	st.Rejected += dRejected
	st.WindowDays = windowDays
	st.Precision, st.Recall = deriveRates(st.Fired, st.Approved, st.Rejected)
	st.UpdatedAt = time.Now().UTC()
	return nil
}

// GetPolicyStats implements Store.
func (s *MemoryStore) GetPolicyStats(ctx context.Context, policyID, userID string) (*PolicyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[policyID+"/"+userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// ListPolicyStats implements Store.
func (s *MemoryStore) ListPolicyStats(ctx context.Context, userID string) ([]*PolicyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PolicyStats
	for _, st := range s.stats {
		if st.UserID != userID {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out, nil
}

// UpsertLabeledExample implements Store.
func (s *MemoryStore) UpsertLabeledExample(ctx context.Context, e *LabeledExample) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(e.Source) + "/" + e.SourceID
	if _, exists := s.examples[key]; exists {
		return false, nil
	}
	cp := *e
	s.examples[key] = &cp
	return true, nil
}

// ListLabeledExamples implements Store.
func (s *MemoryStore) ListLabeledExamples(ctx context.Context, agent string) ([]*LabeledExample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*LabeledExample
	for _, e := range s.examples {
		if e.Agent != agent {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountLabeledExamples implements Store.
func (s *MemoryStore) CountLabeledExamples(ctx context.Context, agent string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.examples {
		if e.Agent == agent {
			n++
		}
	}
	return n, nil
}

// LabeledKeys implements Store.
func (s *MemoryStore) LabeledKeys(ctx context.Context, agent string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for _, e := range s.examples {
		if e.Agent == agent {
			out[e.Key] = true
		}
	}
	return out, nil
}

// AddJudgeVerdict implements Store.
func (s *MemoryStore) AddJudgeVerdict(ctx context.Context, v *JudgeVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.verdicts = append(s.verdicts, &cp)
	return nil
}

// ListJudgeVerdicts implements Store.
func (s *MemoryStore) ListJudgeVerdicts(ctx context.Context, agent string) ([]*JudgeVerdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*JudgeVerdict
	for _, v := range s.verdicts {
		if v.Agent != agent {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

// UpsertJudgeWeight implements Store.
func (s *MemoryStore) UpsertJudgeWeight(ctx context.Context, w *JudgeWeight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.judges[w.Agent+"/"+w.JudgeID] = &cp
	return nil
}

// ListJudgeWeights implements Store.
func (s *MemoryStore) ListJudgeWeights(ctx context.Context, agent string) ([]*JudgeWeight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*JudgeWeight
	for _, w := range s.judges {
		if w.Agent != agent {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JudgeID < out[j].JudgeID })
	return out, nil
}

// ReplaceReviewQueue implements Store.
func (s *MemoryStore) ReplaceReviewQueue(ctx context.Context, agent string, items []*ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*ReviewItem, len(items))
	for i, item := range items {
		c := *item
		cp[i] = &c
	}
	s.reviewQueue[agent] = cp
	return nil
}

// ListReviewQueue implements Store.
func (s *MemoryStore) ListReviewQueue(ctx context.Context, agent string) ([]*ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.reviewQueue[agent]
	out := make([]*ReviewItem, len(items))
	for i, item := range items {
		c := *item
		out[i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// GetKV implements Store.
func (s *MemoryStore) GetKV(ctx context.Context, agent, key string) (*KVEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.kv[agent+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	cp.Value = append([]byte(nil), e.Value...)
	return &cp, nil
}

// PutKV implements Store.
func (s *MemoryStore) PutKV(ctx context.Context, agent, key string, value []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapKey := agent + "/" + key
	existing, ok := s.kv[mapKey]
	current := int64(0)
	if ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return 0, ErrVersionConflict
	}

	s.kv[mapKey] = &KVEntry{
		Agent:     agent,
		Key:       key,
		Value:     append([]byte(nil), value...),
		Version:   current + 1,
		UpdatedAt: time.Now().UTC(),
	}
	return current + 1, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// deriveRates computes precision (approved/fired) and the best-effort
// recall estimate (share of human decisions that were approvals).
func deriveRates(fired, approved, rejected int64) (precision, recall float64) {
	if fired > 0 {
		precision = float64(approved) / float64(fired)
	}
	if approved+rejected > 0 {
		recall = float64(approved) / float64(approved+rejected)
	}
	return precision, recall
}
