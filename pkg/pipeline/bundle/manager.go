package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/storage"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Pointer keys in the versioned KV table. Pointer values are bundle ids;
// bundle bodies live under "bundle/<id>".
const (
	keyActive = "active"
	keyBackup = "backup"
	keyCanary = "canary"
)

// ErrNoBackup indicates a rollback was requested but no backup pointer
// exists for the agent.
var ErrNoBackup = errors.New("no backup bundle to roll back to")

// Manager drives the bundle lifecycle for all agents. Every pointer
// switch is an optimistic-concurrency transaction; losing a race
// surfaces as storage.ErrVersionConflict and nothing is half-applied.
type Manager struct {
	store                storage.Store
	initialCanaryPercent int
	collector            *metrics.Collector
	logger               *slog.Logger
}

// NewManager creates a bundle manager. collector may be nil when metrics
// are not wired.
func NewManager(store storage.Store, initialCanaryPercent int, collector *metrics.Collector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if initialCanaryPercent <= 0 {
		initialCanaryPercent = 10
	}
	return &Manager{
		store:                store,
		initialCanaryPercent: initialCanaryPercent,
		collector:            collector,
		logger:               logger.With("component", "bundle.manager"),
	}
}

// Create persists a new bundle in the created state and returns it.
func (m *Manager) Create(ctx context.Context, agent string, payload *Payload) (*Bundle, error) {
	now := time.Now().UTC()
	b := &Bundle{
		ID:        uuid.New().String(),
		Agent:     agent,
		Status:    StatusCreated,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.putBundle(ctx, b, 0); err != nil {
		return nil, err
	}

	if m.collector != nil {
		m.collector.RecordBundleTransition(agent, "created")
	}
	m.logger.Info("created bundle",
		"agent", agent,
		"bundle_id", b.ID,
		"strategy", payload.Strategy,
		"examples", payload.ExampleCount)
	return b, nil
}

// Propose moves a created bundle to proposed, queueing it for human
// approval.
func (m *Manager) Propose(ctx context.Context, agent, bundleID string) error {
	return m.transition(ctx, agent, bundleID, StatusCreated, StatusProposed)
}

// Approve records the human approval of a proposed bundle.
func (m *Manager) Approve(ctx context.Context, agent, bundleID string) error {
	return m.transition(ctx, agent, bundleID, StatusProposed, StatusApproved)
}

// Apply installs an approved bundle as the canary. The current active
// pointer is snapshotted into backup first, so a later rollback always
// has a target.
func (m *Manager) Apply(ctx context.Context, agent, bundleID string) error {
	b, _, err := m.getBundle(ctx, agent, bundleID)
	if err != nil {
		return err
	}
	if b.Status != StatusApproved {
		return fmt.Errorf("bundle %s is %s, only approved bundles can be applied", bundleID, b.Status)
	}

	activeID, err := m.pointer(ctx, agent, keyActive)
	if err != nil {
		return err
	}
	if activeID != "" {
		if err := m.setPointer(ctx, agent, keyBackup, activeID); err != nil {
			return fmt.Errorf("failed to snapshot active into backup: %w", err)
		}
	}
	if err := m.setPointer(ctx, agent, keyCanary, bundleID); err != nil {
		return fmt.Errorf("failed to install canary pointer: %w", err)
	}

	b.Status = StatusCanary
	b.CanaryPercent = m.initialCanaryPercent
	if err := m.updateBundle(ctx, b); err != nil {
		return err
	}

	if m.collector != nil {
		m.collector.RecordBundleTransition(agent, "canary")
		m.collector.UpdateCanaryPercent(agent, b.CanaryPercent)
	}
	m.logger.Info("applied bundle as canary",
		"agent", agent,
		"bundle_id", bundleID,
		"canary_percent", b.CanaryPercent,
		"backup", activeID)
	return nil
}

// SetCanaryPercent updates the canary traffic share of the current
// canary bundle.
func (m *Manager) SetCanaryPercent(ctx context.Context, agent string, percent int) error {
	canaryID, err := m.pointer(ctx, agent, keyCanary)
	if err != nil {
		return err
	}
	if canaryID == "" {
		return fmt.Errorf("agent %q has no canary bundle", agent)
	}

	b, _, err := m.getBundle(ctx, agent, canaryID)
	if err != nil {
		return err
	}
	b.CanaryPercent = percent
	if err := m.updateBundle(ctx, b); err != nil {
		return err
	}

	if m.collector != nil {
		m.collector.UpdateCanaryPercent(agent, percent)
	}
	m.logger.Info("stepped canary",
		"agent", agent,
		"bundle_id", canaryID,
		"canary_percent", percent)
	return nil
}

// Promote makes the current canary the active bundle. The outgoing
// active pointer is snapshotted into backup.
func (m *Manager) Promote(ctx context.Context, agent string) error {
	canaryID, err := m.pointer(ctx, agent, keyCanary)
	if err != nil {
		return err
	}
	if canaryID == "" {
		return fmt.Errorf("agent %q has no canary bundle", agent)
	}

	activeID, err := m.pointer(ctx, agent, keyActive)
	if err != nil {
		return err
	}
	if activeID != "" {
		if err := m.setPointer(ctx, agent, keyBackup, activeID); err != nil {
			return fmt.Errorf("failed to snapshot active into backup: %w", err)
		}
		if old, _, err := m.getBundle(ctx, agent, activeID); err == nil {
			old.Status = StatusRetired
			if err := m.updateBundle(ctx, old); err != nil {
				return err
			}
		}
	}

	if err := m.setPointer(ctx, agent, keyActive, canaryID); err != nil {
		return fmt.Errorf("failed to promote canary: %w", err)
	}
	if err := m.setPointer(ctx, agent, keyCanary, ""); err != nil {
		return fmt.Errorf("failed to clear canary pointer: %w", err)
	}

	b, _, err := m.getBundle(ctx, agent, canaryID)
	if err != nil {
		return err
	}
	b.Status = StatusActive
	b.CanaryPercent = 100
	if err := m.updateBundle(ctx, b); err != nil {
		return err
	}

	if m.collector != nil {
		m.collector.RecordBundleTransition(agent, "promoted")
		m.collector.UpdateCanaryPercent(agent, 0)
	}
	m.logger.Info("promoted canary to active",
		"agent", agent,
		"bundle_id", canaryID)
	return nil
}

// Rollback restores the backup bundle into active, retires the canary if
// one is installed, and appends an audit record with the given reason.
func (m *Manager) Rollback(ctx context.Context, agent, actor, reason string) error {
	backupID, err := m.pointer(ctx, agent, keyBackup)
	if err != nil {
		return err
	}
	if backupID == "" {
		return ErrNoBackup
	}

	canaryID, err := m.pointer(ctx, agent, keyCanary)
	if err != nil {
		return err
	}
	if canaryID != "" {
		if c, _, err := m.getBundle(ctx, agent, canaryID); err == nil {
			c.Status = StatusRetired
			c.CanaryPercent = 0
			if err := m.updateBundle(ctx, c); err != nil {
				return err
			}
		}
		if err := m.setPointer(ctx, agent, keyCanary, ""); err != nil {
			return fmt.Errorf("failed to clear canary pointer: %w", err)
		}
	}

	if err := m.setPointer(ctx, agent, keyActive, backupID); err != nil {
		return fmt.Errorf("failed to restore backup into active: %w", err)
	}

	if b, _, err := m.getBundle(ctx, agent, backupID); err == nil {
		b.Status = StatusActive
		if err := m.updateBundle(ctx, b); err != nil {
			return err
		}
	}

	err = m.store.AppendAudit(ctx, &storage.AuditAction{
		ID:          uuid.New().String(),
		EntityID:    "agent/" + agent,
		Action:      "bundle_rollback",
		Outcome:     storage.OutcomeNoop,
		Actor:       actor,
		EvidenceRef: backupID,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to audit rollback: %w", err)
	}

	if m.collector != nil {
		m.collector.RecordBundleTransition(agent, "rolled_back")
		m.collector.UpdateCanaryPercent(agent, 0)
	}
	m.logger.Warn("rolled back to backup bundle",
		"agent", agent,
		"bundle_id", backupID,
		"reason", reason)
	return nil
}

// Active returns the agent's active bundle, or nil when none is
// installed.
func (m *Manager) Active(ctx context.Context, agent string) (*Bundle, error) {
	return m.pointee(ctx, agent, keyActive)
}

// Canary returns the agent's canary bundle, or nil when none is
// installed.
func (m *Manager) Canary(ctx context.Context, agent string) (*Bundle, error) {
	return m.pointee(ctx, agent, keyCanary)
}

// Get returns a bundle by id.
func (m *Manager) Get(ctx context.Context, agent, bundleID string) (*Bundle, error) {
	b, _, err := m.getBundle(ctx, agent, bundleID)
	return b, err
}

func (m *Manager) pointee(ctx context.Context, agent, key string) (*Bundle, error) {
	id, err := m.pointer(ctx, agent, key)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	b, _, err := m.getBundle(ctx, agent, id)
	return b, err
}

func (m *Manager) transition(ctx context.Context, agent, bundleID string, from, to Status) error {
	b, _, err := m.getBundle(ctx, agent, bundleID)
	if err != nil {
		return err
	}
	if b.Status != from {
		return fmt.Errorf("bundle %s is %s, expected %s", bundleID, b.Status, from)
	}
	b.Status = to
	if err := m.updateBundle(ctx, b); err != nil {
		return err
	}
	m.logger.Info("bundle transitioned",
		"agent", agent,
		"bundle_id", bundleID,
		"status", to)
	return nil
}

func bundleKey(id string) string {
	return "bundle/" + id
}

func (m *Manager) getBundle(ctx context.Context, agent, id string) (*Bundle, int64, error) {
	entry, err := m.store.GetKV(ctx, agent, bundleKey(id))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load bundle %s: %w", id, err)
	}
	var b Bundle
	if err := json.Unmarshal(entry.Value, &b); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bundle %s: %w", id, err)
	}
	return &b, entry.Version, nil
}

func (m *Manager) putBundle(ctx context.Context, b *Bundle, expectedVersion int64) error {
	b.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if _, err := m.store.PutKV(ctx, b.Agent, bundleKey(b.ID), data, expectedVersion); err != nil {
		return fmt.Errorf("failed to store bundle %s: %w", b.ID, err)
	}
	return nil
}

// updateBundle rewrites a bundle at its current version. A concurrent
// writer surfaces as storage.ErrVersionConflict.
func (m *Manager) updateBundle(ctx context.Context, b *Bundle) error {
	entry, err := m.store.GetKV(ctx, b.Agent, bundleKey(b.ID))
	if err != nil {
		return fmt.Errorf("failed to load bundle %s for update: %w", b.ID, err)
	}
	return m.putBundle(ctx, b, entry.Version)
}

// pointer reads a pointer key; a missing key reads as empty.
func (m *Manager) pointer(ctx context.Context, agent, key string) (string, error) {
	entry, err := m.store.GetKV(ctx, agent, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s pointer: %w", key, err)
	}
	return string(entry.Value), nil
}

// setPointer writes a pointer key at its current version, creating it if
// missing.
func (m *Manager) setPointer(ctx context.Context, agent, key, value string) error {
	var version int64
	entry, err := m.store.GetKV(ctx, agent, key)
	if err == nil {
		version = entry.Version
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to read %s pointer: %w", key, err)
	}
	if _, err := m.store.PutKV(ctx, agent, key, []byte(value), version); err != nil {
		return fmt.Errorf("failed to write %s pointer: %w", key, err)
	}
	return nil
}
