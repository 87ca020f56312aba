package guard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mercator-hq/ganymede/pkg/pipeline/bundle"
	"mercator-hq/ganymede/pkg/storage"
)

// qualityKeyPrefix is the KV prefix under which live quality
// measurements are published, one key per bundle id.
const qualityKeyPrefix = "quality/"

// StoreQuality reads bundle quality from the versioned KV. Operators or
// an offline evaluation job publish measurements under
// "quality/<bundle-id>"; when no measurement exists the bundle's trained
// accuracy threshold is used, and a bundle with neither scores zero.
type StoreQuality struct {
	store   storage.Store
	manager *bundle.Manager
}

// NewStoreQuality creates a StoreQuality.
func NewStoreQuality(store storage.Store, manager *bundle.Manager) *StoreQuality {
	return &StoreQuality{store: store, manager: manager}
}

// Quality implements QualitySource.
func (q *StoreQuality) Quality(ctx context.Context, agent, bundleID string) (float64, error) {
	entry, err := q.store.GetKV(ctx, agent, qualityKeyPrefix+bundleID)
	if err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(string(entry.Value)), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed quality measurement for bundle %s: %w", bundleID, err)
		}
		return v, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("failed to read quality for bundle %s: %w", bundleID, err)
	}

	b, err := q.manager.Get(ctx, agent, bundleID)
	if err != nil {
		return 0, err
	}
	if b.Payload != nil {
		return b.Payload.Thresholds["accuracy"], nil
	}
	return 0, nil
}

// Publish records a quality measurement for a bundle, overwriting any
// previous one.
func (q *StoreQuality) Publish(ctx context.Context, agent, bundleID string, quality float64) error {
	key := qualityKeyPrefix + bundleID
	var version int64
	if entry, err := q.store.GetKV(ctx, agent, key); err == nil {
		version = entry.Version
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to read quality for bundle %s: %w", bundleID, err)
	}
	value := strconv.FormatFloat(quality, 'g', -1, 64)
	if _, err := q.store.PutKV(ctx, agent, key, []byte(value), version); err != nil {
		return fmt.Errorf("failed to publish quality for bundle %s: %w", bundleID, err)
	}
	return nil
}
