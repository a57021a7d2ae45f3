// Package stats keeps the session counters shown on the statistics surface.
package stats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MimeLyc/live-caption-translator/internal/persistence"
)

// StorageKey is the settings key the counters are persisted under.
const StorageKey = "translationStats"

// Snapshot counts provider translations (SessionCount) and cache hits (CacheCount).
type Snapshot struct {
	SessionCount int `json:"sessionCount"`
	CacheCount   int `json:"cacheCount"`
}

type Store interface {
	Get(ctx context.Context, ns persistence.Namespace, keys ...string) (map[string]string, error)
	Set(ctx context.Context, ns persistence.Namespace, values map[string]string) error
	IncrementJSON(ctx context.Context, ns persistence.Namespace, key, field string, delta int) (string, error)
}

// Counters increments the persisted snapshot in the store itself, so any
// number of Counters over one database never lose a count. Counts only grow
// until Reset.
type Counters struct {
	store Store
}

func NewCounters(store Store) *Counters {
	return &Counters{store: store}
}

func (c *Counters) Get(ctx context.Context) (Snapshot, error) {
	return c.load(ctx)
}

func (c *Counters) IncSession(ctx context.Context) (Snapshot, error) {
	return c.increment(ctx, "sessionCount")
}

func (c *Counters) IncCacheHit(ctx context.Context) (Snapshot, error) {
	return c.increment(ctx, "cacheCount")
}

func (c *Counters) Reset(ctx context.Context) error {
	return c.store.Set(ctx, persistence.NamespaceSettings, ResetOp().Values)
}

// ResetOp zeroes the counters as part of a larger atomic batch.
func ResetOp() persistence.Op {
	return persistence.SetOp(persistence.NamespaceSettings, map[string]string{
		StorageKey: encode(Snapshot{}),
	})
}

func (c *Counters) increment(ctx context.Context, field string) (Snapshot, error) {
	raw, err := c.store.IncrementJSON(ctx, persistence.NamespaceSettings, StorageKey, field, 1)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save counters: %w", err)
	}
	return decode(raw)
}

func (c *Counters) load(ctx context.Context) (Snapshot, error) {
	values, err := c.store.Get(ctx, persistence.NamespaceSettings, StorageKey)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load counters: %w", err)
	}
	return decode(values[StorageKey])
}

func decode(raw string) (Snapshot, error) {
	if raw == "" {
		return Snapshot{}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode counters: %w", err)
	}
	if snap.SessionCount < 0 {
		snap.SessionCount = 0
	}
	if snap.CacheCount < 0 {
		snap.CacheCount = 0
	}
	return snap, nil
}

func encode(s Snapshot) string {
	data, _ := json.Marshal(s)
	return string(data)
}
