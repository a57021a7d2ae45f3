package stats

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/live-caption-translator/internal/persistence"
)

func newTestCounters(t *testing.T) (*Counters, *persistence.SQLiteStore) {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewCounters(store), store
}

func TestCounters_StartAtZero(t *testing.T) {
	counters, _ := newTestCounters(t)
	snap, err := counters.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, snap)
}

func TestCounters_IncrementAndPersist(t *testing.T) {
	counters, store := newTestCounters(t)
	ctx := context.Background()

	_, err := counters.IncSession(ctx)
	require.NoError(t, err)
	_, err = counters.IncSession(ctx)
	require.NoError(t, err)
	snap, err := counters.IncCacheHit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{SessionCount: 2, CacheCount: 1}, snap)

	values, err := store.Get(ctx, persistence.NamespaceSettings, StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionCount":2,"cacheCount":1}`, values[StorageKey])

	reloaded, err := NewCounters(store).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, reloaded)
}

func TestCounters_Reset(t *testing.T) {
	counters, _ := newTestCounters(t)
	ctx := context.Background()

	_, err := counters.IncCacheHit(ctx)
	require.NoError(t, err)
	require.NoError(t, counters.Reset(ctx))

	snap, err := counters.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, snap)
}

func TestCounters_SeparateInstancesShareOneCount(t *testing.T) {
	first, store := newTestCounters(t)
	second := NewCounters(store)
	ctx := context.Background()

	const perInstance = 30
	var wg sync.WaitGroup
	for _, counters := range []*Counters{first, second} {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range perInstance {
				_, err := counters.IncSession(ctx)
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for range perInstance {
				_, err := counters.IncCacheHit(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snap, err := NewCounters(store).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Snapshot{SessionCount: 2 * perInstance, CacheCount: 2 * perInstance}, snap)
}
