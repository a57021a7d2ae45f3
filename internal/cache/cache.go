// Package cache holds finished translations keyed by their exact source text.
//
// Every pipeline keeps its own in-memory mirror hydrated once from the
// shared store. Writes go through to the store before Put returns; when two
// pipelines store the same source, the last write wins.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/abadojack/whatlanggo"

	"github.com/MimeLyc/live-caption-translator/internal/persistence"
	"github.com/MimeLyc/live-caption-translator/internal/stats"
)

type Store interface {
	Get(ctx context.Context, ns persistence.Namespace, keys ...string) (map[string]string, error)
	Set(ctx context.Context, ns persistence.Namespace, values map[string]string) error
	Apply(ctx context.Context, ops ...persistence.Op) error
}

type Entry struct {
	Source     string `json:"source"`
	Translated string `json:"translated"`
	// Language is the ISO 639-1 code detected for Source, empty when unknown.
	Language string `json:"language,omitempty"`
}

type Cache struct {
	store Store

	mu     sync.RWMutex
	mirror map[string]string
}

func New(store Store) *Cache {
	return &Cache{
		store:  store,
		mirror: make(map[string]string),
	}
}

// LoadAll replaces the mirror with the persisted entries.
func (c *Cache) LoadAll(ctx context.Context) (map[string]string, error) {
	values, err := c.store.Get(ctx, persistence.NamespaceCache)
	if err != nil {
		return nil, fmt.Errorf("load translation cache: %w", err)
	}

	c.mu.Lock()
	c.mirror = make(map[string]string, len(values))
	for source, translated := range values {
		c.mirror[source] = translated
	}
	c.mu.Unlock()

	return values, nil
}

func (c *Cache) Get(source string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	translated, ok := c.mirror[source]
	return translated, ok
}

// Put stores translated for source. Empty sources are ignored. The mirror
// only learns entries the store has accepted.
func (c *Cache) Put(ctx context.Context, source, translated string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil
	}

	if err := c.store.Set(ctx, persistence.NamespaceCache, map[string]string{source: translated}); err != nil {
		return fmt.Errorf("persist translation: %w", err)
	}

	c.mu.Lock()
	c.mirror[source] = translated
	c.mu.Unlock()
	return nil
}

// Clear empties the cache and resets the session counters in one transaction.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Apply(ctx, persistence.ClearOp(persistence.NamespaceCache), stats.ResetOp()); err != nil {
		return fmt.Errorf("clear translation cache: %w", err)
	}

	c.mu.Lock()
	c.mirror = make(map[string]string)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mirror)
}

// Entries returns the mirror sorted by source text.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.mirror))
	for source, translated := range c.mirror {
		entries = append(entries, Entry{Source: source, Translated: translated})
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Source < entries[j].Source })
	for i := range entries {
		entries[i].Language = detectLanguage(entries[i].Source)
	}
	return entries
}

func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
