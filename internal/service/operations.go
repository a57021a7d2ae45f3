package service

import (
	"context"
	"time"

	"github.com/MimeLyc/live-caption-translator/internal/cache"
	"github.com/MimeLyc/live-caption-translator/internal/config"
	"github.com/MimeLyc/live-caption-translator/internal/protocol"
	"github.com/MimeLyc/live-caption-translator/internal/stats"
)

type SettingsView struct {
	HasAPIKey    bool   `json:"hasApiKey"`
	MaskedAPIKey string `json:"apiKey,omitempty"`
	Enabled      bool   `json:"enabled"`
	Status       string `json:"status"`
}

type StatsReport struct {
	stats.Snapshot
	CachedTranslations int       `json:"cachedTranslations"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

type StatusReport struct {
	Status             string `json:"status"`
	HasAPIKey          bool   `json:"hasApiKey"`
	Enabled            bool   `json:"enabled"`
	ConnectedClients   int    `json:"connectedClients"`
	OutstandingJobs    int    `json:"outstandingJobs"`
	CachedTranslations int    `json:"cachedTranslations"`
}

func newSettingsView(s config.RuntimeSettings) SettingsView {
	return SettingsView{
		HasAPIKey:    s.APIKey != "",
		MaskedAPIKey: s.MaskedAPIKey(),
		Enabled:      s.Enabled,
		Status:       s.StatusText(),
	}
}

func (c *Coordinator) Settings(ctx context.Context) (SettingsView, error) {
	s, err := c.settings.Get(ctx)
	if err != nil {
		return SettingsView{}, protocol.WrapError(err, protocol.ErrStorage, "read settings")
	}
	return newSettingsView(s), nil
}

func (c *Coordinator) UpdateSettings(ctx context.Context, u config.SettingsUpdate) (SettingsView, error) {
	if err := u.Validate(); err != nil {
		return SettingsView{}, protocol.WrapError(err, protocol.ErrValidation, "invalid settings")
	}
	s, err := c.settings.Update(ctx, u)
	if err != nil {
		return SettingsView{}, protocol.WrapError(err, protocol.ErrStorage, "save settings")
	}
	return newSettingsView(s), nil
}

// Stats reloads the cache from the store since pipelines write to it directly.
func (c *Coordinator) Stats(ctx context.Context) (StatsReport, error) {
	snap, err := c.counters.Get(ctx)
	if err != nil {
		return StatsReport{}, protocol.WrapError(err, protocol.ErrStorage, "read counters")
	}
	entries, err := c.cache.LoadAll(ctx)
	if err != nil {
		return StatsReport{}, protocol.WrapError(err, protocol.ErrStorage, "read cache")
	}
	return StatsReport{
		Snapshot:           snap,
		CachedTranslations: len(entries),
		GeneratedAt:        time.Now(),
	}, nil
}

func (c *Coordinator) CacheEntries(ctx context.Context) ([]cache.Entry, error) {
	if _, err := c.cache.LoadAll(ctx); err != nil {
		return nil, protocol.WrapError(err, protocol.ErrStorage, "read cache")
	}
	return c.cache.Entries(), nil
}

// ClearCache removes every cached translation and resets the counters.
func (c *Coordinator) ClearCache(ctx context.Context) error {
	if err := c.cache.Clear(ctx); err != nil {
		return protocol.WrapError(err, protocol.ErrStorage, "clear cache")
	}
	c.logger.Info("Translation cache cleared")
	return nil
}

func (c *Coordinator) Status(ctx context.Context) (StatusReport, error) {
	s, err := c.settings.Get(ctx)
	if err != nil {
		return StatusReport{}, protocol.WrapError(err, protocol.ErrStorage, "read settings")
	}
	entries, err := c.cache.LoadAll(ctx)
	if err != nil {
		return StatusReport{}, protocol.WrapError(err, protocol.ErrStorage, "read cache")
	}
	return StatusReport{
		Status:             s.StatusText(),
		HasAPIKey:          s.APIKey != "",
		Enabled:            s.Enabled,
		ConnectedClients:   c.hub.Clients(),
		OutstandingJobs:    c.queue.Outstanding(),
		CachedTranslations: len(entries),
	}, nil
}
