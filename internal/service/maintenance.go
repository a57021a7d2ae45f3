package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/live-caption-translator/internal/stats"
	"github.com/MimeLyc/live-caption-translator/pkg/icron"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

type Maintainer interface {
	Maintain(ctx context.Context) error
}

type CacheLoader interface {
	LoadAll(ctx context.Context) (map[string]string, error)
}

type MaintenanceReport struct {
	RanAt              time.Time      `json:"ranAt"`
	Duration           time.Duration  `json:"duration"`
	CachedTranslations int            `json:"cachedTranslations"`
	Stats              stats.Snapshot `json:"stats"`
}

type MaintenanceStatus struct {
	Schedule *icron.TriggerInfo `json:"schedule"`
	LastRun  *MaintenanceReport `json:"lastRun,omitempty"`
}

// Maintenance checkpoints and optimizes the store on a schedule and on demand.
// Overlapping runs share one execution.
type Maintenance struct {
	store    Maintainer
	cache    CacheLoader
	counters *stats.Counters
	cronExpr string

	group singleflight.Group

	mu   sync.Mutex
	last *MaintenanceReport
}

func NewMaintenance(store Maintainer, c CacheLoader, counters *stats.Counters, cronExpr string) *Maintenance {
	return &Maintenance{
		store:    store,
		cache:    c,
		counters: counters,
		cronExpr: cronExpr,
	}
}

func (m *Maintenance) Schedule(ctx context.Context, c *cron.Cron) error {
	_, err := c.AddFunc(m.cronExpr, func() {
		if _, err := m.Run(ctx); err != nil {
			log.Error("Scheduled maintenance failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	return nil
}

func (m *Maintenance) Run(ctx context.Context) (MaintenanceReport, error) {
	v, err, shared := m.group.Do("maintenance", func() (any, error) {
		return m.run(ctx)
	})
	if err != nil {
		return MaintenanceReport{}, err
	}
	if shared {
		log.Debug("Maintenance request joined a run in progress")
	}
	return v.(MaintenanceReport), nil
}

func (m *Maintenance) run(ctx context.Context) (MaintenanceReport, error) {
	start := time.Now()
	log.Info("Run store maintenance")

	if err := m.store.Maintain(ctx); err != nil {
		return MaintenanceReport{}, err
	}
	entries, err := m.cache.LoadAll(ctx)
	if err != nil {
		return MaintenanceReport{}, err
	}
	snap, err := m.counters.Get(ctx)
	if err != nil {
		return MaintenanceReport{}, err
	}

	report := MaintenanceReport{
		RanAt:              start,
		Duration:           time.Since(start),
		CachedTranslations: len(entries),
		Stats:              snap,
	}
	log.Info("Maintenance done in %v: %d cached translations, %d translated, %d cache hits",
		report.Duration, report.CachedTranslations, snap.SessionCount, snap.CacheCount)

	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()
	return report, nil
}

func (m *Maintenance) Status(now time.Time) (MaintenanceStatus, error) {
	info, err := icron.GetTriggerInfo(m.cronExpr, now)
	if err != nil {
		return MaintenanceStatus{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	status := MaintenanceStatus{Schedule: info}
	if m.last != nil {
		last := *m.last
		status.LastRun = &last
	}
	return status, nil
}
