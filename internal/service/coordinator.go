// Package service hosts the coordinator: it accepts translate requests from
// caption pipelines, calls the provider and pushes results back.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MimeLyc/live-caption-translator/internal/cache"
	"github.com/MimeLyc/live-caption-translator/internal/config"
	"github.com/MimeLyc/live-caption-translator/internal/jobs"
	"github.com/MimeLyc/live-caption-translator/internal/llm"
	"github.com/MimeLyc/live-caption-translator/internal/persistence"
	"github.com/MimeLyc/live-caption-translator/internal/protocol"
	"github.com/MimeLyc/live-caption-translator/internal/stats"
	"github.com/MimeLyc/live-caption-translator/internal/translator"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

// TranslatorFactory builds a provider client for the key read on each request.
type TranslatorFactory func(apiKey string) (translator.Translator, error)

// ChangeFeed publishes committed store writes.
type ChangeFeed interface {
	Subscribe() (<-chan persistence.Change, func())
}

type Coordinator struct {
	settings      *config.RuntimeSettingsStore
	feed          ChangeFeed
	cache         *cache.Cache
	counters      *stats.Counters
	queue         *jobs.Queue
	hub           *protocol.Hub
	newTranslator TranslatorFactory
	logger        *log.Logger

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewCoordinator(
	settings *config.RuntimeSettingsStore,
	feed ChangeFeed,
	c *cache.Cache,
	counters *stats.Counters,
	queue *jobs.Queue,
	newTranslator TranslatorFactory,
) *Coordinator {
	return &Coordinator{
		settings:      settings,
		feed:          feed,
		cache:         c,
		counters:      counters,
		queue:         queue,
		hub:           protocol.NewHub(),
		newTranslator: newTranslator,
		logger:        log.Named("coordinator"),
	}
}

// Start launches the worker pool.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		c.queue.Start(c.execute, c.deliver)
	})
}

func (c *Coordinator) Stop() {
	c.stopOnce.Do(c.queue.Stop)
}

// RequestTranslate acknowledges immediately; the outcome is pushed to clientID.
func (c *Coordinator) RequestTranslate(ctx context.Context, clientID string, text string) (protocol.Ack, error) {
	text = strings.TrimSpace(text)
	if clientID == "" {
		return protocol.Ack{}, protocol.NewError(protocol.ErrValidation, "client id is required")
	}
	if text == "" {
		return protocol.Ack{}, protocol.NewError(protocol.ErrValidation, "caption text is empty").
			WithContext("client", clientID)
	}

	job, created := c.queue.Enqueue(jobs.EnqueueRequest{ClientID: clientID, Text: text})
	if created {
		c.logger.Debug("Queued %s for %s: %s", job.ID, clientID, text)
	} else {
		c.logger.Debug("Attached %s to outstanding %s", clientID, job.ID)
	}
	return protocol.Ack{Status: protocol.StatusProcessing}, nil
}

func (c *Coordinator) HasAPIKey(ctx context.Context) (bool, error) {
	key, err := c.settings.APIKey(ctx)
	if err != nil {
		return false, protocol.WrapError(err, protocol.ErrStorage, "read settings")
	}
	return key != "", nil
}

func (c *Coordinator) Subscribe(clientID string) (<-chan protocol.Push, func()) {
	return c.hub.Subscribe(clientID)
}

func (c *Coordinator) execute(ctx context.Context, job *jobs.TranslationJob) (string, error) {
	apiKey, err := c.settings.APIKey(ctx)
	if err != nil {
		return "", protocol.WrapError(err, protocol.ErrStorage, "read settings")
	}
	if apiKey == "" {
		return "", protocol.MissingCredential()
	}

	tr, err := c.newTranslator(apiKey)
	if err != nil {
		return "", protocol.WrapError(err, protocol.ErrTransportFailure, "create provider client")
	}

	translated, err := tr.Translate(ctx, job.Text)
	if err != nil {
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			err = statusErr
		}
		return "", protocol.WrapError(err, protocol.ErrTransportFailure, "provider call failed")
	}
	return translated, nil
}

func (c *Coordinator) deliver(job *jobs.TranslationJob) {
	if job == nil {
		return
	}

	var push protocol.Push
	if job.Status == jobs.StatusSuccess {
		push = protocol.TranslationPush(job.Text, job.Result)
		c.logger.Info("Translated %q for %d client(s)", job.Text, len(job.Subscribers))
		// One provider call, one session, however many clients share the job.
		if _, err := c.counters.IncSession(context.Background()); err != nil {
			c.logger.Error("Failed to count translation: %v", err)
		}
	} else {
		push = protocol.ErrorPush(job.Text, protocol.KindOf(job.Cause), protocol.UserMessage(job.Cause))
		c.logger.Warn("Translation of %q failed: %v", job.Text, job.Cause)
	}

	for _, clientID := range job.Subscribers {
		c.hub.Send(clientID, push)
	}
}

// Run broadcasts a toggle push whenever the enabled setting changes, until
// ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	changes, unsubscribe := c.feed.Subscribe()
	defer unsubscribe()

	current, err := c.settings.Get(ctx)
	if err != nil {
		return err
	}
	enabled := current.Enabled

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Namespace != persistence.NamespaceSettings || !change.Touches(config.KeyEnabled) {
				continue
			}
			next, err := c.settings.Get(ctx)
			if err != nil {
				c.logger.Error("Failed to read settings after change: %v", err)
				continue
			}
			if next.Enabled == enabled {
				continue
			}
			enabled = next.Enabled
			c.logger.Info("Translation %s, notifying %d client(s)", enabledWord(enabled), c.hub.Clients())
			c.hub.Broadcast(protocol.TogglePush(enabled))
		}
	}
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
