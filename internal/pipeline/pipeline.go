// Package pipeline runs one caption pipeline: source samples go through the
// change detector and the dispatcher, and the resulting effects drive the
// display, the cache, the counters and the protocol channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/MimeLyc/live-caption-translator/internal/cache"
	"github.com/MimeLyc/live-caption-translator/internal/caption"
	"github.com/MimeLyc/live-caption-translator/internal/dispatch"
	"github.com/MimeLyc/live-caption-translator/internal/display"
	"github.com/MimeLyc/live-caption-translator/internal/protocol"
	"github.com/MimeLyc/live-caption-translator/internal/stats"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

type Pipeline struct {
	channel  protocol.Channel
	cache    *cache.Cache
	counters *stats.Counters
	display  *display.Machine
	logger   *log.Logger

	state    dispatch.State
	detector *caption.Detector
	results  chan dispatch.Event
}

func New(channel protocol.Channel, c *cache.Cache, counters *stats.Counters, machine *display.Machine, enabled bool) *Pipeline {
	p := &Pipeline{
		channel:  channel,
		cache:    c,
		counters: counters,
		display:  machine,
		logger:   log.Named("pipeline"),
		state:    dispatch.NewState(enabled),
		results:  make(chan dispatch.Event, 8),
	}
	p.detector = caption.NewDetector(func() bool { return p.state.Busy() })
	return p
}

// Run processes source until ctx is cancelled, or until the source ends and
// the last outstanding translation has settled.
func (p *Pipeline) Run(ctx context.Context, source caption.Source) error {
	entries, err := p.cache.LoadAll(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("Loaded %d cached translations", len(entries))

	if ok, err := p.channel.HasAPIKey(ctx); err != nil {
		p.logger.Warn("API key check failed: %v", err)
	} else if !ok {
		p.logger.Warn("API key is not configured, translations will fail")
	}

	samples, err := source.Samples(ctx)
	if err != nil {
		return fmt.Errorf("start caption source: %w", err)
	}
	pushes := p.channel.Pushes()

	for {
		if samples == nil && p.state.InFlight == nil {
			return nil
		}

		// Detection is suspended while a request waits for its ack.
		in := samples
		if p.state.Busy() {
			in = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case sample, ok := <-in:
			if !ok {
				samples = nil
				continue
			}
			p.observe(ctx, sample)

		case push, ok := <-pushes:
			if !ok {
				return protocol.NewError(protocol.ErrChannelFailure, "push stream closed")
			}
			p.handlePush(ctx, push)

		case ev := <-p.results:
			p.step(ctx, ev)
		}
	}
}

// State returns the dispatcher state; only safe to call from tests after Run returned.
func (p *Pipeline) State() dispatch.State {
	return p.state
}

func (p *Pipeline) observe(ctx context.Context, sample string) {
	ev, ok := p.detector.Observe(sample)
	if !ok {
		return
	}
	switch ev.Kind {
	case caption.EventCleared:
		p.step(ctx, dispatch.CaptionCleared{})
	case caption.EventChanged:
		cached, hit := p.cache.Get(ev.Text)
		p.logger.Debug("Caption changed (cached=%t): %s", hit, ev.Text)
		p.step(ctx, dispatch.CaptionChanged{Text: ev.Text, Cached: cached, Hit: hit})
	}
}

func (p *Pipeline) handlePush(ctx context.Context, push protocol.Push) {
	switch push.Kind {
	case protocol.PushTranslation:
		p.step(ctx, dispatch.TranslationSucceeded{For: push.OriginalText, Translated: push.TranslatedText})
	case protocol.PushError:
		p.step(ctx, dispatch.TranslationFailed{For: push.OriginalText, Message: push.Error})
	case protocol.PushToggle:
		if push.Enabled == nil {
			return
		}
		p.detector.Reset()
		p.logger.Info("Translation toggled, enabled=%t", *push.Enabled)
		p.step(ctx, dispatch.Toggled{Enabled: *push.Enabled})
	default:
		p.logger.Warn("Ignoring unknown push %q", push.Kind)
	}
}

func (p *Pipeline) step(ctx context.Context, ev dispatch.Event) {
	var effects []dispatch.Effect
	p.state, effects = dispatch.Reduce(p.state, ev)
	for _, effect := range effects {
		p.apply(ctx, effect)
	}
}

func (p *Pipeline) apply(ctx context.Context, effect dispatch.Effect) {
	switch e := effect.(type) {
	case dispatch.ShowIdle:
		p.display.Idle()
	case dispatch.ShowLoading:
		p.display.Loading()
	case dispatch.ShowTranslation:
		p.display.Show(e.Text)
	case dispatch.ShowError:
		p.display.Fail(e.Message)
	case dispatch.SendRequest:
		go p.send(ctx, e.Text)
	case dispatch.StoreTranslation:
		if err := p.cache.Put(ctx, e.Source, e.Translated); err != nil {
			p.logger.Error("Failed to cache translation: %v", err)
		}
	case dispatch.CountCacheHit:
		if _, err := p.counters.IncCacheHit(ctx); err != nil {
			p.logger.Error("Failed to count cache hit: %v", err)
		}
	}
}

func (p *Pipeline) send(ctx context.Context, text string) {
	var ev dispatch.Event = dispatch.RequestAcked{For: text}
	if _, err := p.channel.RequestTranslate(ctx, text); err != nil {
		p.logger.Warn("Translate request failed: %v", err)
		ev = dispatch.DispatchFailed{For: text, Err: errors.New(protocol.UserMessage(channelError(err)))}
	}
	select {
	case p.results <- ev:
	case <-ctx.Done():
	}
}

func channelError(err error) error {
	if protocol.KindOf(err) == protocol.ErrTransportFailure {
		return protocol.WrapError(err, protocol.ErrChannelFailure, "request not delivered")
	}
	return err
}
