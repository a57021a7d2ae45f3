package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/live-caption-translator/internal/cache"
	"github.com/MimeLyc/live-caption-translator/internal/display"
	"github.com/MimeLyc/live-caption-translator/internal/persistence"
	"github.com/MimeLyc/live-caption-translator/internal/protocol"
	"github.com/MimeLyc/live-caption-translator/internal/stats"
)

type fakeChannel struct {
	mu       sync.Mutex
	requests []string
	pushes   chan protocol.Push
	hasKey   bool
	// respond builds the pushes sent after a request is acknowledged;
	// nil leaves delivery to the test.
	respond func(text string) []protocol.Push
}

func newFakeChannel(respond func(string) []protocol.Push) *fakeChannel {
	return &fakeChannel{pushes: make(chan protocol.Push, 16), hasKey: true, respond: respond}
}

func (f *fakeChannel) RequestTranslate(_ context.Context, text string) (protocol.Ack, error) {
	f.mu.Lock()
	f.requests = append(f.requests, text)
	f.mu.Unlock()
	if f.respond != nil {
		for _, push := range f.respond(text) {
			f.pushes <- push
		}
	}
	return protocol.Ack{Status: protocol.StatusProcessing}, nil
}

func (f *fakeChannel) HasAPIKey(context.Context) (bool, error) { return f.hasKey, nil }
func (f *fakeChannel) Pushes() <-chan protocol.Push            { return f.pushes }
func (f *fakeChannel) Close() error                            { return nil }

func (f *fakeChannel) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

type sliceSource []string

func (s sliceSource) Samples(ctx context.Context) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		for _, sample := range s {
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type recorder struct {
	mu    sync.Mutex
	views []display.View
}

func (r *recorder) Render(v display.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, v := range r.views {
		if v.Visible {
			out = append(out, v.Text)
		}
	}
	return out
}

type fixture struct {
	store    *persistence.SQLiteStore
	cache    *cache.Cache
	counters *stats.Counters
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{
		store:    store,
		cache:    cache.New(store),
		counters: stats.NewCounters(store),
		rec:      &recorder{},
	}
}

func (f *fixture) pipeline(t *testing.T, ch *fakeChannel) *Pipeline {
	machine := display.NewMachine(f.rec, time.Hour)
	t.Cleanup(machine.Close)
	return New(ch, f.cache, f.counters, machine, true)
}

func translateAll(text string) []protocol.Push {
	translations := map[string]string{"Hello": "こんにちは", "World": "世界"}
	return []protocol.Push{protocol.TranslationPush(text, translations[text])}
}

func runWithTimeout(t *testing.T, p *Pipeline, src sliceSource) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx, src))
}

func TestPipeline_TranslatesAndCachesNewCaption(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel(translateAll)

	runWithTimeout(t, f.pipeline(t, ch), sliceSource{"Hello"})

	assert.Equal(t, []string{"Hello"}, ch.sent())
	assert.Equal(t, []string{"翻訳中...", "こんにちは"}, f.rec.texts())

	got, ok := f.cache.Get("Hello")
	require.True(t, ok)
	assert.Equal(t, "こんにちは", got)
	persisted, err := f.store.Get(context.Background(), persistence.NamespaceCache, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", persisted["Hello"])

	snap, err := f.counters.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.Snapshot{}, snap, "provider calls are counted by the coordinator")
}

func TestPipeline_RepeatedSamplesRequestOnce(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel(translateAll)

	runWithTimeout(t, f.pipeline(t, ch), sliceSource{"Hello", "Hello", " Hello ", "Hello"})

	assert.Equal(t, []string{"Hello"}, ch.sent())
}

func TestPipeline_CacheHitSkipsProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, persistence.NamespaceCache, map[string]string{"Hello": "こんにちは"}))
	ch := newFakeChannel(translateAll)

	runWithTimeout(t, f.pipeline(t, ch), sliceSource{"Hello", "", "Hello"})

	assert.Empty(t, ch.sent())
	assert.Equal(t, []string{"こんにちは", "こんにちは"}, f.rec.texts())

	snap, err := f.counters.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Snapshot{CacheCount: 2}, snap)
}

func TestPipeline_MissingKeyShowsErrorAndCachesNothing(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel(func(text string) []protocol.Push {
		return []protocol.Push{protocol.ErrorPush(text, protocol.ErrMissingCredential, protocol.MissingCredentialMessage)}
	})
	ch.hasKey = false

	runWithTimeout(t, f.pipeline(t, ch), sliceSource{"Hello"})

	texts := f.rec.texts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "エラー: APIキーが設定されていません", texts[len(texts)-1])
	assert.Zero(t, f.cache.Len())
	count, err := f.store.Count(context.Background(), persistence.NamespaceCache)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipeline_StaleResultIsCachedButNotShown(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel(nil)
	p := f.pipeline(t, ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, sliceSource{"Hello", "World"}) }()

	require.Eventually(t, func() bool { return len(ch.sent()) == 2 }, 2*time.Second, 5*time.Millisecond)

	ch.pushes <- protocol.TranslationPush("Hello", "こんにちは")
	ch.pushes <- protocol.TranslationPush("World", "世界")
	require.NoError(t, <-done)

	assert.NotContains(t, f.rec.texts(), "こんにちは")
	assert.Equal(t, "世界", f.rec.texts()[len(f.rec.texts())-1])

	_, ok := f.cache.Get("Hello")
	assert.True(t, ok, "stale translation still lands in the cache")
	_, ok = f.cache.Get("World")
	assert.True(t, ok)
}

func TestPipeline_ToggleOffHidesOverlay(t *testing.T) {
	f := newFixture(t)
	ch := newFakeChannel(nil)
	p := f.pipeline(t, ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, sliceSource{"Hello"}) }()

	require.Eventually(t, func() bool { return len(ch.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ch.pushes <- protocol.TogglePush(false)
	require.NoError(t, <-done)

	f.rec.mu.Lock()
	last := f.rec.views[len(f.rec.views)-1]
	f.rec.mu.Unlock()
	assert.False(t, last.Visible)
	assert.Nil(t, p.State().InFlight)
}
