package caption

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/live-caption-translator/internal/subtitle"
)

func TestDetector_ReportsChangesOnce(t *testing.T) {
	d := NewDetector(nil)

	ev, ok := d.Observe("  Hello ")
	require.True(t, ok)
	assert.Equal(t, Event{Kind: EventChanged, Text: "Hello"}, ev)

	_, ok = d.Observe("Hello")
	assert.False(t, ok, "unchanged caption must not be reported twice")

	ev, ok = d.Observe("World")
	require.True(t, ok)
	assert.Equal(t, "World", ev.Text)
}

func TestDetector_ClearedOnlyAfterCaption(t *testing.T) {
	d := NewDetector(nil)

	_, ok := d.Observe("")
	assert.False(t, ok)

	d.Observe("Hello")
	ev, ok := d.Observe("   ")
	require.True(t, ok)
	assert.Equal(t, EventCleared, ev.Kind)

	_, ok = d.Observe("")
	assert.False(t, ok)

	ev, ok = d.Observe("Hello")
	require.True(t, ok, "caption reappearing after a clear is a change")
	assert.Equal(t, "Hello", ev.Text)
}

func TestDetector_BusyGuardSuppressesWithoutAdvancing(t *testing.T) {
	busy := true
	d := NewDetector(func() bool { return busy })

	_, ok := d.Observe("Hello")
	assert.False(t, ok)
	assert.Empty(t, d.Last())

	busy = false
	ev, ok := d.Observe("Hello")
	require.True(t, ok)
	assert.Equal(t, "Hello", ev.Text)
}

func TestDetector_Reset(t *testing.T) {
	d := NewDetector(nil)
	d.Observe("Hello")
	d.Reset()
	_, ok := d.Observe("Hello")
	assert.True(t, ok)
}

func TestExtractor_FirstMatchingSelectorWins(t *testing.T) {
	page := `<html><body>
<div class="transcript-cue-container"><span>from transcript</span></div>
<div data-purpose="captions-cue-text">  Hello  </div>
</body></html>`

	text, err := NewExtractor().Extract(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestExtractor_PrefixSelectorAndEmptyFallthrough(t *testing.T) {
	page := `<div class="captions-display--captions-container--x1"> </div>
<div class="well--container--abc">Good morning</div>`

	text, err := NewExtractor().Extract(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Good morning", text)
}

func TestExtractor_NoCaption(t *testing.T) {
	text, err := NewExtractor().Extract(strings.NewReader("<p>nothing here</p>"))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPageSource_PollsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<div data-purpose="captions-cue-text">Hello</div>`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	samples, err := NewPageSource(path, 10*time.Millisecond, nil).Samples(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello", <-samples)

	require.NoError(t, os.WriteFile(path, []byte(`<div data-purpose="captions-cue-text">World</div>`), 0o644))
	require.Eventually(t, func() bool { return <-samples == "World" }, 2*time.Second, 10*time.Millisecond)
}

func TestPageSource_MissingFile(t *testing.T) {
	_, err := NewPageSource(filepath.Join(t.TempDir(), "missing.html"), 0, nil).Samples(context.Background())
	require.Error(t, err)
}

func TestPageSource_PollsURL(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		fmt.Fprintf(w, `<div class="captions-display--captions-container">line %d</div>`, n)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	samples, err := NewPageSource(server.URL, 10*time.Millisecond, nil).Samples(ctx)
	require.NoError(t, err)
	assert.Equal(t, "line 1", <-samples)
	assert.Equal(t, "line 2", <-samples)
}

func TestLineSource_EmitsEveryLine(t *testing.T) {
	samples, err := NewLineSource(strings.NewReader("Hello\n\nWorld\n")).Samples(context.Background())
	require.NoError(t, err)

	var got []string
	for s := range samples {
		got = append(got, s)
	}
	assert.Equal(t, []string{"Hello", "", "World"}, got)
}

func TestReplaySource_SamplesTrackOnScreen(t *testing.T) {
	track, err := subtitle.Parse(strings.NewReader(
		"1\n00:00:01,000 --> 00:00:02,000\nHello\n\n2\n00:00:03,000 --> 00:00:04,000\nWorld\n"))
	require.NoError(t, err)

	src := NewReplaySource(track, time.Millisecond, 1)
	base := time.Unix(0, 0)
	var calls int
	src.now = func() time.Time {
		at := base.Add(time.Duration(calls) * 500 * time.Millisecond)
		calls++
		return at
	}

	ch, err := src.Samples(context.Background())
	require.NoError(t, err)

	var got []string
	for s := range ch {
		got = append(got, s)
	}
	assert.Equal(t, []string{"", "Hello", "Hello", "", "", "World", "World", ""}, got)
}

func TestReplaySource_EmptyTrack(t *testing.T) {
	_, err := NewReplaySource(&subtitle.Track{}, 0, 0).Samples(context.Background())
	require.Error(t, err)
}
