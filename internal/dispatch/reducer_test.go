package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(state State, events ...Event) (State, []Effect) {
	var all []Effect
	for _, ev := range events {
		var effects []Effect
		state, effects = Reduce(state, ev)
		all = append(all, effects...)
	}
	return state, all
}

func TestReduce_MissSendsOneRequest(t *testing.T) {
	state, effects := Reduce(NewState(true), CaptionChanged{Text: "Hello"})

	assert.Equal(t, []Effect{ShowLoading{}, SendRequest{Text: "Hello"}}, effects)
	assert.Equal(t, "Hello", state.Current)
	require.NotNil(t, state.InFlight)
	assert.Equal(t, "Hello", state.InFlight.ForCaption)
	assert.True(t, state.Busy())

	state, effects = Reduce(state, RequestAcked{For: "Hello"})
	assert.Empty(t, effects)
	assert.False(t, state.Busy())

	_, effects = Reduce(state, CaptionChanged{Text: "Hello"})
	assert.Empty(t, effects, "same caption already in flight must not be requested again")
}

func TestReduce_HitShowsCachedWithoutRequest(t *testing.T) {
	state, effects := Reduce(NewState(true), CaptionChanged{Text: "Hello", Cached: "こんにちは", Hit: true})

	assert.Equal(t, []Effect{ShowTranslation{Text: "こんにちは"}, CountCacheHit{}}, effects)
	assert.Nil(t, state.InFlight)
	assert.False(t, state.Busy())
}

func TestReduce_SuccessForCurrentCaption(t *testing.T) {
	state, effects := run(NewState(true),
		CaptionChanged{Text: "Hello"},
		RequestAcked{For: "Hello"},
		TranslationSucceeded{For: "Hello", Translated: "こんにちは"},
	)

	assert.Equal(t, []Effect{
		ShowLoading{},
		SendRequest{Text: "Hello"},
		StoreTranslation{Source: "Hello", Translated: "こんにちは"},
		ShowTranslation{Text: "こんにちは"},
	}, effects)
	assert.Nil(t, state.InFlight)
}

func TestReduce_StaleResultIsCachedButNotShown(t *testing.T) {
	state, _ := run(NewState(true),
		CaptionChanged{Text: "A"},
		RequestAcked{For: "A"},
		CaptionChanged{Text: "B"},
		RequestAcked{For: "B"},
	)
	require.NotNil(t, state.InFlight)
	assert.Equal(t, "B", state.InFlight.ForCaption)

	state, effects := Reduce(state, TranslationSucceeded{For: "A", Translated: "あ"})
	assert.Equal(t, []Effect{StoreTranslation{Source: "A", Translated: "あ"}}, effects)
	require.NotNil(t, state.InFlight, "stale result must not clear the newer request")

	_, effects = Reduce(state, TranslationFailed{For: "A", Message: "boom"})
	assert.Empty(t, effects)
}

func TestReduce_FailureShowsErrorWithoutCacheWrite(t *testing.T) {
	state, effects := run(NewState(true),
		CaptionChanged{Text: "Hello"},
		RequestAcked{For: "Hello"},
		TranslationFailed{For: "Hello", Message: "APIキーが設定されていません"},
	)

	assert.Equal(t, []Effect{
		ShowLoading{},
		SendRequest{Text: "Hello"},
		ShowError{Message: "APIキーが設定されていません"},
	}, effects)
	assert.Nil(t, state.InFlight)
	for _, e := range effects {
		_, stored := e.(StoreTranslation)
		assert.False(t, stored, "failures must never reach the cache")
	}
}

func TestReduce_DispatchFailureClearsGuard(t *testing.T) {
	state, effects := run(NewState(true),
		CaptionChanged{Text: "Hello"},
		DispatchFailed{For: "Hello", Err: errors.New("channel closed")},
	)

	assert.False(t, state.Busy())
	assert.Nil(t, state.InFlight)
	assert.Equal(t, ShowError{Message: "channel closed"}, effects[len(effects)-1])
}

func TestReduce_ClearedDropsCurrent(t *testing.T) {
	state, effects := run(NewState(true),
		CaptionChanged{Text: "Hello"},
		RequestAcked{For: "Hello"},
		CaptionCleared{},
	)
	assert.Equal(t, ShowIdle{}, effects[len(effects)-1])
	assert.Empty(t, state.Current)
	assert.Nil(t, state.InFlight)

	_, effects = Reduce(state, TranslationSucceeded{For: "Hello", Translated: "こんにちは"})
	assert.Equal(t, []Effect{StoreTranslation{Source: "Hello", Translated: "こんにちは"}}, effects)
}

func TestReduce_DisabledIgnoresCaptions(t *testing.T) {
	state, effects := run(NewState(true),
		CaptionChanged{Text: "Hello"},
		Toggled{Enabled: false},
	)
	assert.Equal(t, ShowIdle{}, effects[len(effects)-1])
	assert.False(t, state.Busy())

	state, effects = Reduce(state, CaptionChanged{Text: "World"})
	assert.Empty(t, effects)
	assert.Empty(t, state.Current)

	state, _ = Reduce(state, Toggled{Enabled: true})
	_, effects = Reduce(state, CaptionChanged{Text: "World"})
	assert.Equal(t, []Effect{ShowLoading{}, SendRequest{Text: "World"}}, effects)
}
