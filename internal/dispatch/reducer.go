// Package dispatch decides what happens on each caption event.
//
// Reduce is pure: it returns the next State together with the Effects the
// pipeline has to carry out. At most one translation request is in flight
// per pipeline; its result is always cached but only shown while its
// caption is still the current one.
package dispatch

type State struct {
	Current  string
	InFlight *InFlight
	// AwaitingAck is the busy guard: set from sending a request until the
	// coordinator acknowledges it or the send fails.
	AwaitingAck bool
	Enabled     bool
}

type InFlight struct {
	ForCaption string
}

func NewState(enabled bool) State {
	return State{Enabled: enabled}
}

func (s State) Busy() bool {
	return s.AwaitingAck
}

func (s State) inFlightFor(text string) bool {
	return s.InFlight != nil && s.InFlight.ForCaption == text
}

type Event interface {
	isEvent()
}

// CaptionChanged carries the cache lookup made for Text.
type CaptionChanged struct {
	Text   string
	Cached string
	Hit    bool
}

type CaptionCleared struct{}

type RequestAcked struct {
	For string
}

// DispatchFailed means the request never reached the coordinator.
type DispatchFailed struct {
	For string
	Err error
}

type TranslationSucceeded struct {
	For        string
	Translated string
}

type TranslationFailed struct {
	For     string
	Message string
}

type Toggled struct {
	Enabled bool
}

func (CaptionChanged) isEvent()       {}
func (CaptionCleared) isEvent()       {}
func (RequestAcked) isEvent()         {}
func (DispatchFailed) isEvent()       {}
func (TranslationSucceeded) isEvent() {}
func (TranslationFailed) isEvent()    {}
func (Toggled) isEvent()              {}

type Effect interface {
	isEffect()
}

type ShowIdle struct{}

type ShowLoading struct{}

type ShowTranslation struct {
	Text string
}

type ShowError struct {
	Message string
}

type SendRequest struct {
	Text string
}

type StoreTranslation struct {
	Source     string
	Translated string
}

type CountCacheHit struct{}

func (ShowIdle) isEffect()         {}
func (ShowLoading) isEffect()      {}
func (ShowTranslation) isEffect()  {}
func (ShowError) isEffect()        {}
func (SendRequest) isEffect()      {}
func (StoreTranslation) isEffect() {}
func (CountCacheHit) isEffect()    {}

func Reduce(state State, event Event) (State, []Effect) {
	switch ev := event.(type) {
	case Toggled:
		return toggle(state, ev)
	case CaptionChanged:
		if !state.Enabled {
			return state, nil
		}
		return captionChanged(state, ev)
	case CaptionCleared:
		if !state.Enabled {
			return state, nil
		}
		state.Current = ""
		state.InFlight = nil
		state.AwaitingAck = false
		return state, []Effect{ShowIdle{}}
	case RequestAcked:
		if state.inFlightFor(ev.For) {
			state.AwaitingAck = false
		}
		return state, nil
	case DispatchFailed:
		if !state.inFlightFor(ev.For) {
			return state, nil
		}
		state.AwaitingAck = false
		message := "request failed"
		if ev.Err != nil {
			message = ev.Err.Error()
		}
		return failed(state, ev.For, message)
	case TranslationSucceeded:
		return succeeded(state, ev)
	case TranslationFailed:
		return failed(state, ev.For, ev.Message)
	default:
		return state, nil
	}
}

func toggle(state State, ev Toggled) (State, []Effect) {
	if state.Enabled == ev.Enabled {
		return state, nil
	}
	state.Enabled = ev.Enabled
	if ev.Enabled {
		return state, nil
	}
	state.Current = ""
	state.InFlight = nil
	state.AwaitingAck = false
	return state, []Effect{ShowIdle{}}
}

func captionChanged(state State, ev CaptionChanged) (State, []Effect) {
	if ev.Text == "" {
		return state, nil
	}
	state.Current = ev.Text

	if ev.Hit {
		return state, []Effect{ShowTranslation{Text: ev.Cached}, CountCacheHit{}}
	}
	if state.inFlightFor(ev.Text) {
		return state, nil
	}

	state.InFlight = &InFlight{ForCaption: ev.Text}
	state.AwaitingAck = true
	return state, []Effect{ShowLoading{}, SendRequest{Text: ev.Text}}
}

func succeeded(state State, ev TranslationSucceeded) (State, []Effect) {
	if ev.For == "" {
		return state, nil
	}
	effects := []Effect{
		StoreTranslation{Source: ev.For, Translated: ev.Translated},
	}
	if state.inFlightFor(ev.For) {
		state.InFlight = nil
		state.AwaitingAck = false
	}
	if state.Enabled && state.Current == ev.For {
		effects = append(effects, ShowTranslation{Text: ev.Translated})
	}
	return state, effects
}

func failed(state State, caption, message string) (State, []Effect) {
	if state.inFlightFor(caption) {
		state.InFlight = nil
		state.AwaitingAck = false
	}
	if state.Enabled && caption != "" && state.Current == caption {
		return state, []Effect{ShowError{Message: message}}
	}
	return state, nil
}
