// Package display owns what the caption overlay shows.
package display

import (
	"sync"
	"time"
)

// DefaultErrorReset is how long the alert background stays after an error.
const DefaultErrorReset = 3 * time.Second

const (
	LoadingText = "翻訳中..."
	errorPrefix = "エラー: "
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseDisplaying
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseDisplaying:
		return "displaying"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

type Style int

const (
	StyleNeutral Style = iota
	StyleAlert
)

type View struct {
	Phase   Phase
	Visible bool
	Text    string
	Style   Style
}

type Renderer interface {
	Render(View)
}

type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

// Machine moves between idle, loading, displaying and error. Entering error
// schedules a style reset back to neutral; any later transition cancels it
// and the error text itself stays until superseded.
type Machine struct {
	mu         sync.Mutex
	view       View
	renderer   Renderer
	resetDelay time.Duration
	timer      *time.Timer
	generation uint64
}

func NewMachine(renderer Renderer, resetDelay time.Duration) *Machine {
	if renderer == nil {
		renderer = RendererFunc(func(View) {})
	}
	if resetDelay <= 0 {
		resetDelay = DefaultErrorReset
	}
	return &Machine{
		view:       View{Phase: PhaseIdle},
		renderer:   renderer,
		resetDelay: resetDelay,
	}
}

func (m *Machine) Idle() {
	m.transition(View{Phase: PhaseIdle})
}

func (m *Machine) Loading() {
	m.transition(View{Phase: PhaseLoading, Visible: true, Text: LoadingText})
}

func (m *Machine) Show(text string) {
	m.transition(View{Phase: PhaseDisplaying, Visible: true, Text: text})
}

func (m *Machine) Fail(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apply(View{Phase: PhaseError, Visible: true, Text: errorPrefix + message, Style: StyleAlert})
	gen := m.generation
	m.timer = time.AfterFunc(m.resetDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.generation != gen {
			return
		}
		m.view.Style = StyleNeutral
		m.renderer.Render(m.view)
	})
}

// View returns what is currently rendered.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Close cancels a pending style reset.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelReset()
}

func (m *Machine) transition(v View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(v)
}

func (m *Machine) apply(v View) {
	m.cancelReset()
	m.view = v
	m.renderer.Render(v)
}

func (m *Machine) cancelReset() {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
