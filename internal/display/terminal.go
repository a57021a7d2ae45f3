package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorText    = lipgloss.Color("#FFFFFF")
	colorNeutral = lipgloss.Color("#1A1A1A")
	colorAlert   = lipgloss.Color("#DC3545")

	neutralStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorNeutral).
			Padding(0, 2)

	alertStyle = neutralStyle.
			Background(colorAlert)
)

// TerminalRenderer prints every view change as one styled line.
type TerminalRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	visible bool
}

func NewTerminalRenderer(out io.Writer) *TerminalRenderer {
	return &TerminalRenderer{out: out}
}

func (r *TerminalRenderer) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !v.Visible {
		if r.visible {
			fmt.Fprintln(r.out)
		}
		r.visible = false
		return
	}
	r.visible = true
	fmt.Fprintln(r.out, Styled(v))
}

// Styled renders the overlay text with its background.
func Styled(v View) string {
	if v.Style == StyleAlert {
		return alertStyle.Render(v.Text)
	}
	return neutralStyle.Render(v.Text)
}
