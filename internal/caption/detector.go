// Package caption turns raw caption samples into change events.
package caption

import "strings"

type EventKind int

const (
	// EventChanged reports a new non-empty caption.
	EventChanged EventKind = iota
	// EventCleared reports that the caption disappeared.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Text string
}

// Detector compares each sample with the last reported caption.
// Samples observed while busy reports true are ignored entirely, so the
// comparison resumes from the last value actually reported.
type Detector struct {
	last string
	busy func() bool
}

func NewDetector(busy func() bool) *Detector {
	if busy == nil {
		busy = func() bool { return false }
	}
	return &Detector{busy: busy}
}

func (d *Detector) Observe(sample string) (Event, bool) {
	if d.busy() {
		return Event{}, false
	}

	text := strings.TrimSpace(sample)
	switch {
	case text == "" && d.last != "":
		d.last = ""
		return Event{Kind: EventCleared}, true
	case text != "" && text != d.last:
		d.last = text
		return Event{Kind: EventChanged, Text: text}, true
	default:
		return Event{}, false
	}
}

// Last returns the last reported caption.
func (d *Detector) Last() string {
	return d.last
}

// Reset forgets the last reported caption so the next sample is reported again.
func (d *Detector) Reset() {
	d.last = ""
}
