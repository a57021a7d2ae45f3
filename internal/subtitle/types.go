// Package subtitle parses SRT files so recorded captions can be replayed
// through a pipeline.
package subtitle

import (
	"sort"
	"time"

	"golang.org/x/text/language"
)

// Cue is one caption shown between Start and End.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Track is a parsed subtitle file with cues ordered by start time.
type Track struct {
	Cues     []Cue
	Language language.Tag
}

// TextAt returns the caption on screen at offset, or "" between cues.
// When cues overlap the one that started last wins.
func (t *Track) TextAt(offset time.Duration) string {
	i := sort.Search(len(t.Cues), func(i int) bool {
		return t.Cues[i].Start > offset
	})
	for j := i - 1; j >= 0; j-- {
		if offset < t.Cues[j].End {
			return t.Cues[j].Text
		}
	}
	return ""
}

// Duration is the end of the last cue.
func (t *Track) Duration() time.Duration {
	var end time.Duration
	for _, c := range t.Cues {
		if c.End > end {
			end = c.End
		}
	}
	return end
}
