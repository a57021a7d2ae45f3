package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// SRT time format: 00:02:16,612 --> 00:02:19,376
var timingPattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{3}) --> (\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

type parseState int

const (
	expectIndex parseState = iota
	expectTiming
	inText
)

// ReadFile parses the SRT file at path.
func ReadFile(path string) (*Track, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads SRT cues from r. Cue text lines are joined with a space since
// a caption is shown as one line.
func Parse(r io.Reader) (*Track, error) {
	var (
		cues      []Cue
		current   Cue
		textLines []string
		state     = expectIndex
	)
	flush := func() {
		if len(textLines) > 0 {
			current.Text = strings.Join(textLines, " ")
			cues = append(cues, current)
		}
		current = Cue{}
		textLines = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		switch state {
		case expectIndex:
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			current.Index = index
			state = expectTiming

		case expectTiming:
			if line == "" {
				continue
			}
			start, end, err := parseTiming(line)
			if err != nil {
				return nil, fmt.Errorf("cue %d: %w", current.Index, err)
			}
			current.Start = start
			current.End = end
			state = inText

		case inText:
			if line == "" {
				flush()
				state = expectIndex
				continue
			}
			textLines = append(textLines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	if state == inText {
		flush()
	}

	sort.SliceStable(cues, func(i, j int) bool {
		return cues[i].Start < cues[j].Start
	})
	return &Track{Cues: cues, Language: detectLanguage(cues)}, nil
}

func parseTiming(line string) (time.Duration, time.Duration, error) {
	m := timingPattern.FindStringSubmatch(line)
	if len(m) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", line)
	}
	start := clock(m[1], m[2], m[3], m[4])
	end := clock(m[5], m[6], m[7], m[8])
	if end < start {
		return 0, 0, fmt.Errorf("cue ends before it starts: %s", line)
	}
	return start, end, nil
}

// clock only sees digits matched by timingPattern, so Atoi cannot fail.
func clock(hours, minutes, seconds, millis string) time.Duration {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)
	ms, _ := strconv.Atoi(millis)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}

// detectLanguage picks the most common reliable language among the cues.
func detectLanguage(cues []Cue) language.Tag {
	counts := make(map[string]int)
	for _, c := range cues {
		info := whatlanggo.Detect(c.Text)
		if !info.IsReliable() {
			continue
		}
		counts[info.Lang.Iso6391()]++
	}

	var top string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < top) {
			top, topCount = lang, count
		}
	}
	if top == "" {
		return language.Und
	}
	return language.Make(top)
}
