package termmap

import (
	"fmt"
	"sort"
	"strings"
)

// Match filters the term map to the terms that appear in text.
// Uses case-sensitive substring matching (correct for proper nouns).
func Match(tm TermMap, text string) TermMap {
	matched := make(TermMap)
	for source, target := range tm {
		if strings.Contains(text, source) {
			matched[source] = target
		}
	}
	return matched
}

// Instruction renders matched terms as an addition to the system prompt, or
// an empty string when nothing matched.
func Instruction(matched TermMap) string {
	if len(matched) == 0 {
		return ""
	}
	sources := make([]string, 0, len(matched))
	for source := range matched {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var b strings.Builder
	b.WriteString("Use these term translations:")
	for _, source := range sources {
		fmt.Fprintf(&b, "\n- %s: %s", source, matched[source])
	}
	return b.String()
}
