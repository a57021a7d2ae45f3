package caption

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSelectors locate the caption element of the supported player,
// most specific first.
var DefaultSelectors = []string{
	"div[class^='well--container--']",
	"div[class^='captions-display--captions-container']",
	".captions-display--captions-container",
	"[data-purpose='captions-cue-text']",
	".transcript-cue-container span",
}

// Extractor pulls the visible caption out of an HTML document.
type Extractor struct {
	selectors []string
}

func NewExtractor(selectors ...string) *Extractor {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &Extractor{selectors: selectors}
}

// Extract returns the trimmed text of the first selector with non-empty text,
// or an empty string when the page shows no caption.
func (e *Extractor) Extract(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	return e.ExtractDocument(doc), nil
}

func (e *Extractor) ExtractDocument(doc *goquery.Document) string {
	for _, selector := range e.selectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}
