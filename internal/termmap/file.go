package termmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
)

// Filename returns the term map filename for the given source and target languages.
// Uses 2-letter language base codes (e.g., "en", "ja").
func Filename(sourceLang, targetLang string) string {
	src := normalizeLanguageCode(sourceLang)
	tgt := normalizeLanguageCode(targetLang)
	return "term_map." + src + "-" + tgt + ".json"
}

// FilePath returns the full path to the term map file in the given directory.
func FilePath(dir, sourceLang, targetLang string) string {
	return filepath.Join(dir, Filename(sourceLang, targetLang))
}

// Resolve picks the glossary to load: explicit when set, otherwise the
// conventional file in dir if it exists. An empty result means no glossary.
func Resolve(explicit, dir, sourceLang, targetLang string) string {
	if explicit != "" {
		return explicit
	}
	candidate := FilePath(dir, sourceLang, targetLang)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// Load reads a term map from a JSON object of source to target terms.
func Load(path string) (TermMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tm TermMap
	if err := json.Unmarshal(data, &tm); err != nil {
		return nil, fmt.Errorf("parse term map %s: %w", path, err)
	}
	for source, target := range tm {
		if source == "" || target == "" {
			delete(tm, source)
		}
	}
	return tm, nil
}

// normalizeLanguageCode parses a language string and returns its 2-letter base code.
func normalizeLanguageCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}
