package translator

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/live-caption-translator/internal/termmap"
)

const japanesePrompt = "日本語に翻訳して、日本語のみを出力して"

// SystemPrompt is the fixed instruction sent with every caption.
func SystemPrompt(target language.Tag) string {
	if base, _ := target.Base(); base == japaneseBase {
		return japanesePrompt
	}
	name := display.English.Languages().Name(target)
	if name == "" {
		name = target.String()
	}
	return fmt.Sprintf("Translate the text into %s and output only the %s translation.", name, name)
}

var japaneseBase, _ = language.Japanese.Base()

// prompt is the system prompt for one translator, extended per caption with
// the glossary terms the caption contains.
type prompt struct {
	base     string
	glossary termmap.TermMap
}

func newPrompt(target language.Tag, o options) prompt {
	return prompt{base: SystemPrompt(target), glossary: o.glossary}
}

func (p prompt) For(text string) string {
	extra := termmap.Instruction(termmap.Match(p.glossary, text))
	if extra == "" {
		return p.base
	}
	return p.base + "\n" + extra
}
