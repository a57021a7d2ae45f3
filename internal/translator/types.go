package translator

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-translator/internal/llm"
	"github.com/MimeLyc/live-caption-translator/internal/termmap"
)

// Translator turns one caption into the target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type Backend string

const (
	BackendNative Backend = "native"
	BackendOpenAI Backend = "openai"
)

type options struct {
	glossary termmap.TermMap
}

type Option func(*options)

// WithGlossary pins the translation of terms found in a caption.
func WithGlossary(tm termmap.TermMap) Option {
	return func(o *options) {
		o.glossary = tm
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds a translator for backend using cfg, which must carry the API key.
func New(backend Backend, cfg *llm.Config, target language.Tag, opts ...Option) (Translator, error) {
	switch backend {
	case BackendNative, "":
		return NewNativeTranslator(cfg, target, opts...)
	case BackendOpenAI:
		return NewOpenAITranslator(cfg, target, opts...)
	default:
		return nil, fmt.Errorf("unknown translation backend %q", backend)
	}
}
