package translator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-translator/internal/llm"
)

type nativeTranslator struct {
	client *llm.Client
	prompt prompt
}

// NewNativeTranslator uses the built-in chat completion client.
func NewNativeTranslator(cfg *llm.Config, target language.Tag, opts ...Option) (Translator, error) {
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &nativeTranslator{client: client, prompt: newPrompt(target, buildOptions(opts))}, nil
}

func (t *nativeTranslator) Translate(ctx context.Context, text string) (string, error) {
	content, err := t.client.SimpleChat(ctx, text, t.prompt.For(text))
	if err != nil {
		return "", fmt.Errorf("translate caption: %w", err)
	}
	return strings.TrimSpace(content), nil
}
