package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-translator/internal/llm"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

type openAITranslator struct {
	client *openai.Client
	cfg    llm.Config
	prompt prompt
}

// NewOpenAITranslator uses the go-openai SDK against cfg.APIURL.
func NewOpenAITranslator(cfg *llm.Config, target language.Tag, opts ...Option) (Translator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.APIURL, "/")
	clientConfig.HTTPClient = &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}

	return &openAITranslator{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    *cfg,
		prompt: newPrompt(target, buildOptions(opts)),
	}, nil
}

func (t *openAITranslator) Translate(ctx context.Context, text string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: t.prompt.For(text)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: float32(t.cfg.Temperature),
		TopP:        float32(t.cfg.TopP),
	}

	start := time.Now()
	resp, err := t.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Debug("openai translator: call failed after %v: %v", time.Since(start), err)
		return "", fmt.Errorf("translate caption: %w", statusError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translate caption: no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// statusError reports HTTP failures the same way as the native client.
func statusError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &llm.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &llm.StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
