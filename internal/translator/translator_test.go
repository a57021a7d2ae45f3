package translator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-translator/internal/llm"
	"github.com/MimeLyc/live-caption-translator/internal/termmap"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

func newProvider(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)
	return server, got
}

func providerConfig(url string) *llm.Config {
	return &llm.Config{
		APIKey:      "sk-test-key-0123456789",
		APIURL:      url,
		Model:       "gpt-4.1-nano-2025-04-14",
		MaxTokens:   1024,
		Temperature: 1,
		TopP:        1,
		Timeout:     5,
	}
}

const okReply = `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4.1-nano-2025-04-14",
"choices":[{"index":0,"message":{"role":"assistant","content":" こんにちは \n"},"finish_reason":"stop"}]}`

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, "日本語に翻訳して、日本語のみを出力して", SystemPrompt(language.Japanese))
	assert.Contains(t, SystemPrompt(language.French), "French")
}

func TestBackends_TranslateWithFixedPrompt(t *testing.T) {
	for _, backend := range []Backend{BackendNative, BackendOpenAI} {
		t.Run(string(backend), func(t *testing.T) {
			server, got := newProvider(t, http.StatusOK, okReply)

			tr, err := New(backend, providerConfig(server.URL), language.Japanese)
			require.NoError(t, err)

			translated, err := tr.Translate(context.Background(), "Hello")
			require.NoError(t, err)
			assert.Equal(t, "こんにちは", translated)

			require.Len(t, got.Messages, 2)
			assert.Equal(t, "system", got.Messages[0].Role)
			assert.Equal(t, "日本語に翻訳して、日本語のみを出力して", got.Messages[0].Content)
			assert.Equal(t, "Hello", got.Messages[1].Content)
			assert.Equal(t, "gpt-4.1-nano-2025-04-14", got.Model)
			assert.Equal(t, 1024, got.MaxTokens)
			assert.Equal(t, 1.0, got.Temperature)
			assert.Equal(t, 1.0, got.TopP)
		})
	}
}

func TestBackends_GlossaryExtendsPromptForMatchingCaptions(t *testing.T) {
	glossary := termmap.TermMap{"Kubernetes": "Kubernetes", "pod": "ポッド"}
	for _, backend := range []Backend{BackendNative, BackendOpenAI} {
		t.Run(string(backend), func(t *testing.T) {
			server, got := newProvider(t, http.StatusOK, okReply)

			tr, err := New(backend, providerConfig(server.URL), language.Japanese, WithGlossary(glossary))
			require.NoError(t, err)

			_, err = tr.Translate(context.Background(), "Restart the pod")
			require.NoError(t, err)
			require.Len(t, got.Messages, 2)
			assert.Equal(t,
				"日本語に翻訳して、日本語のみを出力して\nUse these term translations:\n- pod: ポッド",
				got.Messages[0].Content)

			_, err = tr.Translate(context.Background(), "Hello")
			require.NoError(t, err)
			assert.Equal(t, "日本語に翻訳して、日本語のみを出力して", got.Messages[0].Content)
		})
	}
}

func TestBackends_StatusFailure(t *testing.T) {
	for _, backend := range []Backend{BackendNative, BackendOpenAI} {
		t.Run(string(backend), func(t *testing.T) {
			server, _ := newProvider(t, http.StatusInternalServerError,
				`{"error":{"message":"overloaded","type":"server_error"}}`)

			tr, err := New(backend, providerConfig(server.URL), language.Japanese)
			require.NoError(t, err)

			_, err = tr.Translate(context.Background(), "Hello")
			require.Error(t, err)

			var statusErr *llm.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, "API request failed with status 500", statusErr.Error())
		})
	}
}

func TestNew_RejectsMissingKeyAndUnknownBackend(t *testing.T) {
	cfg := providerConfig("https://api.example.com")
	cfg.APIKey = ""
	_, err := New(BackendOpenAI, cfg, language.Japanese)
	require.Error(t, err)

	_, err = New("carrier-pigeon", providerConfig("https://api.example.com"), language.Japanese)
	require.Error(t, err)
}
