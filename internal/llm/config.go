package llm

import (
	"fmt"
)

// Config holds the configuration for the LLM client.
// Any OpenAI-compatible chat completion endpoint works.
//
// Environment Variables:
// - LLM_API_KEY: API key used when no key is stored in the settings
// - LLM_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - LLM_MODEL: Model name to use (default: gpt-4.1-nano-2025-04-14)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 1024)
// - LLM_TEMPERATURE: Temperature for responses (default: 1)
// - LLM_TOP_P: Nucleus sampling (default: 1)
// - LLM_TIMEOUT: Request timeout in seconds (default: 30)
type Config struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Timeout     int     `json:"timeout"`
}

// WithAPIKey returns a copy of the configuration using apiKey.
func (c Config) WithAPIKey(apiKey string) *Config {
	c.APIKey = apiKey
	return &c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be between 0 and 1")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// GetHeaders returns the headers for the LLM API request
func (c *Config) GetHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}
}
