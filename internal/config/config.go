package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-translator/internal/llm"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: fallback API key when none is stored in the settings (optional)
// - LLM_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - LLM_MODEL: Model name to use (default: gpt-4.1-nano-2025-04-14)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 1024)
// - LLM_TEMPERATURE: Temperature for responses (default: 1)
// - LLM_TOP_P: Nucleus sampling (default: 1)
// - LLM_TIMEOUT: Request timeout in seconds (default: 30)
// - LLM_BACKEND: native or openai (default: native)
//
// System Configuration:
// - DATA_DIR: directory of the SQLite database (default: /app/data)
// - SETTINGS_FILE: JSON settings file imported on start and on change (optional)
// - HTTP_ADDR: listen address of the coordinator API (default: :8080)
// - COORDINATOR_WORKERS: concurrent provider calls (default: 2)
// - DISPLAY_ERROR_RESET: how long the error background stays (default: 3s)
// - POLL_INTERVAL: caption page polling interval (default: 250ms)
// - GLOSSARY_FILE: JSON term map added to the prompt (default: DATA_DIR/term_map.en-ja.json if present)
// - MAINTENANCE_CRON: store maintenance schedule (default: 0 4 * * *)
// - LOG_LEVEL: debug, info, warn or error (default: info)
type Config struct {
	LLM         LLMConfig         `json:"llm"`
	HTTP        HTTPConfig        `json:"http"`
	System      SystemConfig      `json:"system"`
	Translate   TranslateConfig   `json:"translate"`
	Display     DisplayConfig     `json:"display"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Coordinator CoordinatorConfig `json:"coordinator"`
}

// LLMConfig holds the provider settings shared by both backends.
type LLMConfig struct {
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Timeout     int     `json:"timeout"`
	Backend     string  `json:"backend"`
}

// ClientConfig builds the client configuration for apiKey.
func (c LLMConfig) ClientConfig(apiKey string) *llm.Config {
	return &llm.Config{
		APIKey:      apiKey,
		APIURL:      c.APIURL,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
		Timeout:     c.Timeout,
	}
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type SystemConfig struct {
	DataDir      string `json:"data_dir"`
	SettingsFile string `json:"settings_file"`
	LogLevel     string `json:"log_level"`
}

type TranslateConfig struct {
	TargetLanguage language.Tag  `json:"target_language"`
	PollInterval   time.Duration `json:"poll_interval"`
	GlossaryFile   string        `json:"glossary_file"`
}

type DisplayConfig struct {
	ErrorReset time.Duration `json:"error_reset"`
}

type MaintenanceConfig struct {
	CronExpr string `json:"cron_expr"`
}

type CoordinatorConfig struct {
	Workers int `json:"workers"`
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.System.DataDir = dir
	}
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) {
		c.HTTP.Addr = addr
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://api.openai.com/v1"),
			Model:       getEnvString("LLM_MODEL", "gpt-4.1-nano-2025-04-14"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 1),
			TopP:        getEnvFloat("LLM_TOP_P", 1),
			Timeout:     getEnvInt("LLM_TIMEOUT", 30),
			Backend:     getEnvString("LLM_BACKEND", "native"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
		System: SystemConfig{
			DataDir:      getEnvString("DATA_DIR", "/app/data"),
			SettingsFile: getEnvString("SETTINGS_FILE", ""),
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
		},
		Translate: TranslateConfig{
			TargetLanguage: language.Japanese,
			PollInterval:   getEnvDuration("POLL_INTERVAL", 250*time.Millisecond),
			GlossaryFile:   getEnvString("GLOSSARY_FILE", ""),
		},
		Display: DisplayConfig{
			ErrorReset: getEnvDuration("DISPLAY_ERROR_RESET", 3*time.Second),
		},
		Maintenance: MaintenanceConfig{
			CronExpr: getEnvString("MAINTENANCE_CRON", "0 4 * * *"),
		},
		Coordinator: CoordinatorConfig{
			Workers: getEnvInt("COORDINATOR_WORKERS", 2),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// DBPath is the SQLite file holding settings and the translation cache.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "captions.db")
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.LLM.Backend {
	case "native", "openai":
	default:
		return fmt.Errorf("LLM_BACKEND must be native or openai, got %q", c.LLM.Backend)
	}
	if c.Coordinator.Workers < 1 {
		return fmt.Errorf("COORDINATOR_WORKERS must be greater than 0")
	}
	if _, err := cron.ParseStandard(c.Maintenance.CronExpr); err != nil {
		return fmt.Errorf("invalid MAINTENANCE_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
