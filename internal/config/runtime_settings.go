package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/MimeLyc/live-caption-translator/internal/persistence"
)

// Settings keys in the settings namespace.
const (
	KeyAPIKey  = "apiKey"
	KeyEnabled = "enabled"
)

// Status texts shown to the user.
const (
	StatusNoAPIKey = "APIキーが未設定です"
	StatusDisabled = "翻訳機能が無効です"
	StatusReady    = "翻訳準備完了"
)

var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)

type RuntimeSettings struct {
	APIKey  string `json:"apiKey"`
	Enabled bool   `json:"enabled"`
}

func DefaultRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{Enabled: true}
}

// ValidateAPIKey accepts keys of at least 20 characters from [A-Za-z0-9_-].
func ValidateAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("api key is required")
	}
	if !apiKeyPattern.MatchString(key) {
		return fmt.Errorf("api key format is invalid")
	}
	return nil
}

func (s RuntimeSettings) Validate() error {
	if s.APIKey == "" {
		return nil
	}
	return ValidateAPIKey(s.APIKey)
}

func (s RuntimeSettings) StatusText() string {
	switch {
	case s.APIKey == "":
		return StatusNoAPIKey
	case !s.Enabled:
		return StatusDisabled
	default:
		return StatusReady
	}
}

// MaskedAPIKey keeps the first and last four characters.
func (s RuntimeSettings) MaskedAPIKey() string {
	if len(s.APIKey) <= 8 {
		return strings.Repeat("*", len(s.APIKey))
	}
	return s.APIKey[:4] + strings.Repeat("*", len(s.APIKey)-8) + s.APIKey[len(s.APIKey)-4:]
}

// SettingsUpdate changes only the fields that are set.
type SettingsUpdate struct {
	APIKey  *string `json:"apiKey,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

func (u SettingsUpdate) Validate() error {
	if u.APIKey != nil {
		return ValidateAPIKey(*u.APIKey)
	}
	return nil
}

// LoadRuntimeSettingsFile reads a settings file; a missing "enabled" means enabled.
func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	settings := DefaultRuntimeSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type KV interface {
	Get(ctx context.Context, ns persistence.Namespace, keys ...string) (map[string]string, error)
	Set(ctx context.Context, ns persistence.Namespace, values map[string]string) error
}

// RuntimeSettingsStore keeps the user settings in the settings namespace.
// fallbackKey (LLM_API_KEY) is used while no key has been stored.
type RuntimeSettingsStore struct {
	kv          KV
	fallbackKey string
	path        string
}

func NewRuntimeSettingsStore(kv KV, fallbackKey string, path string) *RuntimeSettingsStore {
	return &RuntimeSettingsStore{
		kv:          kv,
		fallbackKey: fallbackKey,
		path:        path,
	}
}

// Get returns the effective settings.
func (s *RuntimeSettingsStore) Get(ctx context.Context) (RuntimeSettings, error) {
	values, err := s.kv.Get(ctx, persistence.NamespaceSettings, KeyAPIKey, KeyEnabled)
	if err != nil {
		return RuntimeSettings{}, fmt.Errorf("load settings: %w", err)
	}

	settings := DefaultRuntimeSettings()
	settings.APIKey = values[KeyAPIKey]
	if settings.APIKey == "" {
		settings.APIKey = s.fallbackKey
	}
	if raw, ok := values[KeyEnabled]; ok {
		if enabled, err := strconv.ParseBool(raw); err == nil {
			settings.Enabled = enabled
		}
	}
	return settings, nil
}

func (s *RuntimeSettingsStore) APIKey(ctx context.Context) (string, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return settings.APIKey, nil
}

// Update stores the fields set in u and mirrors the result to the settings
// file when one is configured.
func (s *RuntimeSettingsStore) Update(ctx context.Context, u SettingsUpdate) (RuntimeSettings, error) {
	if err := u.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := s.write(ctx, u); err != nil {
		return RuntimeSettings{}, err
	}

	current, err := s.Get(ctx)
	if err != nil {
		return RuntimeSettings{}, err
	}
	if s.path != "" {
		if err := WriteRuntimeSettingsFile(s.path, current); err != nil {
			return RuntimeSettings{}, fmt.Errorf("write settings file: %w", err)
		}
	}
	return current, nil
}

// Import stores settings read from the settings file. An empty key in the
// file leaves the stored key untouched.
func (s *RuntimeSettingsStore) Import(ctx context.Context, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	u := SettingsUpdate{Enabled: &settings.Enabled}
	if settings.APIKey != "" {
		u.APIKey = &settings.APIKey
	}
	return s.write(ctx, u)
}

func (s *RuntimeSettingsStore) write(ctx context.Context, u SettingsUpdate) error {
	values := make(map[string]string, 2)
	if u.APIKey != nil {
		values[KeyAPIKey] = *u.APIKey
	}
	if u.Enabled != nil {
		values[KeyEnabled] = strconv.FormatBool(*u.Enabled)
	}
	if len(values) == 0 {
		return nil
	}
	if err := s.kv.Set(ctx, persistence.NamespaceSettings, values); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
