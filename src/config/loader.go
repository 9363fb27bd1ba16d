package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Loader handles loading and merging configuration from its sources
type Loader struct {
	validator *Validator
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{validator: NewValidator()}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (skipped when empty or absent), then environment overrides. A .env
// file in the working directory is loaded into the environment first.
func (l *Loader) Load(path string) (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	config := DefaultConfig()

	if path != "" {
		if cfg, err := l.loadFile(path); err == nil {
			config = l.mergeConfigs(config, cfg)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	l.applyEnvironmentOverrides(config)

	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &config, nil
}

// mergeConfigs merges two configurations with the second taking precedence
func (l *Loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Server.Addr != "" {
		result.Server.Addr = override.Server.Addr
	}
	if override.Server.RateLimit != 0 {
		result.Server.RateLimit = override.Server.RateLimit
	}
	if override.Server.RateBurst != 0 {
		result.Server.RateBurst = override.Server.RateBurst
	}

	if override.Model.BaseURL != "" {
		result.Model.BaseURL = override.Model.BaseURL
	}
	if override.Model.APIKey != "" {
		result.Model.APIKey = override.Model.APIKey
	}
	if override.Model.Name != "" {
		result.Model.Name = override.Model.Name
	}
	if override.Model.ImageModel != "" {
		result.Model.ImageModel = override.Model.ImageModel
	}
	if override.Model.MaxTokens != 0 {
		result.Model.MaxTokens = override.Model.MaxTokens
	}

	if override.Storage.DataDir != "" {
		result.Storage.DataDir = override.Storage.DataDir
	}
	if override.Storage.Backend != "" {
		result.Storage.Backend = override.Storage.Backend
	}
	if override.Storage.SQLitePath != "" {
		result.Storage.SQLitePath = override.Storage.SQLitePath
	}

	if override.Blob.Dir != "" {
		result.Blob.Dir = override.Blob.Dir
	}
	if override.Blob.SigningKey != "" {
		result.Blob.SigningKey = override.Blob.SigningKey
	}
	if override.Blob.LinkTTLSeconds != 0 {
		result.Blob.LinkTTLSeconds = override.Blob.LinkTTLSeconds
	}

	if override.Agent.SensitiveTools != nil {
		result.Agent.SensitiveTools = override.Agent.SensitiveTools
	}
	if override.Agent.MaxTurns != 0 {
		result.Agent.MaxTurns = override.Agent.MaxTurns
	}
	if override.Agent.TokenBudget != 0 {
		result.Agent.TokenBudget = override.Agent.TokenBudget
	}
	if override.Agent.SystemPrompt != "" {
		result.Agent.SystemPrompt = override.Agent.SystemPrompt
	}

	if override.Tools.SearchURL != "" {
		result.Tools.SearchURL = override.Tools.SearchURL
	}

	if override.LogLevel != "" {
		result.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		result.LogFormat = override.LogFormat
	}

	return &result
}

// applyEnvironmentOverrides applies CHATD_* environment variables on top of
// the merged configuration. OPENAI_API_KEY is honored as a fallback for the
// model key.
func (l *Loader) applyEnvironmentOverrides(config *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("CHATD_ADDR", &config.Server.Addr)
	setString("CHATD_MODEL_BASE_URL", &config.Model.BaseURL)
	setString("CHATD_MODEL_NAME", &config.Model.Name)
	setString("CHATD_IMAGE_MODEL", &config.Model.ImageModel)
	setString("CHATD_DATA_DIR", &config.Storage.DataDir)
	setString("CHATD_STORAGE_BACKEND", &config.Storage.Backend)
	setString("CHATD_SQLITE_PATH", &config.Storage.SQLitePath)
	setString("CHATD_BLOB_DIR", &config.Blob.Dir)
	setString("CHATD_BLOB_SIGNING_KEY", &config.Blob.SigningKey)
	setString("CHATD_SEARCH_URL", &config.Tools.SearchURL)
	setString("CHATD_LOG_LEVEL", &config.LogLevel)
	setString("CHATD_LOG_FORMAT", &config.LogFormat)

	if v := os.Getenv("CHATD_MODEL_API_KEY"); v != "" {
		config.Model.APIKey = v
	} else if config.Model.APIKey == "" {
		config.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if v := os.Getenv("CHATD_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Agent.MaxTurns = n
		}
	}
	if v := os.Getenv("CHATD_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Agent.TokenBudget = n
		}
	}
}
