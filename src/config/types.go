// Package config loads the service configuration from defaults, an optional
// JSON file, and environment overrides, in that order of precedence.
package config

// Config represents the complete configuration for chatd
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Model provider configuration
	Model ModelConfig `json:"model"`

	// Storage configuration for checkpoints and attachment metadata
	Storage StorageConfig `json:"storage"`

	// Blob storage configuration
	Blob BlobConfig `json:"blob"`

	// Agent behavior configuration
	Agent AgentConfig `json:"agent"`

	// Tool backends configuration
	Tools ToolsConfig `json:"tools"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// LogFormat is text or json
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=text json"`
}

// ServerConfig defines the HTTP listener settings
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string `json:"addr"`

	// RateLimit is the per-client request rate in requests per second
	RateLimit float64 `json:"rate_limit" validate:"omitempty,gt=0"`

	// RateBurst is the per-client burst allowance
	RateBurst int `json:"rate_burst" validate:"omitempty,gt=0"`
}

// ModelConfig defines the OpenAI-compatible provider settings
type ModelConfig struct {
	// BaseURL of the provider, defaults to the OpenAI endpoint
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`

	// APIKey for the provider
	APIKey string `json:"api_key,omitempty"`

	// Name of the chat model
	Name string `json:"name"`

	// ImageModel used by the generate_image tool; empty uses the
	// provider's default
	ImageModel string `json:"image_model,omitempty"`

	// MaxTokens per completion, 0 leaves it to the provider
	MaxTokens int `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
}

// StorageConfig defines where conversation and attachment state lives
type StorageConfig struct {
	// DataDir is the root directory for durable state
	DataDir string `json:"data_dir"`

	// Backend selects the checkpoint store implementation
	Backend string `json:"backend" validate:"omitempty,oneof=pebble memory"`

	// SQLitePath is the attachment metadata database location
	SQLitePath string `json:"sqlite_path"`
}

// BlobConfig defines blob storage and signed-link settings
type BlobConfig struct {
	// Dir holds the stored blobs
	Dir string `json:"dir"`

	// SigningKey signs temporary blob links
	SigningKey string `json:"signing_key,omitempty"`

	// LinkTTLSeconds is the lifetime of a signed link
	LinkTTLSeconds int `json:"link_ttl_seconds,omitempty" validate:"omitempty,gt=0"`
}

// AgentConfig defines turn-loop behavior
type AgentConfig struct {
	// SensitiveTools require user approval before they execute
	SensitiveTools []string `json:"sensitive_tools"`

	// MaxTurns bounds the model/tool loop within one run
	MaxTurns int `json:"max_turns,omitempty" validate:"omitempty,gt=0"`

	// TokenBudget is the approximate context window trim limit
	TokenBudget int `json:"token_budget,omitempty" validate:"omitempty,gt=0"`

	// SystemPrompt overrides the generated system prompt when set
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// ToolsConfig points tools at their backends
type ToolsConfig struct {
	// SearchURL is a SearxNG-compatible instance for web_search; empty
	// disables the tool
	SearchURL string `json:"search_url,omitempty" validate:"omitempty,url"`
}
