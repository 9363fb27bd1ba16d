package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// DefaultConfig returns the baseline configuration. Durable state defaults
// live under the XDG state directory.
func DefaultConfig() *Config {
	dataDir := filepath.Join(xdg.StateHome, "chatd")
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			RateLimit: 10,
			RateBurst: 20,
		},
		Model: ModelConfig{
			Name: "gpt-4o",
		},
		Storage: StorageConfig{
			DataDir:    dataDir,
			Backend:    "pebble",
			SQLitePath: filepath.Join(dataDir, "attachments.db"),
		},
		Blob: BlobConfig{
			Dir:            filepath.Join(dataDir, "blobs"),
			LinkTTLSeconds: 3600,
		},
		Agent: AgentConfig{
			SensitiveTools: []string{"current_weather"},
			MaxTurns:       10,
			TokenBudget:    120_000,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}
