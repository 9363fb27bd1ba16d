package modelclient

import (
	"log/slog"
	"time"
)

// Config holds configuration for the chat completions client.
type Config struct {
	APIKey     string        // API key for the completions endpoint
	BaseURL    string        // Base URL of an OpenAI-compatible API
	Model      string        // Model (deployment) name sent with every request
	Logger     *slog.Logger  // Logger for debugging
	Timeout    time.Duration // HTTP timeout for non-streaming calls
	RetryCount int           // Number of retries for failed requests
	RetryDelay time.Duration // Delay between retries
}
