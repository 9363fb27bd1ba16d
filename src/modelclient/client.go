package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kaenova/chatd/src/aisdk"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultTimeout    = 120 * time.Second
	defaultRetryCount = 3
	defaultRetryDelay = time.Second
)

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	retryCount int
	retryDelay time.Duration
}

var _ aisdk.ModelClient = (*Client)(nil)

// NewClient creates a new client from the given config.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = defaultRetryCount
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	// No client-wide Timeout: it would also cut off long-lived streaming
	// bodies. Blocking calls bound themselves per request; streams are
	// bounded by the caller's context.
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		logger:     cfg.Logger,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// GetModelInfo returns the model this client sends requests for.
func (c *Client) GetModelInfo() *aisdk.ModelInfo {
	return &aisdk.ModelInfo{ID: c.model, Name: c.model}
}

// CreateChatCompletion sends a blocking chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, request *aisdk.ChatCompletionRequest) (*aisdk.ChatCompletionResponse, error) {
	ctx, cancel := c.blockingContext(ctx)
	defer cancel()

	if request.Model == "" {
		request.Model = c.model
	}
	request.Stream = false

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(resp)
	}

	var completion aisdk.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &completion, nil
}

// CreateChatCompletionStream sends a streaming chat completion request and
// returns a stream of chunks.
func (c *Client) CreateChatCompletionStream(ctx context.Context, request *aisdk.ChatCompletionRequest) (aisdk.StreamInterface, error) {
	if request.Model == "" {
		request.Model = c.model
	}
	request.Stream = true

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.handleError(resp)
	}

	return newStreamReader(resp.Body, c.logger), nil
}

// ListModels fetches the models available behind the configured endpoint.
func (c *Client) ListModels(ctx context.Context) ([]aisdk.ModelInfo, error) {
	ctx, cancel := c.blockingContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.doRequestWithRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(resp)
	}

	var listing struct {
		Data []aisdk.ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return listing.Data, nil
}

// blockingContext bounds a non-streaming call with the configured timeout.
func (c *Client) blockingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	return req, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// doRequestWithRetry retries transient failures with linear backoff.
// Client errors (4xx) are returned immediately.
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body.Close()
	}

	for i := 0; i <= c.retryCount; i++ {
		if i > 0 {
			delay := c.retryDelay * time.Duration(i)
			c.logger.Debug("retrying request", "attempt", i, "delay", delay)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}

		attempt := req.Clone(req.Context())
		if bodyBytes != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.httpClient.Do(attempt)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if i == c.retryCount {
			return resp, nil
		}
		lastErr = c.handleError(resp)
		resp.Body.Close()
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.retryCount, lastErr)
}

// handleError reads an error response body and converts it to an APIError.
func (c *Client) handleError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error response: %v", err),
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Type:       errResp.Error.Type,
		Message:    errResp.Error.Message,
		Code:       errResp.Error.Code,
		Param:      errResp.Error.Param,
		RequestID:  resp.Header.Get("X-Request-Id"),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			apiErr.Message = fmt.Sprintf("%s (retry after %s)", apiErr.Message, ra)
		}
	}
	return apiErr
}
