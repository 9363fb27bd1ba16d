package modelclient

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/kaenova/chatd/src/aisdk"
)

// streamReader reads server-sent events from a chat completion stream
// and yields decoded chunks.
type streamReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ aisdk.StreamInterface = (*streamReader)(nil)

func newStreamReader(body io.ReadCloser, logger *slog.Logger) *streamReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &streamReader{
		body:    body,
		scanner: scanner,
		logger:  logger,
	}
}

// wireChunk mirrors aisdk.StreamChunk except that streamed tool call
// arguments arrive as string fragments rather than complete JSON values.
type wireChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *aisdk.Usage `json:"usage"`
}

// Read returns the next chunk from the stream, or io.EOF when the
// stream is done.
func (s *streamReader) Read() (*aisdk.StreamChunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	s.mu.Unlock()

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil, io.EOF
		}

		var wc wireChunk
		if err := json.Unmarshal([]byte(data), &wc); err != nil {
			s.logger.Debug("skipping malformed stream chunk", "error", err)
			continue
		}
		return convertWireChunk(&wc), nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close closes the underlying response body.
func (s *streamReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func convertWireChunk(wc *wireChunk) *aisdk.StreamChunk {
	chunk := &aisdk.StreamChunk{
		ID:      wc.ID,
		Object:  wc.Object,
		Created: wc.Created,
		Model:   wc.Model,
		Usage:   wc.Usage,
	}
	for _, wchoice := range wc.Choices {
		delta := &aisdk.Message{
			Role: aisdk.Role(wchoice.Delta.Role),
		}
		if wchoice.Delta.Content != "" {
			delta.Parts = []aisdk.Part{{Type: aisdk.PartTypeText, Text: wchoice.Delta.Content}}
		}
		for _, wtc := range wchoice.Delta.ToolCalls {
			tc := aisdk.ToolCall{
				ID:   wtc.ID,
				Type: wtc.Type,
				Function: aisdk.FunctionCall{
					Name: wtc.Function.Name,
				},
			}
			if wtc.Function.Arguments != "" {
				tc.Function.Arguments = json.RawMessage(wtc.Function.Arguments)
			}
			delta.ToolCalls = append(delta.ToolCalls, tc)
		}
		chunk.Choices = append(chunk.Choices, aisdk.Choice{
			Index:        wchoice.Index,
			Delta:        delta,
			FinishReason: wchoice.FinishReason,
		})
	}
	return chunk
}
