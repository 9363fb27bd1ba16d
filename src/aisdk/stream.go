package aisdk

import (
	"errors"
	"io"
	"strings"
)

// StreamCallback is a function called for each chunk in a stream.
type StreamCallback func(chunk *StreamChunk) error

// StreamToCallback reads a stream and calls the callback for each chunk.
func StreamToCallback(stream StreamInterface, callback StreamCallback) error {
	defer stream.Close()

	for {
		chunk, err := stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // End of stream
			}
			return err
		}

		if chunk == nil {
			return nil // End of stream
		}

		if err := callback(chunk); err != nil {
			return err
		}
	}
}

// StreamAggregator assembles streamed deltas into a complete assistant message.
// Tool-call fragments arrive with an index and incremental argument text; the
// aggregator stitches them back together positionally.
type StreamAggregator struct {
	ID           string
	Created      int64
	Model        string
	Content      strings.Builder
	FinishReason string

	toolCalls []ToolCall
	argBufs   []*strings.Builder
}

// NewStreamAggregator creates a new stream aggregator.
func NewStreamAggregator() *StreamAggregator {
	return &StreamAggregator{}
}

// AddChunk processes a stream chunk and updates the aggregated state.
func (a *StreamAggregator) AddChunk(chunk *StreamChunk) {
	if a.ID == "" {
		a.ID = chunk.ID
	}
	if a.Created == 0 {
		a.Created = chunk.Created
	}
	if a.Model == "" {
		a.Model = chunk.Model
	}

	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]

	if choice.Delta != nil {
		for _, p := range choice.Delta.Parts {
			if p.Type == PartTypeText {
				a.Content.WriteString(p.Text)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			// A fragment with an id opens a new call; id-less fragments
			// extend the arguments of the most recent one.
			if tc.ID != "" || len(a.toolCalls) == 0 {
				a.toolCalls = append(a.toolCalls, ToolCall{ID: tc.ID, Type: "function"})
				a.argBufs = append(a.argBufs, &strings.Builder{})
			}
			idx := len(a.toolCalls) - 1
			if tc.Function.Name != "" {
				a.toolCalls[idx].Function.Name = tc.Function.Name
			}
			if len(tc.Function.Arguments) > 0 {
				a.argBufs[idx].WriteString(string(tc.Function.Arguments))
			}
		}
	}

	if choice.FinishReason != "" {
		a.FinishReason = choice.FinishReason
	}
}

// TextDelta extracts the incremental text carried by a chunk, if any.
func TextDelta(chunk *StreamChunk) string {
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range chunk.Choices[0].Delta.Parts {
		if p.Type == PartTypeText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Message returns the aggregated assistant message.
func (a *StreamAggregator) Message() *Message {
	var calls []ToolCall
	for i, tc := range a.toolCalls {
		tc.Function.Arguments = []byte(a.argBufs[i].String())
		if len(tc.Function.Arguments) == 0 {
			tc.Function.Arguments = []byte("{}")
		}
		calls = append(calls, tc)
	}
	return NewAssistantMessage("", a.Content.String(), calls)
}

// AggregateStream reads an entire stream and returns the assembled message.
func AggregateStream(stream StreamInterface) (*Message, error) {
	aggregator := NewStreamAggregator()

	err := StreamToCallback(stream, func(chunk *StreamChunk) error {
		aggregator.AddChunk(chunk)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return aggregator.Message(), nil
}
