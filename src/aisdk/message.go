package aisdk

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewUserMessage creates a user message with a single text part. If id is
// empty a fresh UUID is assigned so the message stays addressable across
// checkpoints.
func NewUserMessage(id, text string) *Message {
	if id == "" {
		id = uuid.New().String()
	}
	return &Message{
		ID:        id,
		Role:      RoleUser,
		Parts:     []Part{{Type: PartTypeText, Text: text}},
		CreatedAt: time.Now().UTC(),
	}
}

// NewSystemMessage creates a system message with a single text part.
func NewSystemMessage(text string) *Message {
	return &Message{
		ID:    uuid.New().String(),
		Role:  RoleSystem,
		Parts: []Part{{Type: PartTypeText, Text: text}},
	}
}

// NewAssistantMessage creates an assistant message from text and tool calls.
func NewAssistantMessage(id, text string, toolCalls []ToolCall) *Message {
	if id == "" {
		id = uuid.New().String()
	}
	m := &Message{
		ID:        id,
		Role:      RoleAssistant,
		ToolCalls: toolCalls,
		CreatedAt: time.Now().UTC(),
	}
	if text != "" {
		m.Parts = []Part{{Type: PartTypeText, Text: text}}
	}
	return m
}

// NewToolResultMessage creates a tool-role message answering the given call.
func NewToolResultMessage(toolCallID, toolName, content string) *Message {
	return &Message{
		ID:         uuid.New().String(),
		Role:       RoleTool,
		Parts:      []Part{{Type: PartTypeText, Text: content}},
		ToolCallID: toolCallID,
		Name:       toolName,
		CreatedAt:  time.Now().UTC(),
	}
}

// Text returns the concatenation of the message's text parts.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartTypeText {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// HasToolCalls reports whether the message carries pending tool-call requests.
func (m *Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ToolCallIDs returns the set of tool-call ids requested by the message.
func (m *Message) ToolCallIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		ids[tc.ID] = struct{}{}
	}
	return ids
}

// Clone returns a deep copy of the message. Checkpoint snapshots must never
// alias slices held by live turn state.
func (m *Message) Clone() *Message {
	out := *m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Function.Arguments != nil {
				args := make([]byte, len(tc.Function.Arguments))
				copy(args, tc.Function.Arguments)
				out.ToolCalls[i].Function.Arguments = args
			}
		}
	}
	return &out
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []*Message) []*Message {
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
