// Package history reconstructs a thread's branching message tree from its
// checkpoint lineage and serves the client-facing snapshot view.
package history

import (
	"encoding/json"
	"time"
)

// ContentPart is one element of a serialized message's content.
type ContentPart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	Image      string          `json:"image,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	ArgsText   string          `json:"argsText,omitempty"`
	Result     string          `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

// CustomMetadata carries the checkpoint coordinates of a message.
type CustomMetadata struct {
	CheckpointID       string `json:"checkpointId,omitempty"`
	ParentCheckpointID string `json:"parentCheckpointId,omitempty"`
}

// Metadata wraps per-message metadata in the client wire shape.
type Metadata struct {
	Custom CustomMetadata `json:"custom"`
}

// Status marks an assistant message's completion state.
type Status struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SerializedMessage is the client-facing form of a message. Tool-result
// messages never appear standalone; their content is merged into the
// originating assistant tool-call part.
type SerializedMessage struct {
	ID          string         `json:"id"`
	Role        string         `json:"role"`
	Content     []*ContentPart `json:"content"`
	CreatedAt   *time.Time     `json:"createdAt"`
	Metadata    Metadata       `json:"metadata"`
	Status      *Status        `json:"status,omitempty"`
	Attachments []any          `json:"attachments,omitempty"`
}

// RepositoryItem links a message to its tree parent.
type RepositoryItem struct {
	ParentID *string            `json:"parentId"`
	Message  *SerializedMessage `json:"message"`
}

// MessageRepository is the parent-pointer tree of every message across the
// thread's checkpoint history, including forked branches.
type MessageRepository struct {
	HeadID   *string           `json:"headId"`
	Messages []*RepositoryItem `json:"messages"`
}

// Snapshot is the full thread view served to clients.
type Snapshot struct {
	ThreadID          string               `json:"thread_id"`
	CheckpointID      string               `json:"checkpoint_id,omitempty"`
	Messages          []*SerializedMessage `json:"messages"`
	MessageRepository *MessageRepository   `json:"messageRepository"`
}
