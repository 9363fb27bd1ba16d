// Package checkpoint persists conversation state as an append-only tree of
// checkpoints. Each checkpoint carries the full message list at that point
// plus a link to its parent, so any branch can be replayed or forked.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/kaenova/chatd/src/aisdk"
)

var (
	// ErrNotFound indicates the thread or checkpoint does not exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStorageUnavailable indicates the backing store is not usable.
	ErrStorageUnavailable = errors.New("checkpoint storage unavailable")
)

// Checkpoint is an immutable snapshot of a thread's message state.
type Checkpoint struct {
	ID        string           `json:"id"`
	ThreadID  string           `json:"thread_id"`
	ParentID  string           `json:"parent_id,omitempty"`
	Messages  []*aisdk.Message `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	out := &Checkpoint{
		ID:        c.ID,
		ThreadID:  c.ThreadID,
		ParentID:  c.ParentID,
		Messages:  aisdk.CloneMessages(c.Messages),
		CreatedAt: c.CreatedAt,
	}
	return out
}

// Store is the strategy interface over checkpoint backends.
type Store interface {
	// Append creates a new checkpoint whose state is the parent's messages
	// merged with msgs (see MergeMessages). An empty parentID appends to
	// the current head. The new checkpoint becomes the thread head.
	// Returns the new checkpoint id.
	Append(ctx context.Context, threadID, parentID string, msgs []*aisdk.Message) (string, error)

	// GetState returns the checkpoint with the given id, or the head when
	// checkpointID is empty. A thread with no checkpoints yields an empty
	// head rather than ErrNotFound.
	GetState(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// GetHistory returns the thread's checkpoints oldest first. A positive
	// limit caps the number returned, keeping the oldest entries.
	GetHistory(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)

	// Close releases any resources held by the store.
	Close() error
}

// emptyHead is the synthetic state of a thread that has no checkpoints yet.
func emptyHead(threadID string) *Checkpoint {
	return &Checkpoint{ThreadID: threadID}
}

// MergeMessages combines a checkpoint's message list with incoming messages.
// An incoming message whose id already appears in the base replaces that
// message and drops everything after it, which is how an edit forks a
// branch at the edited point. All other messages append in order. The
// inputs are not mutated.
func MergeMessages(base, incoming []*aisdk.Message) []*aisdk.Message {
	out := aisdk.CloneMessages(base)
	for _, m := range incoming {
		if m.ID != "" {
			if idx := indexByID(out, m.ID); idx >= 0 {
				out = append(out[:idx], m.Clone())
				continue
			}
		}
		out = append(out, m.Clone())
	}
	return out
}

func indexByID(msgs []*aisdk.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
