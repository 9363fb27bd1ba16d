package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaenova/chatd/src/aisdk"
)

// MemoryStore keeps checkpoints in memory. It backs tests and deployments
// without a data directory; state is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint // append order
	byID    map[string]*Checkpoint   // threadID + "/" + checkpointID
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string][]*Checkpoint),
		byID:    make(map[string]*Checkpoint),
	}
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, threadID, parentID string, msgs []*aisdk.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.stateLocked(threadID, parentID)
	if err != nil {
		return "", err
	}

	ckpt := &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		ParentID:  parent.ID,
		Messages:  MergeMessages(parent.Messages, msgs),
		CreatedAt: time.Now().UTC(),
	}
	s.threads[threadID] = append(s.threads[threadID], ckpt)
	s.byID[threadID+"/"+ckpt.ID] = ckpt
	return ckpt.ID, nil
}

// GetState implements Store.
func (s *MemoryStore) GetState(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ckpt, err := s.stateLocked(threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	return ckpt.Clone(), nil
}

func (s *MemoryStore) stateLocked(threadID, checkpointID string) (*Checkpoint, error) {
	if checkpointID == "" {
		chain := s.threads[threadID]
		if len(chain) == 0 {
			return emptyHead(threadID), nil
		}
		return chain[len(chain)-1], nil
	}
	ckpt, ok := s.byID[threadID+"/"+checkpointID]
	if !ok {
		return nil, ErrNotFound
	}
	return ckpt, nil
}

// GetHistory implements Store.
func (s *MemoryStore) GetHistory(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.threads[threadID]
	n := len(chain)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Checkpoint, 0, n)
	for _, ckpt := range chain[:n] {
		out = append(out, ckpt.Clone())
	}
	return out, nil
}
