package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/kaenova/chatd/src/aisdk"
)

// PebbleStore is a durable checkpoint store backed by a pebble database.
//
// Keys:
//
//	thread:<threadID>:ckpt:<unix_nano_padded>-<seq>  checkpoint in append order
//	thread:<threadID>:byid:<checkpointID>            same value, id lookup
type PebbleStore struct {
	db     *pebble.DB
	logger *slog.Logger

	// seq breaks ties between checkpoints written in the same nanosecond.
	seq atomic.Uint64
}

var _ Store = (*PebbleStore)(nil)

// OpenPebble opens (or creates) a pebble-backed store at the given path.
func OpenPebble(path string, logger *slog.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	logger.Info("checkpoint store opened", "path", path)
	return &PebbleStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func orderPrefix(threadID string) []byte {
	return []byte("thread:" + threadID + ":ckpt:")
}

func idKey(threadID, checkpointID string) []byte {
	return []byte("thread:" + threadID + ":byid:" + checkpointID)
}

// Append implements Store.
func (s *PebbleStore) Append(ctx context.Context, threadID, parentID string, msgs []*aisdk.Message) (string, error) {
	if s.db == nil {
		return "", ErrStorageUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	parent, err := s.GetState(ctx, threadID, parentID)
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

	data, err := json.Marshal(ckpt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	ts := ckpt.CreatedAt.UnixNano()
	n := s.seq.Add(1)
	orderKey := fmt.Sprintf("thread:%s:ckpt:%020d-%06d", threadID, ts, n)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(orderKey), data, nil); err != nil {
		return "", err
	}
	if err := batch.Set(idKey(threadID, ckpt.ID), data, nil); err != nil {
		return "", err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		appendErrors.Inc()
		s.logger.Error("checkpoint append failed", "thread_id", threadID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	appends.Inc()
	s.logger.Debug("checkpoint appended",
		"thread_id", threadID,
		"checkpoint_id", ckpt.ID,
		"parent_id", ckpt.ParentID,
		"messages", len(ckpt.Messages))
	return ckpt.ID, nil
}

// GetState implements Store.
func (s *PebbleStore) GetState(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	if s.db == nil {
		return nil, ErrStorageUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reads.Inc()

	if checkpointID != "" {
		v, closer, err := s.db.Get(idKey(threadID, checkpointID))
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		defer closer.Close()
		var ckpt Checkpoint
		if err := json.Unmarshal(v, &ckpt); err != nil {
			return nil, fmt.Errorf("corrupt checkpoint %s: %w", checkpointID, err)
		}
		return &ckpt, nil
	}

	// Head: last key under the order prefix.
	prefix := orderPrefix(threadID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return emptyHead(threadID), nil
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(iter.Value(), &ckpt); err != nil {
		return nil, fmt.Errorf("corrupt head checkpoint: %w", err)
	}
	return &ckpt, nil
}

// GetHistory implements Store.
func (s *PebbleStore) GetHistory(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	if s.db == nil {
		return nil, ErrStorageUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reads.Inc()

	prefix := orderPrefix(threadID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer iter.Close()

	var out []*Checkpoint
	for iter.First(); iter.Valid(); iter.Next() {
		var ckpt Checkpoint
		if err := json.Unmarshal(iter.Value(), &ckpt); err != nil {
			return nil, fmt.Errorf("corrupt checkpoint at %s: %w", iter.Key(), err)
		}
		out = append(out, &ckpt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return out, nil
}

// upperBound returns the smallest key greater than every key with the prefix.
func upperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
