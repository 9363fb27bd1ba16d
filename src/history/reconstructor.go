package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaenova/chatd/src/aisdk"
	"github.com/kaenova/chatd/src/checkpoint"
)

// Reconstructor builds client-facing thread views from checkpoint history.
type Reconstructor struct {
	store  checkpoint.Store
	logger *slog.Logger
}

func NewReconstructor(store checkpoint.Store, logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{store: store, logger: logger}
}

// Snapshot returns the head state of the thread plus the message repository
// spanning every branch in its checkpoint history. An empty thread yields a
// snapshot with no checkpoint id and empty collections.
func (r *Reconstructor) Snapshot(ctx context.Context, threadID string) (*Snapshot, error) {
	hist, err := r.loadHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ThreadID:          threadID,
		Messages:          []*SerializedMessage{},
		MessageRepository: &MessageRepository{Messages: []*RepositoryItem{}},
	}
	if len(hist) == 0 {
		return snap, nil
	}

	idx := buildIndexes(hist)
	head := hist[len(hist)-1]
	snap.CheckpointID = head.ID
	snap.Messages = serializeMessages(head.Messages, idx)
	snap.MessageRepository = buildRepository(hist, idx, snap.Messages)

	r.logger.Debug("built thread snapshot",
		"thread_id", threadID,
		"checkpoint_id", head.ID,
		"messages", len(snap.Messages),
		"repository_size", len(snap.MessageRepository.Messages))
	return snap, nil
}

// ResolveEditCheckpoint returns the checkpoint to rerun from when the user
// edits sourceMessageID. That is the parent of the checkpoint that introduced
// the message, so the rerun replaces it; for a thread-opening message with no
// parent the introducing checkpoint itself is used, and the edit replaces the
// message in place by id.
func (r *Reconstructor) ResolveEditCheckpoint(ctx context.Context, threadID, sourceMessageID string) (string, error) {
	idx, err := r.loadIndexes(ctx, threadID)
	if err != nil {
		return "", err
	}
	containing, ok := idx.containing[sourceMessageID]
	if !ok {
		return "", fmt.Errorf("edit source message %q: %w", sourceMessageID, checkpoint.ErrNotFound)
	}
	if parent := idx.parent[sourceMessageID]; parent != "" {
		return parent, nil
	}
	return containing, nil
}

// ResolveParentCheckpoint returns the checkpoint that introduced
// parentMessageID. Regenerating continues from that checkpoint, discarding
// everything after the message.
func (r *Reconstructor) ResolveParentCheckpoint(ctx context.Context, threadID, parentMessageID string) (string, error) {
	idx, err := r.loadIndexes(ctx, threadID)
	if err != nil {
		return "", err
	}
	containing, ok := idx.containing[parentMessageID]
	if !ok {
		return "", fmt.Errorf("parent message %q: %w", parentMessageID, checkpoint.ErrNotFound)
	}
	return containing, nil
}

func (r *Reconstructor) loadHistory(ctx context.Context, threadID string) ([]*checkpoint.Checkpoint, error) {
	hist, err := r.store.GetHistory(ctx, threadID, 0)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint history: %w", err)
	}
	fillMissingIDs(hist)
	return hist, nil
}

func (r *Reconstructor) loadIndexes(ctx context.Context, threadID string) (*indexes, error) {
	hist, err := r.loadHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return buildIndexes(hist), nil
}

// indexes maps each message id to the checkpoint that first introduced it and
// to that checkpoint's parent.
type indexes struct {
	containing map[string]string
	parent     map[string]string
}

// buildIndexes walks the history oldest first so the introducing checkpoint
// wins for every message. The last message of each checkpoint is recorded
// before the rest because it is the one the checkpoint's append produced.
func buildIndexes(hist []*checkpoint.Checkpoint) *indexes {
	idx := &indexes{
		containing: make(map[string]string),
		parent:     make(map[string]string),
	}
	for _, ck := range hist {
		if n := len(ck.Messages); n > 0 {
			idx.record(ck, ck.Messages[n-1])
		}
		for _, m := range ck.Messages {
			idx.record(ck, m)
		}
	}
	return idx
}

func (idx *indexes) record(ck *checkpoint.Checkpoint, m *aisdk.Message) {
	if m.ID == "" {
		return
	}
	if _, ok := idx.containing[m.ID]; ok {
		return
	}
	idx.containing[m.ID] = ck.ID
	idx.parent[m.ID] = ck.ParentID
}

// fillMissingIDs assigns deterministic ids to messages persisted without one.
// The id is derived from the introducing checkpoint, the message's position,
// and a digest of its content, so repeated reconstructions agree. Later
// checkpoints that carry the same message at the same position reuse the id
// assigned at its first appearance.
func fillMissingIDs(hist []*checkpoint.Checkpoint) {
	assigned := make(map[string]string)
	for _, ck := range hist {
		for i, m := range ck.Messages {
			if m.ID != "" {
				continue
			}
			key := fmt.Sprintf("%d|%s|%s", i, m.Role, contentDigest(m))
			id, ok := assigned[key]
			if !ok {
				id = syntheticID(ck.ID, i, m)
				assigned[key] = id
			}
			m.ID = id
		}
	}
}

func syntheticID(checkpointID string, position int, m *aisdk.Message) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s", checkpointID, position, m.Role, contentDigest(m))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func contentDigest(m *aisdk.Message) string {
	var b strings.Builder
	b.WriteString(m.Text())
	for _, tc := range m.ToolCalls {
		b.WriteString(tc.ID)
		b.WriteString(tc.Function.Name)
		b.Write(tc.Function.Arguments)
	}
	b.WriteString(m.ToolCallID)
	return b.String()
}

// serializeMessages converts a checkpoint's message list to the client wire
// shape. Tool-result messages are folded into the matching tool-call part of
// the assistant message that requested them and never appear standalone.
func serializeMessages(msgs []*aisdk.Message, idx *indexes) []*SerializedMessage {
	results := make(map[string]*aisdk.Message)
	for _, m := range msgs {
		if m.Role == aisdk.RoleTool && m.ToolCallID != "" {
			if _, ok := results[m.ToolCallID]; !ok {
				results[m.ToolCallID] = m
			}
		}
	}

	out := make([]*SerializedMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == aisdk.RoleTool || !m.Role.Valid() {
			continue
		}
		out = append(out, serializeMessage(m, results, idx))
	}
	return out
}

func serializeMessage(m *aisdk.Message, results map[string]*aisdk.Message, idx *indexes) *SerializedMessage {
	sm := &SerializedMessage{
		ID:      m.ID,
		Role:    string(m.Role),
		Content: []*ContentPart{},
		Metadata: Metadata{Custom: CustomMetadata{
			CheckpointID:       idx.containing[m.ID],
			ParentCheckpointID: idx.parent[m.ID],
		}},
	}
	if !m.CreatedAt.IsZero() {
		t := m.CreatedAt
		sm.CreatedAt = &t
	}

	for _, p := range m.Parts {
		switch p.Type {
		case aisdk.PartTypeText:
			sm.Content = append(sm.Content, &ContentPart{Type: "text", Text: p.Text})
		case aisdk.PartTypeImage:
			sm.Content = append(sm.Content, &ContentPart{Type: "image", Image: p.Image})
		}
	}

	switch m.Role {
	case aisdk.RoleAssistant:
		sm.Status = &Status{Type: "complete", Reason: "unknown"}
		for _, tc := range m.ToolCalls {
			part := &ContentPart{
				Type:       "tool-call",
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Args:       tc.Function.Arguments,
				ArgsText:   string(tc.Function.Arguments),
			}
			if res, ok := results[tc.ID]; ok {
				part.Result = res.Text()
				part.IsError = isErrorResult(res)
			}
			sm.Content = append(sm.Content, part)
		}
	case aisdk.RoleUser:
		sm.Attachments = []any{}
	}
	return sm
}

// isErrorResult reports whether a tool-result message records a failed
// execution. Failed tool runs persist their result with this prefix.
func isErrorResult(m *aisdk.Message) bool {
	return strings.HasPrefix(m.Text(), "Error:")
}

// buildRepository collects every message across all branches into a
// parent-pointer tree. A message's parent is whichever message preceded it in
// the checkpoint that first introduced it, so siblings produced by edits and
// regenerations share a parent.
func buildRepository(hist []*checkpoint.Checkpoint, idx *indexes, headMessages []*SerializedMessage) *MessageRepository {
	repo := &MessageRepository{Messages: []*RepositoryItem{}}
	seen := make(map[string]struct{})

	for _, ck := range hist {
		serialized := serializeMessages(ck.Messages, idx)
		var prevID string
		for _, sm := range serialized {
			if _, ok := seen[sm.ID]; !ok {
				seen[sm.ID] = struct{}{}
				item := &RepositoryItem{Message: sm}
				if prevID != "" {
					pid := prevID
					item.ParentID = &pid
				}
				repo.Messages = append(repo.Messages, item)
			}
			prevID = sm.ID
		}
	}

	if len(headMessages) > 0 {
		id := headMessages[len(headMessages)-1].ID
		repo.HeadID = &id
	}
	return repo
}
