package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kaenova/chatd/src/aisdk"
	"github.com/kaenova/chatd/src/checkpoint"
	"github.com/kaenova/chatd/src/turn"
)

// clientPart is one content element of an incoming user message.
type clientPart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// clientAttachment carries pre-resolved attachment content, typically
// chatbot:// image references.
type clientAttachment struct {
	Content []clientPart `json:"content"`
}

// clientMessage is the user message payload of a run request. Content is
// either a plain string or a list of parts.
type clientMessage struct {
	Content     json.RawMessage    `json:"content"`
	Attachments []clientAttachment `json:"attachments"`
}

type runRequest struct {
	Message         *clientMessage `json:"message"`
	ParentMessageID string         `json:"parent_message_id"`
	SourceMessageID string         `json:"source_message_id"`
}

type feedbackRequest struct {
	Decision json.RawMessage `json:"decision"`
}

// toMessage converts the wire payload into a user message. An edit reuses
// the source message id so the checkpoint merge replaces the original.
func (m *clientMessage) toMessage(id string) *aisdk.Message {
	var parts []aisdk.Part

	var text string
	if err := json.Unmarshal(m.Content, &text); err == nil {
		parts = append(parts, aisdk.Part{Type: aisdk.PartTypeText, Text: text})
	} else {
		var items []clientPart
		if err := json.Unmarshal(m.Content, &items); err == nil {
			for _, item := range items {
				switch item.Type {
				case "text":
					parts = append(parts, aisdk.Part{Type: aisdk.PartTypeText, Text: item.Text})
				case "image":
					if item.Image != "" {
						parts = append(parts, aisdk.Part{Type: aisdk.PartTypeImage, Image: item.Image})
					}
				}
			}
		}
	}

	for _, att := range m.Attachments {
		for _, item := range att.Content {
			if item.Type == "image" && item.Image != "" {
				parts = append(parts, aisdk.Part{Type: aisdk.PartTypeImage, Image: item.Image})
			}
		}
	}

	if len(parts) == 0 {
		parts = []aisdk.Part{{Type: aisdk.PartTypeText, Text: ""}}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &aisdk.Message{
		ID:        id,
		Role:      aisdk.RoleUser,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"thread_id": uuid.NewString()})
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	snapshot, err := s.history.Snapshot(r.Context(), threadID)
	if err != nil {
		s.logger.Error("snapshot failed", "thread_id", threadID, "error", err)
		http.Error(w, "failed to load thread", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mu := s.lockThread(threadID)
	if !mu.TryLock() {
		http.Error(w, "a run is already in progress for this thread", http.StatusConflict)
		return
	}
	defer mu.Unlock()

	var parentCkpt, attachAfter string
	var err error
	if req.SourceMessageID != "" && req.Message != nil {
		parentCkpt, err = s.history.ResolveEditCheckpoint(r.Context(), threadID, req.SourceMessageID)
	} else if req.ParentMessageID != "" {
		parentCkpt, err = s.history.ResolveParentCheckpoint(r.Context(), threadID, req.ParentMessageID)
		attachAfter = req.ParentMessageID
	}
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		s.logger.Error("checkpoint resolution failed", "thread_id", threadID, "error", err)
		http.Error(w, "failed to resolve checkpoint", http.StatusInternalServerError)
		return
	}

	var msg *aisdk.Message
	if req.Message != nil {
		msg = req.Message.toMessage(req.SourceMessageID)
	}

	s.streamRun(w, r, threadID, func(ctx context.Context, sink turn.EventSink) {
		in := turn.RunInput{
			ThreadID:             threadID,
			ParentCheckpointID:   parentCkpt,
			Message:              msg,
			AttachAfterMessageID: attachAfter,
		}
		if _, err := s.machine.Run(ctx, in, sink); err != nil {
			s.logger.Warn("run failed", "thread_id", threadID, "error", err)
		}
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mu := s.lockThread(threadID)
	if !mu.TryLock() {
		http.Error(w, "a run is already in progress for this thread", http.StatusConflict)
		return
	}
	defer mu.Unlock()

	head, err := s.store.GetState(r.Context(), threadID, "")
	if err != nil {
		s.logger.Error("head load failed", "thread_id", threadID, "error", err)
		http.Error(w, "failed to load thread", http.StatusInternalServerError)
		return
	}
	if _, suspended := turn.Suspension(head.Messages, s.gate); !suspended {
		http.Error(w, "no pending approval for this thread", http.StatusConflict)
		return
	}

	s.streamRun(w, r, threadID, func(ctx context.Context, sink turn.EventSink) {
		if _, err := s.machine.Resume(ctx, threadID, req.Decision, sink); err != nil {
			s.logger.Warn("resume failed", "thread_id", threadID, "error", err)
		}
	})
}

func (s *Server) handleInterruptPoll(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	head, err := s.store.GetState(r.Context(), threadID, "")
	if err != nil {
		s.logger.Error("head load failed", "thread_id", threadID, "error", err)
		http.Error(w, "failed to load thread", http.StatusInternalServerError)
		return
	}

	payload, suspended := turn.Suspension(head.Messages, s.gate)
	resp := map[string]any{"interrupted": suspended}
	if suspended {
		resp["checkpoint_id"] = head.ID
		resp["payload"] = payload
	}
	writeJSON(w, http.StatusOK, resp)
}
