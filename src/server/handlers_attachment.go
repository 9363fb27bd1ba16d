package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaenova/chatd/src/attachment"
	"github.com/kaenova/chatd/src/blobstore"
)

// maxUploadBytes bounds attachment uploads.
const maxUploadBytes = 32 << 20

type attachmentUploadResponse struct {
	URL      string         `json:"url"`
	Filename string         `json:"filename"`
	Message  string         `json:"message"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type attachmentDetailResponse struct {
	ID       string         `json:"id"`
	Filename string         `json:"filename"`
	BlobURL  string         `json:"blob_url"`
	UserID   string         `json:"userid"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type attachmentListItem struct {
	ID        string         `json:"id"`
	Filename  string         `json:"filename"`
	CreatedAt string         `json:"created_at"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	URL       string         `json:"url"`
}

// blobName builds a flat blob key for an upload. Path separators in the
// client filename are stripped so the name stays valid for the store.
func blobName(id, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "unknown"
	}
	return fmt.Sprintf("%s_%s", id, base)
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "unknown"
	}

	id := uuid.NewString()
	name := blobName(id, header.Filename)
	if err := s.blobs.Put(name, data); err != nil {
		s.logger.Error("blob upload failed", "name", name, "error", err)
		http.Error(w, "failed to store attachment", http.StatusInternalServerError)
		return
	}

	att := &attachment.Attachment{
		ID:          id,
		Owner:       DefaultOwner,
		Filename:    header.Filename,
		BlobName:    name,
		ContentType: contentType,
	}
	if err := attachment.Create(r.Context(), s.attachments.DB(), att); err != nil {
		s.logger.Error("attachment record failed", "id", id, "error", err)
		http.Error(w, "failed to store attachment", http.StatusInternalServerError)
		return
	}

	s.logger.Info("attachment uploaded", "id", id, "filename", att.Filename, "type", contentType)
	writeJSON(w, http.StatusOK, attachmentUploadResponse{
		URL:      att.Ref(),
		Filename: att.Filename,
		Message:  "Attachment uploaded successfully",
		Type:     contentType,
	})
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	att, ok := s.loadAttachment(w, r)
	if !ok {
		return
	}

	blobURL, err := s.blobs.SignedURL(att.BlobName)
	if err != nil {
		s.logger.Error("signing blob link failed", "id", att.ID, "error", err)
		http.Error(w, "failed to sign attachment link", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, attachmentDetailResponse{
		ID:       att.ID,
		Filename: att.Filename,
		BlobURL:  blobURL,
		UserID:   att.Owner,
		Type:     att.ContentType,
		Metadata: att.Metadata,
	})
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	atts, err := attachment.ListByOwner(r.Context(), s.attachments.DB(), DefaultOwner)
	if err != nil {
		s.logger.Error("attachment list failed", "error", err)
		http.Error(w, "failed to list attachments", http.StatusInternalServerError)
		return
	}

	items := make([]attachmentListItem, 0, len(atts))
	for _, att := range atts {
		items = append(items, attachmentListItem{
			ID:        att.ID,
			Filename:  att.Filename,
			CreatedAt: att.CreatedAt.Format(time.RFC3339),
			Type:      att.ContentType,
			Metadata:  att.Metadata,
			URL:       att.Ref(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userid":      DefaultOwner,
		"count":       len(items),
		"attachments": items,
	})
}

func (s *Server) handleUpdateAttachmentMetadata(w http.ResponseWriter, r *http.Request) {
	att, ok := s.loadAttachment(w, r)
	if !ok {
		return
	}

	var metadata map[string]any
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		http.Error(w, "invalid metadata body", http.StatusBadRequest)
		return
	}

	if err := attachment.UpdateMetadata(r.Context(), s.attachments.DB(), DefaultOwner, att.ID, metadata); err != nil {
		s.logger.Error("metadata update failed", "id", att.ID, "error", err)
		http.Error(w, "failed to update metadata", http.StatusInternalServerError)
		return
	}

	blobURL, err := s.blobs.SignedURL(att.BlobName)
	if err != nil {
		s.logger.Error("signing blob link failed", "id", att.ID, "error", err)
		http.Error(w, "failed to sign attachment link", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       att.ID,
		"filename": att.Filename,
		"blob_url": blobURL,
		"userid":   att.Owner,
		"type":     att.ContentType,
		"metadata": metadata,
		"message":  "Metadata updated successfully",
	})
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	att, ok := s.loadAttachment(w, r)
	if !ok {
		return
	}

	if err := s.blobs.Delete(att.BlobName); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Error("blob delete failed", "name", att.BlobName, "error", err)
		http.Error(w, "failed to delete attachment", http.StatusInternalServerError)
		return
	}
	if err := attachment.Delete(r.Context(), s.attachments.DB(), DefaultOwner, att.ID); err != nil {
		s.logger.Error("attachment delete failed", "id", att.ID, "error", err)
		http.Error(w, "failed to delete attachment", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Attachment deleted successfully"})
}

// loadAttachment fetches the attachment named in the path, writing the error
// response itself when missing.
func (s *Server) loadAttachment(w http.ResponseWriter, r *http.Request) (*attachment.Attachment, bool) {
	id := r.PathValue("id")
	att, err := attachment.GetByID(r.Context(), s.attachments.DB(), DefaultOwner, id)
	if err != nil {
		s.logger.Error("attachment lookup failed", "id", id, "error", err)
		http.Error(w, "failed to load attachment", http.StatusInternalServerError)
		return nil, false
	}
	if att == nil {
		http.Error(w, fmt.Sprintf("attachment not found: %s", id), http.StatusNotFound)
		return nil, false
	}
	return att, true
}

// contentTypeFor resolves a response content type for a blob download.
func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
