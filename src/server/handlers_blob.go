package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kaenova/chatd/src/blobstore"
)

// handleServeBlob redeems a signed blob link. The signature covers the blob
// name and expiry, so the URL is self-authorizing.
func (s *Server) handleServeBlob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	expires, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
	if err != nil {
		http.Error(w, "invalid expiry", http.StatusBadRequest)
		return
	}
	sig := r.URL.Query().Get("sig")

	if err := s.blobs.Verify(name, expires, sig); err != nil {
		switch {
		case errors.Is(err, blobstore.ErrLinkExpired):
			http.Error(w, "link expired", http.StatusForbidden)
		case errors.Is(err, blobstore.ErrBadSignature):
			http.Error(w, "invalid signature", http.StatusForbidden)
		default:
			http.Error(w, "invalid blob name", http.StatusBadRequest)
		}
		return
	}

	data, err := s.blobs.Get(name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			http.Error(w, "blob not found", http.StatusNotFound)
			return
		}
		s.logger.Error("blob read failed", "name", name, "error", err)
		http.Error(w, "failed to read blob", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
