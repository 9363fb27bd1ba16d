package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kaenova/chatd/src/attachment"
	"github.com/kaenova/chatd/src/blobstore"
	"github.com/kaenova/chatd/src/checkpoint"
	"github.com/kaenova/chatd/src/history"
	"github.com/kaenova/chatd/src/turn"
)

// DefaultOwner scopes attachments when no authentication layer is in front
// of the server.
const DefaultOwner = "default"

const shutdownTimeout = 10 * time.Second

// Options holds the dependencies a Server needs.
type Options struct {
	Addr        string
	Store       checkpoint.Store
	Machine     *turn.Machine
	Gate        *turn.Gate
	History     *history.Reconstructor
	Attachments *attachment.DB
	Blobs       *blobstore.Store
	RateLimit   float64
	RateBurst   int
	Logger      *slog.Logger
}

// Server is the HTTP front of the agent: thread runs stream NDJSON events,
// attachments and signed blob links cover multimodal input.
type Server struct {
	store       checkpoint.Store
	machine     *turn.Machine
	gate        *turn.Gate
	history     *history.Reconstructor
	attachments *attachment.DB
	blobs       *blobstore.Store
	logger      *slog.Logger

	httpSrv  *http.Server
	ln       net.Listener
	addr     string
	threadMu sync.Map // per-thread run mutex: thread ID → *sync.Mutex
	limiters *limiterPool
}

// New builds a Server and its route table.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		store:       opts.Store,
		machine:     opts.Machine,
		gate:        opts.Gate,
		history:     opts.History,
		attachments: opts.Attachments,
		blobs:       opts.Blobs,
		logger:      opts.Logger,
		addr:        opts.Addr,
		limiters:    newLimiterPool(opts.RateLimit, opts.RateBurst),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/threads", s.handleCreateThread)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/messages", s.handleThreadMessages)
	mux.HandleFunc("POST /api/v1/threads/{thread_id}/runs/stream", s.handleRunStream)
	mux.HandleFunc("POST /api/v1/threads/{thread_id}/feedback", s.handleFeedback)
	mux.HandleFunc("GET /api/v1/threads/{thread_id}/interrupt", s.handleInterruptPoll)

	mux.HandleFunc("POST /api/v1/attachments", s.handleUploadAttachment)
	mux.HandleFunc("GET /api/v1/attachments", s.handleListAttachments)
	mux.HandleFunc("GET /api/v1/attachments/{id}", s.handleGetAttachment)
	mux.HandleFunc("PATCH /api/v1/attachments/{id}/metadata", s.handleUpdateAttachmentMetadata)
	mux.HandleFunc("DELETE /api/v1/attachments/{id}", s.handleDeleteAttachment)

	mux.HandleFunc("GET /api/v1/blobs/{name}", s.handleServeBlob)

	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Handler: s.withCORS(s.withRateLimit(s.withLogging(mux))),
	}
	return s
}

// Handler exposes the assembled handler chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Listen binds the configured address without serving yet, so callers can
// log the resolved address before Serve blocks.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", "error", err)
		}
	}()

	err := s.httpSrv.Serve(s.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// lockThread returns the mutex guarding runs on a thread, creating it on
// first use.
func (s *Server) lockThread(threadID string) *sync.Mutex {
	mu, _ := s.threadMu.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
