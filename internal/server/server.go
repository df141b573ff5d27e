// Package server implements the HTTP and bidirectional message-stream
// surface: connection upgrade, audio ingest and silence-triggered
// dispatch, session close, status, transcript, and comparison endpoints.
package server

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/johnsnewby/transcriberd/internal/audit"
	"github.com/johnsnewby/transcriberd/internal/health"
	"github.com/johnsnewby/transcriberd/internal/jobqueue"
	"github.com/johnsnewby/transcriberd/internal/observe"
	"github.com/johnsnewby/transcriberd/internal/session"
	"github.com/johnsnewby/transcriberd/internal/wav"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed assets
var embeddedAssets embed.FS

// defaultIdleTimeout is the per-message receive timeout on the audio
// stream, per spec.
const defaultIdleTimeout = 15 * time.Second

// Server owns the HTTP mux and every piece of state a request handler
// needs: the session registry, the job queue, recording directory, and
// observability handles.
type Server struct {
	mux *http.ServeMux

	registry      *session.Registry
	queue         *jobqueue.Queue
	ledger        audit.Ledger
	metrics       *observe.Metrics
	recordingsDir string
	idleTimeout   time.Duration
	health        *health.Handler

	nextID atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithRecordingsDir sets the directory under which per-session WAV and
// transcript files are written. Empty means persistence is disabled.
func WithRecordingsDir(dir string) Option {
	return func(s *Server) { s.recordingsDir = dir }
}

// WithLedger sets the audit ledger. Defaults to a no-op ledger.
func WithLedger(l audit.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithMetrics sets the metrics handle used to record ingest/session
// gauges. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithIdleTimeout overrides the per-message receive timeout. Defaults to
// 15 seconds.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// WithHealth registers a health.Handler serving /healthz and /readyz.
// Without this option those routes are not mounted.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// New constructs a Server and registers every route on its mux.
func New(registry *session.Registry, queue *jobqueue.Queue, opts ...Option) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		registry:    registry,
		queue:       queue,
		ledger:      audit.NewNoop(),
		metrics:     observe.DefaultMetrics(),
		idleTimeout: defaultIdleTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

// Handler returns the http.Handler to mount, wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.metrics)(s.mux)
}

// routes registers every endpoint named in the wire surface.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /chat", s.handleChat)
	s.mux.HandleFunc("POST /close/{uuid}", s.handleClose)
	s.mux.HandleFunc("GET /status/{uuid}", s.handleStatus)
	s.mux.HandleFunc("GET /compare/{asset}/{uuid}/{lang}", s.handleCompare)
	s.mux.HandleFunc("GET /transcript/{uuid}", s.handleTranscript)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	if s.health != nil {
		s.mux.HandleFunc("GET /healthz", s.health.Healthz)
		s.mux.HandleFunc("GET /readyz", s.health.Readyz)
	}

	if sub, err := fs.Sub(embeddedAssets, "assets"); err == nil {
		fileServer := http.FileServerFS(sub)
		s.mux.Handle("GET /assets/", http.StripPrefix("/assets/", fileServer))
		s.mux.Handle("GET /", fileServer)
	}
	if s.recordingsDir != "" {
		s.mux.Handle("GET /recordings/", http.StripPrefix("/recordings/", http.FileServer(http.Dir(s.recordingsDir))))
	}
}

// nextSessionID returns a fresh, process-unique internal id.
func (s *Server) nextSessionID() int64 {
	return s.nextID.Add(1)
}

// newExternalID returns a fresh random 128-bit external identifier.
func newExternalID() string {
	return uuid.NewString()
}

// recordingPath returns the WAV path for a session, or "" when persistence
// is disabled.
func (s *Server) recordingPath(externalID string) string {
	if s.recordingsDir == "" {
		return ""
	}
	return s.recordingsDir + "/" + externalID + "/" + externalID + ".wav"
}

// transcriptPath returns the transcript path for a session, or "" when
// persistence is disabled.
func (s *Server) transcriptPath(externalID string) string {
	if s.recordingsDir == "" {
		return ""
	}
	return s.recordingsDir + "/" + externalID + "/" + externalID + ".txt"
}

// persistAudio appends samples to the session's recording file. Errors are
// logged and never interrupt streaming, per the storage-error taxonomy.
func persistAudio(path string, sampleRate int, samples []float32) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("server: failed to create recording directory", "path", path, "error", err)
		return
	}
	if err := wav.AppendSamples(path, sampleRate, samples); err != nil {
		slog.Error("server: failed to persist audio", "path", path, "error", err)
	}
}

// recordEvent best-effort appends a lifecycle event to the audit ledger.
func (s *Server) recordEvent(ctx context.Context, snap session.Snapshot, kind audit.EventKind) {
	ev := audit.Event{
		SessionID:  snap.ID,
		ExternalID: snap.ExternalID,
		Language:   snap.Language,
		SampleRate: snap.SampleRate,
		Kind:       kind,
		At:         time.Now(),
	}
	if err := s.ledger.RecordEvent(ctx, ev); err != nil {
		slog.Warn("server: failed to record audit event", "kind", kind, "error", err)
	}
}
