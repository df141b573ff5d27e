package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/johnsnewby/transcriberd/internal/jobqueue"
	"github.com/johnsnewby/transcriberd/internal/session"
)

func newTestServer() *Server {
	registry := session.NewRegistry()
	queue := jobqueue.New()
	return New(registry, queue)
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer()
	sess := session.New(1, "abc-123", "de", 44100)
	s.registry.Insert(sess)

	req := httptest.NewRequest(http.MethodGet, "/status/abc-123", nil)
	req.SetPathValue("uuid", "abc-123")
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		ID         int64  `json:"id"`
		ExternalID string `json:"uuid"`
		Valid      bool   `json:"valid"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ExternalID != "abc-123" || !body.Valid {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandleStatus_UnknownSession(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/status/nope", nil)
	req.SetPathValue("uuid", "nope")
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCloseSession_SeqZeroClosesEarly(t *testing.T) {
	s := newTestServer()
	sess := session.New(1, "abc", "de", 44100)
	sess.Sender = &recordingSender{}
	s.registry.Insert(sess)

	s.closeSession(context.Background(), 1)

	snap, ok := s.registry.Get(1)
	if !ok {
		t.Fatal("session missing")
	}
	if snap.HasSender {
		t.Fatal("sender should be cleared on seq==0 close")
	}
	if snap.FinalSeq != nil {
		t.Fatal("FinalSeq should not be set on seq==0 close")
	}
}

func TestCloseSession_SeqNonZeroSetsFinalSeq(t *testing.T) {
	s := newTestServer()
	sess := session.New(1, "abc", "de", 44100)
	sess.Seq = 3
	s.registry.Insert(sess)

	s.closeSession(context.Background(), 1)

	snap, ok := s.registry.Get(1)
	if !ok {
		t.Fatal("session missing")
	}
	if snap.FinalSeq == nil || *snap.FinalSeq != 2 {
		t.Fatalf("FinalSeq = %v, want 2", snap.FinalSeq)
	}
}

func TestHandleClose_UnknownSessionStillReturnsOK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/close/nope", nil)
	req.SetPathValue("uuid", "nope")
	rec := httptest.NewRecorder()
	s.handleClose(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleTranscript(t *testing.T) {
	s := newTestServer()
	sess := session.New(1, "abc", "de", 44100)
	s.registry.Insert(sess)

	req := httptest.NewRequest(http.MethodGet, "/transcript/abc", nil)
	req.SetPathValue("uuid", "abc")
	rec := httptest.NewRecorder()
	s.handleTranscript(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "" {
		t.Fatalf("expected empty transcript, got %q", rec.Body.String())
	}
}

func TestParseRateAndLangDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	if got := parseRate(req); got != 44100 {
		t.Fatalf("parseRate default = %d, want 44100", got)
	}
	if got := parseLang(req); got != "de" {
		t.Fatalf("parseLang default = %q, want de", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/chat?rate=16000&lang=en", nil)
	if got := parseRate(req); got != 16000 {
		t.Fatalf("parseRate = %d, want 16000", got)
	}
	if got := parseLang(req); got != "en" {
		t.Fatalf("parseLang = %q, want en", got)
	}
}

func TestParseRate_InvalidFallsBackToDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/chat?rate=notanumber", nil)
	if got := parseRate(req); got != 44100 {
		t.Fatalf("parseRate = %d, want 44100", got)
	}
}
