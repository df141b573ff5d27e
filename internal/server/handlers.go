package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/johnsnewby/transcriberd/internal/audit"
	"github.com/johnsnewby/transcriberd/internal/session"
)

// handleIndex renders an HTML listing of live sessions, ordered by
// creation time ascending.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snaps := s.registry.List()

	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\"><title>transcriberd sessions</title></head><body>")
	b.WriteString("<h1>live sessions</h1><table border=\"1\" cellpadding=\"4\">")
	b.WriteString("<tr><th>id</th><th>uuid</th><th>lang</th><th>rate</th><th>valid</th><th>seq</th><th>created</th><th>updated</th></tr>")
	for _, snap := range snaps {
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%s</td><td>%s</td><td>%d</td><td>%v</td><td>%d</td><td>%s</td><td>%s</td></tr>",
			snap.ID, html.EscapeString(snap.ExternalID), html.EscapeString(snap.Language), snap.SampleRate,
			snap.Valid, snap.Seq, snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), snap.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	b.WriteString("</table></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

// handleClose marks the session owning external id uuid for closure.
// Always returns 200 if the id is syntactically plausible, per spec.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("uuid")
	id, ok := s.registry.FindByExternalID(externalID)
	if !ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("unknown session"))
		return
	}
	s.closeSession(r.Context(), id)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("closing"))
}

// closeSession applies the close-path contract: seq == 0 clears the
// sender immediately; otherwise sets final_sequence = seq - 1.
func (s *Server) closeSession(ctx context.Context, id int64) {
	var finalized bool
	s.registry.Mutate(id, func(sess *session.Session) {
		if sess.Seq == 0 {
			sess.Sender = nil
			finalized = true
			return
		}
		final := sess.Seq - 1
		sess.FinalSeq = &final
	})
	if finalized {
		if snap, ok := s.registry.Get(id); ok {
			s.recordEvent(ctx, snap, audit.ClosedEarly)
		}
	}
}

// handleStatus returns a JSON snapshot of the session, omitting internal
// senders, buffer, file paths, and response store.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("uuid")
	id, ok := s.registry.FindByExternalID(externalID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	snap, ok := s.registry.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		ID         int64  `json:"id"`
		ExternalID string `json:"uuid"`
		Language   string `json:"language"`
		SampleRate int    `json:"sample_rate"`
		Valid      bool   `json:"valid"`
		Seq        int    `json:"sequence_number"`
		CreatedAt  string `json:"created_at"`
		UpdatedAt  string `json:"updated_at"`
	}{
		ID:         snap.ID,
		ExternalID: snap.ExternalID,
		Language:   snap.Language,
		SampleRate: snap.SampleRate,
		Valid:      snap.Valid,
		Seq:        snap.Seq,
		CreatedAt:  snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  snap.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// handleTranscript renders the plain-text response-store content for a
// session.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	externalID := r.PathValue("uuid")
	id, ok := s.registry.FindByExternalID(externalID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	text := s.transcriptText(id)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}

// transcriptText returns the current rendering of a session's response
// store, or "" if the session is unknown.
func (s *Server) transcriptText(id int64) string {
	var text string
	s.registry.Mutate(id, func(sess *session.Session) {
		text = sess.Store.String()
	})
	return text
}

// handleCompare renders an HTML diff between a reference transcript asset
// and the session's current transcript.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	externalID := r.PathValue("uuid")
	lang := r.PathValue("lang")

	id, ok := s.registry.FindByExternalID(externalID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	got := s.transcriptText(id)

	referencePath := "assets/" + asset + "/" + lang + ".txt"
	reference, err := os.ReadFile(referencePath)
	if err != nil {
		reference = []byte("(reference unavailable: " + err.Error() + ")")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>compare %s</title></head><body>", html.EscapeString(externalID))
	fmt.Fprintf(w, "<h1>reference: %s</h1><pre>%s</pre>", html.EscapeString(referencePath), html.EscapeString(string(reference)))
	fmt.Fprintf(w, "<h1>session %s</h1><pre>%s</pre>", html.EscapeString(externalID), html.EscapeString(got))
	w.Write([]byte("</body></html>"))
}

// parseRate parses the rate query parameter, defaulting to 44100.
func parseRate(r *http.Request) int {
	raw := r.URL.Query().Get("rate")
	if raw == "" {
		return 44100
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 44100
	}
	return n
}

// parseLang parses the lang query parameter, defaulting to "de".
func parseLang(r *http.Request) string {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		return "de"
	}
	return lang
}
