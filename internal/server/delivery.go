package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/johnsnewby/transcriberd/internal/audit"
	"github.com/johnsnewby/transcriberd/internal/session"
	"github.com/johnsnewby/transcriberd/internal/transcript"
)

// translationFrame is the wire shape of one outbound transcription segment,
// per the wire surface's text-frame contract.
type translationFrame struct {
	SequenceNumber int    `json:"sequence_number"`
	SegmentNumber  int    `json:"segment_number"`
	NumSegments    int    `json:"num_segments"`
	SegmentStart   int64  `json:"segment_start"`
	SegmentEnd     int64  `json:"segment_end"`
	Translation    string `json:"translation"`
	UUID           string `json:"uuid"`
}

// Delivery implements worker.Delivery and remote.Delivery: it appends a
// response to the owning session's transcript store, pushes the
// corresponding text frame to the client, and finalizes the session once the
// response for its final sequence number has arrived.
type Delivery struct {
	registry *session.Registry
	ledger   audit.Ledger
}

// NewDelivery returns a Delivery bound to registry and ledger, ready to pass
// to worker.Pool.Start or remote.Worker.Run.
func NewDelivery(registry *session.Registry, ledger audit.Ledger) *Delivery {
	return &Delivery{registry: registry, ledger: ledger}
}

// Deliver records resp against the session, forwards it to the client, and
// finalizes the session if resp completes its final sequence: per spec.md
// §4.6 item 4, finalization writes the transcript file, drops the outbound
// sender, and marks the session invalid.
//
// A session that no longer exists silently discards the response — the
// client disconnected before inference finished.
func (d *Delivery) Deliver(ctx context.Context, sessionID int64, resp transcript.Response) error {
	var (
		sender         session.Sender
		externalID     string
		transcriptPath string
		transcriptText string
		finalized      bool
	)
	ok := d.registry.Mutate(sessionID, func(sess *session.Session) {
		sess.Store.Add(resp)
		sender = sess.Sender
		externalID = sess.ExternalID
		// Only the last segment of the final sequence number triggers
		// finalization: gating on sess.Valid makes it exactly-once, and
		// waiting for the last segment (rather than the first) keeps the
		// sender alive so every pending segment of the final utterance
		// still reaches the client before it is dropped.
		if sess.Valid && sess.FinalSeq != nil && resp.SequenceNumber >= *sess.FinalSeq && resp.SegmentNumber == resp.NumSegments-1 {
			finalized = true
			transcriptPath = sess.TranscriptPath
			transcriptText = sess.Store.String()
			sess.Sender = nil
			sess.Valid = false
		}
	})
	if !ok {
		return nil
	}

	if sender != nil {
		frame := translationFrame{
			SequenceNumber: resp.SequenceNumber,
			SegmentNumber:  resp.SegmentNumber,
			NumSegments:    resp.NumSegments,
			SegmentStart:   resp.SegmentStart,
			SegmentEnd:     resp.SegmentEnd,
			Translation:    resp.Text,
			UUID:           externalID,
		}
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if err := sender.Send(payload); err != nil {
			d.registry.Mutate(sessionID, func(sess *session.Session) {
				sess.Sender = nil
				sess.Valid = false
			})
			return err
		}
	}

	if finalized {
		if transcriptPath != "" {
			if err := os.MkdirAll(filepath.Dir(transcriptPath), 0o755); err != nil {
				slog.Error("server: failed to create transcript directory", "path", transcriptPath, "error", err)
			} else if err := os.WriteFile(transcriptPath, []byte(transcriptText), 0o644); err != nil {
				slog.Error("server: failed to write transcript file", "path", transcriptPath, "error", err)
			}
		}
		if snap, ok := d.registry.Get(sessionID); ok {
			ev := audit.Event{
				SessionID:  snap.ID,
				ExternalID: snap.ExternalID,
				Language:   snap.Language,
				SampleRate: snap.SampleRate,
				Kind:       audit.Finalized,
				At:         time.Now(),
			}
			_ = d.ledger.RecordEvent(ctx, ev)
		}
	}
	return nil
}

// Validator implements jobqueue.SessionValidator against the live registry:
// a session is valid as long as it has not been finalized and removed.
type Validator struct {
	registry *session.Registry
}

// NewValidator returns a Validator bound to registry.
func NewValidator(registry *session.Registry) *Validator {
	return &Validator{registry: registry}
}

// Valid reports whether sessionID still has a live, valid entry.
func (v *Validator) Valid(sessionID int64) bool {
	snap, ok := v.registry.Get(sessionID)
	return ok && snap.Valid
}
