package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"

	"github.com/coder/websocket"
	"github.com/johnsnewby/transcriberd/internal/audit"
	"github.com/johnsnewby/transcriberd/internal/jobqueue"
	"github.com/johnsnewby/transcriberd/internal/segment"
	"github.com/johnsnewby/transcriberd/internal/session"
)

// connSender adapts a websocket.Conn to session.Sender, serializing every
// Send under a dedicated writer goroutine fed by outbound, so the receive
// loop never blocks on a slow client.
type connSender struct {
	outbound chan []byte
	done     chan struct{}
}

// Send enqueues payload for delivery. Returns an error once the writer has
// stopped (socket error or session teardown).
func (c *connSender) Send(payload []byte) error {
	select {
	case <-c.done:
		return errSenderClosed
	default:
	}
	select {
	case c.outbound <- payload:
		return nil
	case <-c.done:
		return errSenderClosed
	}
}

var errSenderClosed = websocketClosedError{}

type websocketClosedError struct{}

func (websocketClosedError) Error() string { return "server: sender is closed" }

// writerLoop drains outbound and writes each payload as a text frame.
// Exits (and closes the socket) on the first write error or when done is
// closed by the receive loop.
func writerLoop(ctx context.Context, conn *websocket.Conn, c *connSender) {
	for {
		select {
		case payload := <-c.outbound:
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleChat upgrades the request to a bidirectional message stream and
// runs the connection handler contract (spec.md §4.8).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	lang := parseLang(r)
	rate := parseRate(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("server: websocket accept failed", "error", err)
		return
	}
	ctx := r.Context()

	id := s.nextSessionID()
	externalID := newExternalID()

	sender := &connSender{
		outbound: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	go writerLoop(ctx, conn, sender)

	sess := session.New(id, externalID, lang, rate)
	sess.Sender = sender
	sess.RecordingPath = s.recordingPath(externalID)
	sess.TranscriptPath = s.transcriptPath(externalID)
	s.registry.Insert(sess)
	if snap, ok := s.registry.Get(id); ok {
		s.recordEvent(ctx, snap, audit.Created)
	}
	if s.metrics != nil {
		s.metrics.SessionsActive.Add(ctx, 1)
	}

	greeting, _ := json.Marshal(struct {
		UUID string `json:"uuid"`
	}{UUID: externalID})
	if err := conn.Write(ctx, websocket.MessageText, greeting); err != nil {
		close(sender.done)
		conn.CloseNow()
		s.registry.Remove(id)
		return
	}

	s.receiveLoop(ctx, conn, id, sender)

	close(sender.done)
	s.closeSession(ctx, id)
	conn.Close(websocket.StatusNormalClosure, "session ended")
	if s.metrics != nil {
		s.metrics.SessionsActive.Add(ctx, -1)
	}
}

// receiveLoop reads binary PCM frames until the idle timeout elapses, a
// read error occurs, or the session becomes invalid.
func (s *Server) receiveLoop(ctx context.Context, conn *websocket.Conn, id int64, sender *connSender) {
	for {
		snap, ok := s.registry.Get(id)
		if !ok || !snap.Valid {
			return
		}

		msgCtx, cancel := context.WithTimeout(ctx, s.idleTimeout)
		msgType, data, err := conn.Read(msgCtx)
		cancel()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.MessageText:
			// Reserved; ignored per the protocol-error taxonomy.
		case websocket.MessageBinary:
			s.ingest(ctx, id, data, sender)
		}
	}
}

// ingest decodes a binary frame as little-endian float32 PCM, appends it to
// the session buffer, and dispatches a completed utterance when a silence
// pivot is found.
func (s *Server) ingest(ctx context.Context, id int64, data []byte, sender *connSender) {
	samples := decodeFloat32LE(data)

	s.registry.Mutate(id, func(sess *session.Session) {
		if s.metrics != nil {
			s.metrics.RecordIngest(ctx, sess.ExternalID, int64(len(data)))
		}
		sess.Buffer = append(sess.Buffer, samples...)
		pivot, found := segment.FindSilence(sess.Buffer, sess.SampleRate)
		if !found {
			return
		}
		payload := append([]float32(nil), sess.Buffer[:pivot]...)

		persistAudio(sess.RecordingPath, sess.SampleRate, payload)

		req := jobqueue.Request{SessionID: id, Seq: sess.Seq, Payload: payload, Language: sess.Language, SampleRate: sess.SampleRate}
		if err := s.queue.Enqueue(req); err != nil {
			slog.Warn("server: enqueue failed, clearing sender", "session_id", id, "error", err)
			sess.Sender = nil
			return
		}
		sess.Buffer = sess.Buffer[pivot:]
		sess.Seq++
	})
}

// decodeFloat32LE decodes a byte slice as a sequence of little-endian
// float32 samples.
func decodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
