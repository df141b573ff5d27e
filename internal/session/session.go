// Package session holds the process-wide registry of live client sessions.
//
// A Session is created when a connection upgrades to the audio stream and
// lives until the connection drops, the client closes explicitly, or the
// idle-expiry sweep reclaims it. Workers reach session state from dedicated
// OS threads outside any goroutine pool tied to a single connection; rather
// than bridge to a separate async runtime, the registry is guarded directly
// by a sync.RWMutex so both the connection handler and the worker pool see
// one coherent view with no extra plumbing.
package session

import (
	"time"

	"github.com/johnsnewby/transcriberd/internal/transcript"
)

// Sender delivers an outbound text frame to the client. It is set for the
// lifetime of a live writer goroutine and cleared exactly once when the
// session finalizes or its outbound path fails.
type Sender interface {
	Send(payload []byte) error
}

// Session is one live client connection's mutable state. Every field below
// is only ever mutated through Registry.Mutate, which holds the registry's
// write lock for the duration of the callback.
type Session struct {
	ID         int64
	ExternalID string

	Language   string
	SampleRate int

	Buffer []float32
	Seq    int

	// FinalSeq, once non-nil, marks the last sequence number the client
	// will ever produce; the segment delivery path finalizes the session
	// once the last segment of a response for a sequence >= *FinalSeq
	// arrives.
	FinalSeq *int

	Valid bool

	Sender Sender

	RecordingPath  string
	TranscriptPath string

	Store *transcript.Store

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is a point-in-time copy of a Session, safe to read without
// holding the registry lock. Buffer and Store are intentionally omitted:
// callers needing the buffer or store go through Mutate or the store's own
// concurrency-safe API.
type Snapshot struct {
	ID             int64
	ExternalID     string
	Language       string
	SampleRate     int
	Seq            int
	FinalSeq       *int
	Valid          bool
	HasSender      bool
	RecordingPath  string
	TranscriptPath string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// snapshot builds a Snapshot from a live Session. Must be called with at
// least a read lock held.
func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:             s.ID,
		ExternalID:     s.ExternalID,
		Language:       s.Language,
		SampleRate:     s.SampleRate,
		Seq:            s.Seq,
		FinalSeq:       s.FinalSeq,
		Valid:          s.Valid,
		HasSender:      s.Sender != nil,
		RecordingPath:  s.RecordingPath,
		TranscriptPath: s.TranscriptPath,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// New constructs a fresh, valid Session ready to be inserted into a
// Registry.
func New(id int64, externalID, language string, sampleRate int) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		ExternalID: externalID,
		Language:   language,
		SampleRate: sampleRate,
		Valid:      true,
		Store:      transcript.New(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
