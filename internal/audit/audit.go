// Package audit records session-lifecycle events to an optional PostgreSQL
// ledger. It is an operational audit trail (when did sessions start, finish,
// expire) rather than a transcript store: transcripts live only in the
// in-memory response store and the optional recording files.
package audit

import (
	"context"
	"time"
)

// EventKind enumerates the session-lifecycle transitions worth recording.
type EventKind string

const (
	// Created is recorded when a session is inserted into the registry.
	Created EventKind = "created"
	// Finalized is recorded when a session's final sequence has been fully
	// transcribed and delivered.
	Finalized EventKind = "finalized"
	// Expired names the removal of an idle session by the expiry sweep. The
	// sweep (App.runExpirySweep in internal/app) only counts removals in
	// metrics; nothing in this module records an event of this kind.
	Expired EventKind = "expired"
	// ClosedEarly is recorded when a session is closed via the close
	// endpoint or a socket drop before any utterance was ever dispatched.
	ClosedEarly EventKind = "closed-early"
)

// Event is one row appended to the ledger.
type Event struct {
	SessionID  int64
	ExternalID string
	Language   string
	SampleRate int
	Kind       EventKind
	At         time.Time
}

// Ledger records session-lifecycle events. A nil-free no-op implementation
// is always available via NewNoop, so callers never need to nil-check a
// configured Ledger.
type Ledger interface {
	RecordEvent(ctx context.Context, ev Event) error
	Close()
}

// Pinger is implemented by ledgers backed by a live connection. The
// readiness checker type-asserts for it so a configured, unreachable
// database fails /readyz without requiring every Ledger to carry the
// method.
type Pinger interface {
	Ping(ctx context.Context) error
}

// noopLedger discards every event. Used when Config.AuditDSN is empty,
// mirroring the no-op-collaborator pattern the rest of this codebase uses
// for optional dependencies.
type noopLedger struct{}

// NewNoop returns a Ledger that discards every event without error.
func NewNoop() Ledger { return noopLedger{} }

func (noopLedger) RecordEvent(context.Context, Event) error { return nil }
func (noopLedger) Close()                                   {}

// Ping always succeeds: a no-op ledger has no backing connection to fail.
func (noopLedger) Ping(context.Context) error { return nil }
