// Package session maps opaque session identifiers to server-held
// chat credentials. The credential never leaves this process: callers
// hold only the session identifier, and every tool call resolves it
// here before talking to the remote service.
//
// Two backings are provided: an in-memory map (default) and a SQLite
// table for deployments that restart under live sessions. Both enforce
// a TTL with touch-on-use, so abandoned sessions are evicted instead
// of accumulating for the process lifetime.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session identifier is unknown or has
// expired. Callers surface this as an invalid-session condition; it
// is a caller error, never retried.
var ErrNotFound = errors.New("session not found")

// Record is one session's server-held state. The Credential field is
// internal to the gateway and must never be serialized back to the
// calling agent.
type Record struct {
	SessionID      string
	Credential     string
	ConversationID string
	ExpiresAt      time.Time
}

// Store is the session store abstraction. Implementations are safe
// for concurrent use. Get refreshes the record's expiry (touch-on-use)
// so active sessions outlive the TTL.
type Store interface {
	// Create inserts a new session record.
	Create(rec Record) error

	// Get returns the record for sessionID, extending its expiry.
	// Returns ErrNotFound for unknown or expired identifiers.
	Get(sessionID string) (Record, error)

	// AttachConversation records the conversation created under the
	// session. Returns ErrNotFound for unknown identifiers.
	AttachConversation(sessionID, conversationID string) error

	// Delete removes a session. Deleting an unknown session is not an
	// error.
	Delete(sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}
