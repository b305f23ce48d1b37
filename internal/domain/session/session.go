// Package session manages the bounded registry of client sessions.
//
// A session binds an opaque identifier to the credential that opened it and to
// the transport handle that serves its requests. The Manager is the only owner
// of the registry: all mutation goes through its methods.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultIdleTimeout is the default duration a session may stay idle before
// the sweep evicts it.
const DefaultIdleTimeout = 30 * time.Minute

// DefaultSweepInterval is the default period of the background cleanup sweep.
const DefaultSweepInterval = 1 * time.Minute

// Handler is the transport handle bound to a session. Its lifecycle is tied
// 1:1 to the session entry: every removal path closes it.
type Handler interface {
	// Handle dispatches one request payload and returns the response payload.
	Handle(ctx context.Context, payload []byte) ([]byte, error)

	// Close releases the underlying connection. Idempotent.
	Close() error
}

// Session tracks one client's binding across requests.
type Session struct {
	// ID is the opaque session identifier (caller-supplied or GenerateID).
	ID string
	// Credential is the bearer credential presented at creation.
	// It never changes: every later request must present the identical value.
	Credential string
	// Handler is the bound transport handle.
	Handler Handler
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time
	// LastActivity is the last successful lookup (UTC). Only the Manager
	// mutates this field.
	LastActivity time.Time
}

// IdleFor reports how long the session has been idle relative to now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// GenerateID creates a new server-generated session identifier.
func GenerateID() string {
	return uuid.NewString()
}

// copySession returns a shallow snapshot. The Handler pointer is shared; the
// timestamps are values, so callers cannot race with the Manager's touch.
func copySession(s *Session) *Session {
	cp := *s
	return &cp
}
