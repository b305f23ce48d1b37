// Package ratelimit provides the sliding-window rate limiting port and its
// domain types.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable is returned when the limiter's backing store fails.
// The check MUST fail closed: callers treat the key as unavailable and
// surface a retriable error, never unlimited traffic.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Result contains the outcome of a sliding-window check.
type Result struct {
	// Allowed indicates whether the request was admitted.
	Allowed bool

	// Limit is the configured ceiling for the window.
	Limit int

	// Remaining is the number of requests still available in the current
	// window after this check.
	Remaining int

	// ResetAfter is the duration until the oldest surviving request slides
	// out of the window. Actionable retry hint when Allowed is false.
	ResetAfter time.Duration

	// ResetAt is the absolute time the window resets.
	ResetAt time.Time
}

// identityKeyLen is the hex prefix length of the hashed credential.
// 16 hex chars (64 bits) keeps collisions negligible at expected
// key cardinality without storing the raw credential anywhere.
const identityKeyLen = 16

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// IdentityKey derives the stable rate-limit key for a caller credential.
// The raw credential is never used as a key: a truncated one-way SHA-256
// digest stands in for it.
func IdentityKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("%s:id:%s", keyPrefix, hex.EncodeToString(sum[:])[:identityKeyLen])
}
