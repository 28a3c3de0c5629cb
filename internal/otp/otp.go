// Package otp implements one-time-passcode challenges for step-up
// verification of risky transactions.
//
// Lifecycle:
//  1. Issue generates a 6-digit code, stores a challenge, and delivers the
//     code out of band → the caller holds only the opaque challenge id
//  2. Verify checks a presented code against the stored challenge
//  3. A correct code consumes the challenge; expiry or too many wrong
//     attempts discards it
//
// Terminal states are deletions: a consumed, expired, or exhausted challenge
// id is indistinguishable from one that never existed. Verification answers
// only valid/invalid; the reason stays in logs and metrics.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrNotifyFailed       = errors.New("code delivery failed")
	ErrRateLimited        = errors.New("destination on cooldown")
	ErrInvalidDestination = errors.New("invalid destination")
)

// RateLimitedError reports how long the caller must wait before the
// destination accepts a new challenge. It unwraps to ErrRateLimited.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("destination on cooldown, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// Challenge is one pending OTP verification.
type Challenge struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Code        string    `json:"-"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the challenge is past its TTL at time now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Exhausted reports whether the challenge has no verification attempts left.
func (c *Challenge) Exhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// Store persists challenges and per-destination issuance stamps. All methods
// must be safe for concurrent use; the service serializes same-key mutations
// above the store, so stores only need per-row atomicity.
type Store interface {
	// Put stores a new challenge.
	Put(ctx context.Context, ch *Challenge) error
	// Get returns the challenge by id, or ErrChallengeNotFound.
	Get(ctx context.Context, id string) (*Challenge, error)
	// Update rewrites an existing challenge (attempt counter).
	Update(ctx context.Context, ch *Challenge) error
	// Delete removes a challenge. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes up to limit challenges whose ExpiresAt is at or
	// before now, returning how many were removed.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)

	// LastIssued returns the time a code was last issued for destination.
	LastIssued(ctx context.Context, destination string) (time.Time, bool, error)
	// SetLastIssued records an issuance stamp for destination.
	SetLastIssued(ctx context.Context, destination string, t time.Time) error
	// ClearLastIssued removes the stamp only if it still equals t, so a
	// rollback cannot clobber a newer issuance.
	ClearLastIssued(ctx context.Context, destination string, t time.Time) error
}
