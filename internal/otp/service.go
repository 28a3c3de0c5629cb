package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/sentinelpay/fraudgate/internal/idgen"
	"github.com/sentinelpay/fraudgate/internal/logging"
	"github.com/sentinelpay/fraudgate/internal/metrics"
	"github.com/sentinelpay/fraudgate/internal/notify"
	"github.com/sentinelpay/fraudgate/internal/syncutil"
	"github.com/sentinelpay/fraudgate/internal/traces"
	"github.com/sentinelpay/fraudgate/internal/validation"
)

const (
	DefaultTTL            = 5 * time.Minute
	DefaultResendCooldown = 60 * time.Second
	DefaultMaxAttempts    = 5

	codeSpace = 1000000 // 6 decimal digits
)

// EventSink receives challenge lifecycle events. Implementations must not
// block; the service calls them inline on the request path.
type EventSink interface {
	ChallengeIssued(destination, challengeID string)
	ChallengeVerified(challengeID string)
	ChallengeFailed(challengeID, reason string)
}

// Service issues and verifies OTP challenges.
//
// Two lock domains keep same-key operations serial without a global lock:
// destination shards for Issue (cooldown check and stamp write are one
// critical section) and challenge-id shards for Verify (two racing verifies
// for one id cannot both pass). Notifier calls happen outside any lock.
type Service struct {
	store    Store
	notifier notify.Notifier

	ttl           time.Duration
	cooldown      time.Duration
	maxAttempts   int
	notifyTimeout time.Duration
	devCode       bool

	destLocks syncutil.ShardedMutex
	idLocks   *syncutil.ContextShardedMutex

	events EventSink
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an OTP service with default TTL, cooldown, and attempt
// cap. Use the With* methods to override.
func NewService(store Store, notifier notify.Notifier) *Service {
	return &Service{
		store:         store,
		notifier:      notifier,
		ttl:           DefaultTTL,
		cooldown:      DefaultResendCooldown,
		maxAttempts:   DefaultMaxAttempts,
		notifyTimeout: 10 * time.Second,
		idLocks:       syncutil.NewContextShardedMutex(),
		logger:        slog.Default(),
		now:           time.Now,
	}
}

// WithTTL sets the challenge lifetime.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithCooldown sets the per-destination resend cooldown.
func (s *Service) WithCooldown(d time.Duration) *Service {
	if d >= 0 {
		s.cooldown = d
	}
	return s
}

// WithMaxAttempts sets the verification attempt cap.
func (s *Service) WithMaxAttempts(n int) *Service {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// WithNotifyTimeout bounds a single delivery attempt.
func (s *Service) WithNotifyTimeout(d time.Duration) *Service {
	if d > 0 {
		s.notifyTimeout = d
	}
	return s
}

// WithDevCode makes Issue return the plaintext code to the caller. Dev
// environments only; config gates this on ENV and notifier kind.
func (s *Service) WithDevCode(enabled bool) *Service {
	s.devCode = enabled
	return s
}

// WithEvents sets the lifecycle event sink.
func (s *Service) WithEvents(events EventSink) *Service {
	s.events = events
	return s
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL returns the configured challenge lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Cooldown returns the configured resend cooldown.
func (s *Service) Cooldown() time.Duration { return s.cooldown }

// IssueResult is the caller-visible outcome of Issue.
type IssueResult struct {
	ChallengeID string `json:"challenge_id"`
	// DevCode carries the plaintext code in dev mode only.
	DevCode string `json:"dev_code,omitempty"`
}

// Issue creates a challenge for destination and delivers its code.
//
// Returns *RateLimitedError while the destination is cooling down and
// ErrNotifyFailed when delivery fails. A failed delivery rolls the issuance
// back: the challenge is deleted and the cooldown stamp cleared, so the
// caller may retry immediately.
func (s *Service) Issue(ctx context.Context, destination string) (*IssueResult, error) {
	ctx, span := traces.StartSpan(ctx, "otp.issue")
	defer span.End()

	destination = validation.NormalizePhone(destination)
	if !validation.IsValidPhone(destination) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, logging.MaskDestination(destination))
	}

	ch, issuedAt, err := s.createChallenge(ctx, destination)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.ChallengeID(ch.ID))

	// Delivery runs outside the destination lock. The challenge is already
	// visible, so a failed send must undo both the row and the stamp.
	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	err = s.notifier.Send(sendCtx, destination, fmt.Sprintf("Your verification code is %s", ch.Code))
	cancel()
	if err != nil {
		s.rollbackIssue(ch, destination, issuedAt)
		metrics.ChallengesIssuedTotal.WithLabelValues("notify_failed").Inc()
		s.logger.Warn("otp delivery failed, challenge rolled back",
			"challengeId", ch.ID,
			"destination", logging.MaskDestination(destination),
			"notifier", s.notifier.Name(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}

	metrics.ChallengesIssuedTotal.WithLabelValues("issued").Inc()
	metrics.ActiveChallenges.Inc()
	s.logger.Info("otp challenge issued",
		"challengeId", ch.ID,
		"destination", logging.MaskDestination(destination),
		"expiresAt", ch.ExpiresAt,
	)
	if s.events != nil {
		s.events.ChallengeIssued(destination, ch.ID)
	}

	result := &IssueResult{ChallengeID: ch.ID}
	if s.devCode {
		result.DevCode = ch.Code
	}
	return result, nil
}

// createChallenge runs the cooldown check, code generation, and writes under
// the destination shard lock.
func (s *Service) createChallenge(ctx context.Context, destination string) (*Challenge, time.Time, error) {
	unlock := s.destLocks.Lock(destination)
	defer unlock()

	now := s.now()
	last, ok, err := s.store.LastIssued(ctx, destination)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("check cooldown: %w", err)
	}
	if ok {
		if elapsed := now.Sub(last); elapsed < s.cooldown {
			metrics.ChallengesIssuedTotal.WithLabelValues("rate_limited").Inc()
			return nil, time.Time{}, &RateLimitedError{RetryAfter: s.cooldown - elapsed}
		}
	}

	code, err := generateCode()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("generate code: %w", err)
	}

	ch := &Challenge{
		ID:          idgen.WithPrefix("otp_"),
		Destination: destination,
		Code:        code,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, ch); err != nil {
		return nil, time.Time{}, fmt.Errorf("store challenge: %w", err)
	}
	if err := s.store.SetLastIssued(ctx, destination, now); err != nil {
		return nil, time.Time{}, fmt.Errorf("set cooldown: %w", err)
	}
	return ch, now, nil
}

// rollbackIssue undoes a challenge whose code never reached the destination.
// Best effort with a fresh context; the request context may already be dead.
func (s *Service) rollbackIssue(ch *Challenge, destination string, issuedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.Delete(ctx, ch.ID); err != nil {
		s.logger.Error("rollback: delete challenge failed", "challengeId", ch.ID, "error", err)
	}
	if err := s.store.ClearLastIssued(ctx, destination, issuedAt); err != nil {
		s.logger.Error("rollback: clear cooldown failed",
			"destination", logging.MaskDestination(destination), "error", err)
	}
}

// Verify checks code against the challenge with the given id.
//
// The boolean answers only "was this a correct code for a live challenge".
// Every failure mode (unknown id, expired, exhausted, wrong code, malformed
// code) is false with a nil error; the error return is reserved for store
// and context failures. A correct code consumes the challenge; expiry and
// exhaustion discovered here discard it.
func (s *Service) Verify(ctx context.Context, id, code string) (bool, error) {
	ctx, span := traces.StartSpan(ctx, "otp.verify", traces.ChallengeID(id))
	defer span.End()

	// Malformed codes can never match a stored one, so reject before taking
	// the lock. This does not spend an attempt.
	if !validation.IsValidCode(code) {
		s.observeVerify(span, id, "bad_format")
		return false, nil
	}

	unlock, err := s.idLocks.LockContext(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	ch, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrChallengeNotFound) {
		s.observeVerify(span, id, "not_found")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load challenge: %w", err)
	}

	if ch.Expired(s.now()) {
		s.discard(ctx, ch.ID)
		s.observeVerify(span, id, "expired")
		return false, nil
	}
	if ch.Exhausted() {
		s.discard(ctx, ch.ID)
		s.observeVerify(span, id, "exhausted")
		return false, nil
	}

	// The attempt is spent before comparing, so a crash between compare and
	// delete can never grant extra guesses.
	ch.Attempts++
	if err := s.store.Update(ctx, ch); err != nil {
		return false, fmt.Errorf("record attempt: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(ch.Code), []byte(code)) != 1 {
		s.observeVerify(span, id, "mismatch")
		return false, nil
	}

	s.discard(ctx, ch.ID)
	metrics.ChallengesVerifiedTotal.WithLabelValues("consumed").Inc()
	span.SetAttributes(traces.VerifyOutcome("consumed"))
	s.logger.Info("otp challenge consumed", "challengeId", ch.ID)
	if s.events != nil {
		s.events.ChallengeVerified(ch.ID)
	}
	return true, nil
}

// discard deletes a challenge that reached a terminal state.
func (s *Service) discard(ctx context.Context, id string) {
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("discard challenge failed", "challengeId", id, "error", err)
		return
	}
	metrics.ActiveChallenges.Dec()
}

func (s *Service) observeVerify(span trace.Span, id, outcome string) {
	metrics.ChallengesVerifiedTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(traces.VerifyOutcome(outcome))
	s.logger.Info("otp verification rejected", "challengeId", id, "outcome", outcome)
	if s.events != nil && outcome != "bad_format" {
		s.events.ChallengeFailed(id, outcome)
	}
}

// generateCode draws 6 uniform decimal digits from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
