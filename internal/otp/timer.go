package otp

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelpay/fraudgate/internal/metrics"
)

// Timer periodically removes expired challenges so the store stays bounded.
// Correctness never depends on this loop; Verify discards expired challenges
// lazily when they are touched. The sweeper only reclaims rows nobody asks
// about again.
type Timer struct {
	store    Store
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
	stop     chan struct{}
}

// NewTimer creates a new expiry sweeper.
func NewTimer(store Store, logger *slog.Logger) *Timer {
	return &Timer{
		store:    store,
		interval: 60 * time.Second,
		batch:    100,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// WithInterval sets the sweep interval.
func (t *Timer) WithInterval(d time.Duration) *Timer {
	if d > 0 {
		t.interval = d
	}
	return t
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("otp sweep panicked", "panic", r)
		}
	}()

	removed, err := t.store.DeleteExpired(ctx, t.now(), t.batch)
	if err != nil {
		t.logger.Warn("otp sweep failed", "error", err)
		return
	}
	if removed > 0 {
		metrics.ActiveChallenges.Sub(float64(removed))
		t.logger.Info("swept expired otp challenges", "removed", removed)
	}
}
