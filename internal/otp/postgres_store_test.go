//go:build integration

package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentinelpay/fraudgate/internal/testutil"
)

func TestPostgresStore_ChallengeLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ch := testChallenge("otp_pg1", now.Add(5*time.Minute))
	ch.CreatedAt = now
	if err := store.Put(ctx, ch); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "otp_pg1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Code != ch.Code || got.Destination != ch.Destination {
		t.Errorf("Unexpected challenge %+v", got)
	}

	got.Attempts = 2
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ = store.Get(ctx, "otp_pg1")
	if got.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", got.Attempts)
	}

	if err := store.Delete(ctx, "otp_pg1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "otp_pg1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("Expected ErrChallengeNotFound, got %v", err)
	}
}

func TestPostgresStore_UpdateMissing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	err := store.Update(context.Background(), testChallenge("otp_missing", time.Now()))
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Errorf("Expected ErrChallengeNotFound, got %v", err)
	}
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	store.Put(ctx, testChallenge("otp_old", now.Add(-time.Minute)))
	store.Put(ctx, testChallenge("otp_new", now.Add(time.Hour)))

	removed, err := store.DeleteExpired(ctx, now, 100)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, err := store.Get(ctx, "otp_new"); err != nil {
		t.Error("Live challenge must survive")
	}
}

func TestPostgresStore_Cooldowns(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	t1 := time.Now().UTC().Truncate(time.Microsecond)
	t2 := t1.Add(time.Minute)

	store.SetLastIssued(ctx, testDest, t1)
	got, ok, err := store.LastIssued(ctx, testDest)
	if err != nil || !ok || !got.Equal(t1) {
		t.Fatalf("Expected stamp %v, got %v ok=%v err=%v", t1, got, ok, err)
	}

	// Upsert replaces the stamp.
	store.SetLastIssued(ctx, testDest, t2)
	got, _, _ = store.LastIssued(ctx, testDest)
	if !got.Equal(t2) {
		t.Errorf("Expected stamp %v after upsert, got %v", t2, got)
	}

	// Clear with a stale stamp is a no-op; with the live one it removes.
	store.ClearLastIssued(ctx, testDest, t1)
	if _, ok, _ := store.LastIssued(ctx, testDest); !ok {
		t.Error("Stale clear must not remove a newer stamp")
	}
	store.ClearLastIssued(ctx, testDest, t2)
	if _, ok, _ := store.LastIssued(ctx, testDest); ok {
		t.Error("Matching clear should remove the stamp")
	}
}
