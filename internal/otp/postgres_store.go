package otp

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. Every mutation is a
// single-row statement, so the per-key guarantees survive multiple server
// instances sharing one database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed challenge store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the otp_challenges and otp_cooldowns tables if they don't
// exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS otp_challenges (
			id           VARCHAR(40) PRIMARY KEY,
			destination  VARCHAR(32) NOT NULL,
			code         VARCHAR(8) NOT NULL,
			attempts     INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			expires_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_otp_challenges_expires ON otp_challenges(expires_at);
		CREATE TABLE IF NOT EXISTS otp_cooldowns (
			destination VARCHAR(32) PRIMARY KEY,
			last_issued TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (p *PostgresStore) Put(ctx context.Context, ch *Challenge) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO otp_challenges (id, destination, code, attempts, max_attempts, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ch.ID, ch.Destination, ch.Code, ch.Attempts, ch.MaxAttempts, ch.CreatedAt, ch.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Challenge, error) {
	var ch Challenge
	err := p.db.QueryRowContext(ctx, `
		SELECT id, destination, code, attempts, max_attempts, created_at, expires_at
		FROM otp_challenges WHERE id = $1
	`, id).Scan(&ch.ID, &ch.Destination, &ch.Code, &ch.Attempts, &ch.MaxAttempts, &ch.CreatedAt, &ch.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &ch, nil
}

func (p *PostgresStore) Update(ctx context.Context, ch *Challenge) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE otp_challenges SET attempts = $2 WHERE id = $1
	`, ch.ID, ch.Attempts)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM otp_challenges WHERE id IN (
			SELECT id FROM otp_challenges WHERE expires_at <= $1 LIMIT $2
		)
	`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *PostgresStore) LastIssued(ctx context.Context, destination string) (time.Time, bool, error) {
	var t time.Time
	err := p.db.QueryRowContext(ctx, `
		SELECT last_issued FROM otp_cooldowns WHERE destination = $1
	`, destination).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: %w", err)
	}
	return t, true, nil
}

func (p *PostgresStore) SetLastIssued(ctx context.Context, destination string, t time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO otp_cooldowns (destination, last_issued) VALUES ($1, $2)
		ON CONFLICT (destination) DO UPDATE SET last_issued = EXCLUDED.last_issued
	`, destination, t)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// ClearLastIssued removes the stamp only when it still matches t, so a
// rollback racing a newer issuance is a no-op.
func (p *PostgresStore) ClearLastIssued(ctx context.Context, destination string, t time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM otp_cooldowns WHERE destination = $1 AND last_issued = $2
	`, destination, t)
	if err != nil {
		return fmt.Errorf("clear cooldown: %w", err)
	}
	return nil
}
