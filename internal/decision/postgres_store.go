package decision

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentinelpay/fraudgate/internal/pagination"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id              VARCHAR(40) PRIMARY KEY,
			probability     DOUBLE PRECISION NOT NULL,
			scorer_degraded BOOLEAN NOT NULL DEFAULT FALSE,
			spike_flag      BOOLEAN NOT NULL DEFAULT FALSE,
			avg_last_n      DOUBLE PRECISION,
			multiplier_used DOUBLE PRECISION NOT NULL,
			min_delta_used  DOUBLE PRECISION NOT NULL,
			is_risky        BOOLEAN NOT NULL,
			label           VARCHAR(16) NOT NULL,
			evaluated_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_risk_assessments_evaluated ON risk_assessments(evaluated_at DESC, id DESC);
	`)
	return err
}

// Record inserts an assessment into the audit trail.
func (p *PostgresStore) Record(ctx context.Context, a *RiskAssessment) error {
	var avg sql.NullFloat64
	if a.AvgLastN != nil {
		avg = sql.NullFloat64{Float64: *a.AvgLastN, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (
			id, probability, scorer_degraded, spike_flag, avg_last_n,
			multiplier_used, min_delta_used, is_risky, label, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		a.ID, a.Probability, a.ScorerDegraded, a.SpikeFlag, avg,
		a.MultiplierUsed, a.MinDeltaUsed, a.IsRisky, string(a.Label), a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// ListRecent returns the newest assessments, most recent first. With a cursor,
// keyset pagination on (evaluated_at, id) resumes after the cursor position.
func (p *PostgresStore) ListRecent(ctx context.Context, cursor *pagination.Cursor, limit int) ([]*RiskAssessment, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, probability, scorer_degraded, spike_flag, avg_last_n,
			multiplier_used, min_delta_used, is_risky, label, evaluated_at
		FROM risk_assessments
	`
	args := []any{limit}
	if cursor != nil {
		query += ` WHERE (evaluated_at, id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY evaluated_at DESC, id DESC LIMIT $1`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*RiskAssessment
	for rows.Next() {
		var a RiskAssessment
		var label string
		var avg sql.NullFloat64
		if err := rows.Scan(
			&a.ID, &a.Probability, &a.ScorerDegraded, &a.SpikeFlag, &avg,
			&a.MultiplierUsed, &a.MinDeltaUsed, &a.IsRisky, &label, &a.EvaluatedAt,
		); err != nil {
			return nil, err
		}
		a.Label = Label(label)
		if avg.Valid {
			v := avg.Float64
			a.AvgLastN = &v
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}
