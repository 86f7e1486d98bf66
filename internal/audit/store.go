// Package audit persists reconciliation pass outcomes. The trail answers
// "what did we show the user and when" for support disputes about price
// changes; it is append-only and trimmed by a retention job.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/partsport/offer-service/internal/cart"
)

// PassRecord is one persisted reconciliation pass.
type PassRecord struct {
	PassID       uuid.UUID       `json:"passId"`
	Phase        string          `json:"phase"`
	ChangeCount  int             `json:"changeCount"`
	RemovalCount int             `json:"removalCount"`
	OldTotal     decimal.Decimal `json:"oldTotal"`
	NewTotal     decimal.Decimal `json:"newTotal"`
	CheckedAt    time.Time       `json:"checkedAt"`
	RecordedAt   time.Time       `json:"recordedAt"`
}

// Store writes and reads reconciliation pass records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an audit store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS reconciliation_passes (
			pass_id       UUID PRIMARY KEY,
			phase         TEXT NOT NULL,
			change_count  INTEGER NOT NULL,
			removal_count INTEGER NOT NULL,
			old_total     NUMERIC(12, 2) NOT NULL,
			new_total     NUMERIC(12, 2) NOT NULL,
			checked_at    TIMESTAMPTZ NOT NULL,
			recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_reconciliation_passes_recorded_at
		ON reconciliation_passes (recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit index: %w", err)
	}
	return nil
}

// RecordPass persists the outcome of one reconciliation pass.
func (s *Store) RecordPass(ctx context.Context, report cart.Report) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_passes
			(pass_id, phase, change_count, removal_count, old_total, new_total, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pass_id) DO UPDATE SET phase = EXCLUDED.phase
	`,
		report.PassID,
		string(report.Phase),
		len(report.Changes),
		len(report.Removals),
		report.OldTotal,
		report.NewTotal,
		report.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record reconciliation pass: %w", err)
	}
	return nil
}

// RecordSettlement updates the stored phase once the user confirms or
// cancels a drift report.
func (s *Store) RecordSettlement(ctx context.Context, passID uuid.UUID, phase cart.Phase) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE reconciliation_passes
		SET phase = $2
		WHERE pass_id = $1
	`, passID, string(phase))
	if err != nil {
		return fmt.Errorf("failed to record settlement: %w", err)
	}
	return nil
}

// ListRecent returns the most recent pass records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]PassRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT pass_id, phase, change_count, removal_count,
		       old_total, new_total, checked_at, recorded_at
		FROM reconciliation_passes
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation passes: %w", err)
	}
	defer rows.Close()

	var records []PassRecord
	for rows.Next() {
		var r PassRecord
		if err := rows.Scan(
			&r.PassID, &r.Phase, &r.ChangeCount, &r.RemovalCount,
			&r.OldTotal, &r.NewTotal, &r.CheckedAt, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pass record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteOlderThan removes records past the retention cutoff.
// Returns the number of records deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM reconciliation_passes
		WHERE recorded_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pass records: %w", err)
	}
	return int(result.RowsAffected()), nil
}
