package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SettlementRepository handles the write-once settlement records.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository creates a new SettlementRepository.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create inserts a settlement record. Records are never updated afterwards
// except for the archived_at marker.
func (r *SettlementRepository) Create(ctx context.Context, tx *sqlx.Tx, rec *domain.SettlementRecord) error {
	query := `
		INSERT INTO settlement_records
			(id, market_id, option_id, final_outcome, resolution_mode, resolver_id, resolved_at,
			 resolution_trace, canonical_hash, supersedes_id, created_at)
		VALUES
			(:id, :market_id, :option_id, :final_outcome, :resolution_mode, :resolver_id, :resolved_at,
			 :resolution_trace, :canonical_hash, :supersedes_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("settlement_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a record by its primary key.
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM settlement_records WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("settlement_repo.GetByID: %w", err)
	}
	return &rec, nil
}

// LatestForOption returns the most recent record of an option, the one a
// corrective resolution supersedes.
func (r *SettlementRepository) LatestForOption(ctx context.Context, tx *sqlx.Tx, optionID uuid.UUID) (*domain.SettlementRecord, error) {
	var rec domain.SettlementRecord
	err := tx.GetContext(ctx, &rec, `
		SELECT * FROM settlement_records
		WHERE option_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		optionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, fmt.Errorf("settlement_repo.LatestForOption: %w", err)
	}
	return &rec, nil
}

// ListByMarket returns every record of a market, oldest first, so a
// superseded record precedes its correction.
func (r *SettlementRepository) ListByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.SettlementRecord, error) {
	var recs []*domain.SettlementRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT * FROM settlement_records
		WHERE market_id = $1
		ORDER BY created_at ASC`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("settlement_repo.ListByMarket: %w", err)
	}
	return recs, nil
}

// ListUnarchived returns up to limit records not yet copied to object storage.
func (r *SettlementRepository) ListUnarchived(ctx context.Context, limit int) ([]*domain.SettlementRecord, error) {
	var recs []*domain.SettlementRecord
	err := r.db.SelectContext(ctx, &recs, `
		SELECT * FROM settlement_records
		WHERE archived_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("settlement_repo.ListUnarchived: %w", err)
	}
	return recs, nil
}

// MarkArchived stamps archived_at on a record.
func (r *SettlementRepository) MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE settlement_records SET archived_at = $1 WHERE id = $2 AND archived_at IS NULL`,
		at, id)
	if err != nil {
		return fmt.Errorf("settlement_repo.MarkArchived: %w", err)
	}
	return nil
}
