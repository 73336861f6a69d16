package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LiquidityRepository handles liquidity provider positions.
type LiquidityRepository struct {
	db *sqlx.DB
}

// NewLiquidityRepository creates a new LiquidityRepository.
func NewLiquidityRepository(db *sqlx.DB) *LiquidityRepository {
	return &LiquidityRepository{db: db}
}

// GetForUpdate locks the caller's position in a market.
func (r *LiquidityRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID) (*domain.LiquidityPosition, error) {
	var p domain.LiquidityPosition
	err := tx.GetContext(ctx, &p, `
		SELECT * FROM liquidity_positions
		WHERE user_id = $1 AND market_id = $2
		FOR UPDATE`,
		userID, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("liquidity_repo.GetForUpdate: %w", err)
	}
	return &p, nil
}

// Get fetches a position without locking.
func (r *LiquidityRepository) Get(ctx context.Context, userID, marketID uuid.UUID) (*domain.LiquidityPosition, error) {
	var p domain.LiquidityPosition
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM liquidity_positions WHERE user_id = $1 AND market_id = $2`,
		userID, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("liquidity_repo.Get: %w", err)
	}
	return &p, nil
}

// Upsert writes a position's shares and deposited total.
func (r *LiquidityRepository) Upsert(ctx context.Context, tx *sqlx.Tx, p *domain.LiquidityPosition) error {
	query := `
		INSERT INTO liquidity_positions
			(id, user_id, market_id, shares, deposited_amount, created_at, updated_at)
		VALUES
			(:id, :user_id, :market_id, :shares, :deposited_amount, :created_at, :updated_at)
		ON CONFLICT (user_id, market_id)
		DO UPDATE SET shares           = EXCLUDED.shares,
		              deposited_amount = EXCLUDED.deposited_amount,
		              updated_at       = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("liquidity_repo.Upsert: %w", err)
	}
	return nil
}

// Delete removes a fully claimed position.
func (r *LiquidityRepository) Delete(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM liquidity_positions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("liquidity_repo.Delete: %w", err)
	}
	return nil
}

// SumShares returns the total shares held across a market's positions. It
// must always equal markets.total_shared_lp_shares.
func (r *LiquidityRepository) SumShares(ctx context.Context, marketID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(shares), 0) FROM liquidity_positions WHERE market_id = $1`,
		marketID)
	if err != nil {
		return 0, fmt.Errorf("liquidity_repo.SumShares: %w", err)
	}
	return total, nil
}
