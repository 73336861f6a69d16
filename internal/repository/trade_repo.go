package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// TradeRepository handles trades and the option holdings they move.
type TradeRepository struct {
	db *sqlx.DB
}

// NewTradeRepository creates a new TradeRepository.
func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts an executed trade inside a transaction.
func (r *TradeRepository) Create(ctx context.Context, tx *sqlx.Tx, t *domain.Trade) error {
	query := `
		INSERT INTO trades
			(id, market_id, option_id, user_id, side, action, quantity, supply_before, amount, fee, total, created_at)
		VALUES
			(:id, :market_id, :option_id, :user_id, :side, :action, :quantity, :supply_before, :amount, :fee, :total, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, t); err != nil {
		return fmt.Errorf("trade_repo.Create: %w", err)
	}
	return nil
}

// ListByMarket returns a market's trades, newest first.
func (r *TradeRepository) ListByMarket(ctx context.Context, marketID uuid.UUID, limit, offset int) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := r.db.SelectContext(ctx, &trades, `
		SELECT * FROM trades
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("trade_repo.ListByMarket: %w", err)
	}
	return trades, nil
}

// ── Holdings ─────────────────────────────────────────────────────────────────

// GetHoldingForUpdate locks a user's holding of one option side. A user who
// has never traded the side gets a zero holding.
func (r *TradeRepository) GetHoldingForUpdate(ctx context.Context, tx *sqlx.Tx, userID, optionID uuid.UUID, side domain.Side) (*domain.OptionHolding, error) {
	var h domain.OptionHolding
	err := tx.GetContext(ctx, &h, `
		SELECT * FROM option_holdings
		WHERE user_id = $1 AND option_id = $2 AND side = $3
		FOR UPDATE`,
		userID, optionID, side)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.OptionHolding{
				UserID:   userID,
				OptionID: optionID,
				Side:     side,
				Quantity: decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("trade_repo.GetHoldingForUpdate: %w", err)
	}
	return &h, nil
}

// UpsertHolding writes a holding's quantity.
func (r *TradeRepository) UpsertHolding(ctx context.Context, tx *sqlx.Tx, h *domain.OptionHolding) error {
	query := `
		INSERT INTO option_holdings (user_id, option_id, side, quantity, updated_at)
		VALUES (:user_id, :option_id, :side, :quantity, :updated_at)
		ON CONFLICT (user_id, option_id, side)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, query, h); err != nil {
		return fmt.Errorf("trade_repo.UpsertHolding: %w", err)
	}
	return nil
}

// ListHoldings returns a user's non-zero holdings across a market's options.
func (r *TradeRepository) ListHoldings(ctx context.Context, userID, marketID uuid.UUID) ([]*domain.OptionHolding, error) {
	var holdings []*domain.OptionHolding
	err := r.db.SelectContext(ctx, &holdings, `
		SELECT h.*
		FROM option_holdings h
		JOIN market_options o ON o.id = h.option_id
		WHERE h.user_id = $1 AND o.market_id = $2 AND h.quantity > 0
		ORDER BY o.created_at, h.side`,
		userID, marketID)
	if err != nil {
		return nil, fmt.Errorf("trade_repo.ListHoldings: %w", err)
	}
	return holdings, nil
}
