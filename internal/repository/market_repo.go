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

// MarketRepository handles all database operations for Markets and their
// options.
type MarketRepository struct {
	db *sqlx.DB
}

// NewMarketRepository creates a new MarketRepository.
func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// Create inserts a new market row inside a transaction.
func (r *MarketRepository) Create(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error {
	query := `
		INSERT INTO markets
			(id, question, creator_id, resolver_id, resolution_mode, status, expires_at,
			 shared_pool_liquidity, total_shared_lp_shares, accumulated_lp_fees,
			 is_resolved, resolved_at, created_at, updated_at)
		VALUES
			(:id, :question, :creator_id, :resolver_id, :resolution_mode, :status, :expires_at,
			 :shared_pool_liquidity, :total_shared_lp_shares, :accumulated_lp_fees,
			 :is_resolved, :resolved_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("market_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a market by its primary key.
func (r *MarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := r.db.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetByID: %w", err)
	}
	return &m, nil
}

// LockForUpdate loads a market with a row lock held until tx ends. Every
// mutation of a market's pool, options or status goes through this lock, so
// writers on the same market are serialized.
func (r *MarketRepository) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := tx.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.LockForUpdate: %w", err)
	}
	return &m, nil
}

// Update writes the mutable market columns (pool ledger and status).
func (r *MarketRepository) Update(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error {
	query := `
		UPDATE markets
		SET status                 = :status,
		    shared_pool_liquidity  = :shared_pool_liquidity,
		    total_shared_lp_shares = :total_shared_lp_shares,
		    accumulated_lp_fees    = :accumulated_lp_fees,
		    is_resolved            = :is_resolved,
		    resolved_at            = :resolved_at,
		    updated_at             = now()
		WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, m)
	if err != nil {
		return fmt.Errorf("market_repo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotFound
	}
	return nil
}

// List returns a paginated slice of markets filtered by optional status.
// status="" returns all statuses.
// Returns (markets, totalCount, error).
func (r *MarketRepository) List(ctx context.Context, limit, offset int, status string) ([]*domain.Market, int, error) {
	var markets []*domain.Market
	var total int

	if status != "" {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM markets WHERE status = $1`, status); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &markets,
			`SELECT * FROM markets WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM markets`); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &markets,
			`SELECT * FROM markets ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
		}
	}
	return markets, total, nil
}

// ── Options ──────────────────────────────────────────────────────────────────

// CreateOptions inserts all options of a new market.
func (r *MarketRepository) CreateOptions(ctx context.Context, tx *sqlx.Tx, options []*domain.MarketOption) error {
	query := `
		INSERT INTO market_options
			(id, market_id, label, yes_quantity, no_quantity, is_resolved, winning_side,
			 dispute_deadline, resolution_round, resolved_at, created_at)
		VALUES
			(:id, :market_id, :label, :yes_quantity, :no_quantity, :is_resolved, :winning_side,
			 :dispute_deadline, :resolution_round, :resolved_at, :created_at)`
	for _, o := range options {
		if _, err := tx.NamedExecContext(ctx, query, o); err != nil {
			return fmt.Errorf("market_repo.CreateOptions: %w", err)
		}
	}
	return nil
}

// ListOptions returns a market's options in creation order.
func (r *MarketRepository) ListOptions(ctx context.Context, marketID uuid.UUID) ([]*domain.MarketOption, error) {
	var options []*domain.MarketOption
	err := r.db.SelectContext(ctx, &options,
		`SELECT * FROM market_options WHERE market_id = $1 ORDER BY created_at, label`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("market_repo.ListOptions: %w", err)
	}
	return options, nil
}

// ListOptionsTx is ListOptions inside a transaction. The caller must already
// hold the market row lock.
func (r *MarketRepository) ListOptionsTx(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) ([]*domain.MarketOption, error) {
	var options []*domain.MarketOption
	err := tx.SelectContext(ctx, &options,
		`SELECT * FROM market_options WHERE market_id = $1 ORDER BY created_at, label`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("market_repo.ListOptionsTx: %w", err)
	}
	return options, nil
}

// UpdateOption writes an option's supplies and resolution columns.
func (r *MarketRepository) UpdateOption(ctx context.Context, tx *sqlx.Tx, o *domain.MarketOption) error {
	query := `
		UPDATE market_options
		SET yes_quantity     = :yes_quantity,
		    no_quantity      = :no_quantity,
		    is_resolved      = :is_resolved,
		    winning_side     = :winning_side,
		    dispute_deadline = :dispute_deadline,
		    resolution_round = :resolution_round,
		    resolved_at      = :resolved_at
		WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, o)
	if err != nil {
		return fmt.Errorf("market_repo.UpdateOption: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOptionNotFound
	}
	return nil
}

// FindOption returns the option with id from options, or ErrOptionNotFound.
func FindOption(options []*domain.MarketOption, id uuid.UUID) (*domain.MarketOption, error) {
	for _, o := range options {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, domain.ErrOptionNotFound
}
