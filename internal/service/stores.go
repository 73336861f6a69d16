package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ──────────────────────────────────────────────────────────────────────────────
// Storage seams. The repository package implements every interface below;
// each service depends only on the methods it calls.
// ──────────────────────────────────────────────────────────────────────────────

// TxBeginner opens the transaction a write path runs in. *sqlx.DB implements it.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// MarketStore persists markets and their options. LockForUpdate must be the
// first statement of every write transaction on a market.
type MarketStore interface {
	Create(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error)
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Market, error)
	Update(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error
	List(ctx context.Context, limit, offset int, status string) ([]*domain.Market, int, error)
	CreateOptions(ctx context.Context, tx *sqlx.Tx, options []*domain.MarketOption) error
	ListOptions(ctx context.Context, marketID uuid.UUID) ([]*domain.MarketOption, error)
	ListOptionsTx(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) ([]*domain.MarketOption, error)
	UpdateOption(ctx context.Context, tx *sqlx.Tx, o *domain.MarketOption) error
}

// TradeStore persists trades and option holdings.
type TradeStore interface {
	Create(ctx context.Context, tx *sqlx.Tx, t *domain.Trade) error
	GetHoldingForUpdate(ctx context.Context, tx *sqlx.Tx, userID, optionID uuid.UUID, side domain.Side) (*domain.OptionHolding, error)
	UpsertHolding(ctx context.Context, tx *sqlx.Tx, h *domain.OptionHolding) error
	ListHoldings(ctx context.Context, userID, marketID uuid.UUID) ([]*domain.OptionHolding, error)
}

// WalletStore moves balances. Debit and Credit return the wallet as it was
// before the change and reject non-positive amounts.
type WalletStore interface {
	Debit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount domain.Micros) (*domain.Wallet, error)
	Credit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount domain.Micros) (*domain.Wallet, error)
	CreditTreasury(ctx context.Context, tx *sqlx.Tx, amount domain.Micros) (*domain.Wallet, error)
	LogTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.Transaction) error
}

// LiquidityStore persists LP positions.
type LiquidityStore interface {
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID) (*domain.LiquidityPosition, error)
	Get(ctx context.Context, userID, marketID uuid.UUID) (*domain.LiquidityPosition, error)
	Upsert(ctx context.Context, tx *sqlx.Tx, p *domain.LiquidityPosition) error
	Delete(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	SumShares(ctx context.Context, marketID uuid.UUID) (int64, error)
}

// ResolutionStore appends and reads resolution submissions.
type ResolutionStore interface {
	CreateSubmission(ctx context.Context, tx *sqlx.Tx, s *domain.ResolutionSubmission) error
	ListRound(ctx context.Context, tx *sqlx.Tx, optionID uuid.UUID, round int) ([]*domain.ResolutionSubmission, error)
	ListByOption(ctx context.Context, optionID uuid.UUID) ([]*domain.ResolutionSubmission, error)
}

// DisputeStore persists disputes. Open means pending or reviewed.
type DisputeStore interface {
	Create(ctx context.Context, tx *sqlx.Tx, d *domain.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Dispute, error)
	UpdateReview(ctx context.Context, tx *sqlx.Tx, d *domain.Dispute) error
	HasOpen(ctx context.Context, tx *sqlx.Tx, optionID, userID uuid.UUID) (bool, error)
	CountOpen(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) (int, error)
	ListUpheld(ctx context.Context, tx *sqlx.Tx, optionID uuid.UUID, round int) ([]*domain.Dispute, error)
	List(ctx context.Context, status string, marketID *uuid.UUID, limit, offset int) ([]*domain.Dispute, error)
}

// SettlementStore persists settlement records.
type SettlementStore interface {
	Create(ctx context.Context, tx *sqlx.Tx, rec *domain.SettlementRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SettlementRecord, error)
	LatestForOption(ctx context.Context, tx *sqlx.Tx, optionID uuid.UUID) (*domain.SettlementRecord, error)
	ListByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.SettlementRecord, error)
	ListUnarchived(ctx context.Context, limit int) ([]*domain.SettlementRecord, error)
	MarkArchived(ctx context.Context, id uuid.UUID, at time.Time) error
}
