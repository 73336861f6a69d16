package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/settlement/internal/curve"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LiquidityResult describes one pool movement.
type LiquidityResult struct {
	Position *domain.PositionView `json:"position"`
	Amount   domain.Micros        `json:"amount"` // deposited or paid out
	Shares   int64                `json:"shares"` // minted or burned
	Pool     domain.PoolState     `json:"pool"`
}

// ShareAudit compares the pool's share total with the sum over positions.
type ShareAudit struct {
	MarketID       uuid.UUID `json:"market_id"`
	PoolShares     int64     `json:"pool_shares"`
	PositionShares int64     `json:"position_shares"`
	Consistent     bool      `json:"consistent"`
}

// ──────────────────────────────────────────────────────────────────────────────
// LiquidityService
// ──────────────────────────────────────────────────────────────────────────────

// LiquidityService persists the pool ledger. Every operation locks the market
// row first, so deposits, withdrawals, claims and trades on one market never
// interleave.
type LiquidityService struct {
	db            TxBeginner
	marketRepo    MarketStore
	liquidityRepo LiquidityStore
	walletRepo    WalletStore
	pricer        *curve.Pricer
	now           Clock
	events        notifier
}

// NewLiquidityService creates a LiquidityService.
func NewLiquidityService(
	db TxBeginner,
	marketRepo MarketStore,
	liquidityRepo LiquidityStore,
	walletRepo WalletStore,
	pricer *curve.Pricer,
) *LiquidityService {
	return &LiquidityService{
		db:            db,
		marketRepo:    marketRepo,
		liquidityRepo: liquidityRepo,
		walletRepo:    walletRepo,
		pricer:        pricer,
		now:           systemClock,
	}
}

// SetPublisher injects the event publisher post-construction.
func (s *LiquidityService) SetPublisher(p Publisher) { s.events.publisher = p }

// SetClock replaces the time source.
func (s *LiquidityService) SetClock(c Clock) { s.now = c }

// ──────────────────────────────────────────────────────────────────────────────
// AddLiquidity
// ──────────────────────────────────────────────────────────────────────────────

// AddLiquidity moves amount from the caller's wallet into the market pool and
// mints LP shares. The first deposit into an empty pool mints 1:1.
func (s *LiquidityService) AddLiquidity(ctx context.Context, actor domain.Actor, marketID uuid.UUID, amount domain.Micros) (res *LiquidityResult, err error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if amount <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	// ── 2. Begin transaction and lock the market ─────────────────────────────
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service.AddLiquidity: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	m, err := s.marketRepo.LockForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptionsTx(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service.AddLiquidity: %w", err)
	}
	now := s.now()
	pos, err := s.positionForUpdate(ctx, tx, actor.UserID, marketID, now)
	if err != nil {
		return nil, err
	}

	// ── 3. Mint shares ───────────────────────────────────────────────────────
	minted, err := m.Deposit(pos, amount)
	if err != nil {
		return nil, err
	}
	pos.UpdatedAt = now

	// ── 4. Debit the wallet ──────────────────────────────────────────────────
	wallet, err := s.walletRepo.Debit(ctx, tx, actor.UserID, amount)
	if err != nil {
		return nil, err
	}

	// ── 5. Persist ───────────────────────────────────────────────────────────
	if err = s.liquidityRepo.Upsert(ctx, tx, pos); err != nil {
		return nil, fmt.Errorf("liquidity_service.AddLiquidity: %w", err)
	}
	if err = s.marketRepo.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("liquidity_service.AddLiquidity: %w", err)
	}
	if err = s.logTx(ctx, tx, wallet, domain.TxLPDeposit, -amount, m.ID, now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("liquidity_service.AddLiquidity: commit: %w", err)
	}

	res = s.result(m, pos, options, amount, minted)
	s.postPoolUpdate(domain.TxLPDeposit, actor.UserID, res, now)
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// RemoveLiquidity
// ──────────────────────────────────────────────────────────────────────────────

// RemoveLiquidity burns shares before resolution and pays floor(shares*L/S).
// The payout may not dip into the liquidity reserved for outstanding option
// supply.
func (s *LiquidityService) RemoveLiquidity(ctx context.Context, actor domain.Actor, marketID uuid.UUID, shares int64) (res *LiquidityResult, err error) {
	if shares <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service.RemoveLiquidity: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	m, err := s.marketRepo.LockForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptionsTx(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service.RemoveLiquidity: %w", err)
	}
	pos, err := s.liquidityRepo.GetForUpdate(ctx, tx, actor.UserID, marketID)
	if err != nil {
		return nil, err
	}

	payout, err := m.Withdraw(pos, shares, domain.Reserve(s.pricer, options))
	if err != nil {
		return nil, err
	}
	now := s.now()
	pos.UpdatedAt = now

	wallet, err := s.walletRepo.Credit(ctx, tx, actor.UserID, payout)
	if err != nil {
		return nil, err
	}
	if err = s.liquidityRepo.Upsert(ctx, tx, pos); err != nil {
		return nil, fmt.Errorf("liquidity_service.RemoveLiquidity: %w", err)
	}
	if err = s.marketRepo.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("liquidity_service.RemoveLiquidity: %w", err)
	}
	if err = s.logTx(ctx, tx, wallet, domain.TxLPWithdraw, payout, m.ID, now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("liquidity_service.RemoveLiquidity: commit: %w", err)
	}

	res = s.result(m, pos, options, payout, shares)
	s.postPoolUpdate(domain.TxLPWithdraw, actor.UserID, res, now)
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ClaimLpRewards
// ──────────────────────────────────────────────────────────────────────────────

// ClaimLpRewards pays the caller's proportional share of the settled pool,
// net of the winners' reserve, burns all of the caller's shares and deletes
// the position. It fails with ErrDisputeWindowOpen until every option's
// dispute window has closed. A second claim fails with ErrPoolEmpty.
func (s *LiquidityService) ClaimLpRewards(ctx context.Context, actor domain.Actor, marketID uuid.UUID) (res *LiquidityResult, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service.ClaimLpRewards: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	m, err := s.marketRepo.LockForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptionsTx(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service.ClaimLpRewards: %w", err)
	}
	pos, err := s.liquidityRepo.GetForUpdate(ctx, tx, actor.UserID, marketID)
	if errors.Is(err, domain.ErrPositionNotFound) {
		// a claimed position is gone; Claim reports the status error or ErrPoolEmpty
		pos, err = &domain.LiquidityPosition{UserID: actor.UserID, MarketID: marketID}, nil
	}
	if err != nil {
		return nil, err
	}

	burned := pos.Shares
	now := s.now()
	payout, err := m.Claim(pos, options, domain.Reserve(s.pricer, options), now)
	if err != nil {
		return nil, err
	}

	if err = s.liquidityRepo.Delete(ctx, tx, pos.ID); err != nil {
		return nil, fmt.Errorf("liquidity_service.ClaimLpRewards: %w", err)
	}
	if err = s.marketRepo.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("liquidity_service.ClaimLpRewards: %w", err)
	}
	// a fully reserved pool pays nothing; the shares are still burned
	if payout > 0 {
		wallet, err := s.walletRepo.Credit(ctx, tx, actor.UserID, payout)
		if err != nil {
			return nil, err
		}
		if err = s.logTx(ctx, tx, wallet, domain.TxLPClaim, payout, m.ID, now); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("liquidity_service.ClaimLpRewards: commit: %w", err)
	}

	res = s.result(m, pos, options, payout, burned)
	s.postPoolUpdate(domain.TxLPClaim, actor.UserID, res, now)
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// GetPosition
// ──────────────────────────────────────────────────────────────────────────────

// GetPosition returns the caller's position with its current value.
func (s *LiquidityService) GetPosition(ctx context.Context, actor domain.Actor, marketID uuid.UUID) (*domain.PositionView, error) {
	m, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	pos, err := s.liquidityRepo.Get(ctx, actor.UserID, marketID)
	if err != nil {
		return nil, err
	}
	return &domain.PositionView{LiquidityPosition: pos, CurrentValue: m.PositionValue(pos)}, nil
}

// AuditShares reads the pool and its positions without locking. Run it on a
// quiet market; a concurrent deposit can show a transient mismatch.
func (s *LiquidityService) AuditShares(ctx context.Context, marketID uuid.UUID) (*ShareAudit, error) {
	m, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	sum, err := s.liquidityRepo.SumShares(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return &ShareAudit{
		MarketID:       marketID,
		PoolShares:     m.TotalSharedLPShares,
		PositionShares: sum,
		Consistent:     sum == m.TotalSharedLPShares,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────────────────────────────────

// positionForUpdate locks the caller's position, or starts a new one.
func (s *LiquidityService) positionForUpdate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID, now time.Time) (*domain.LiquidityPosition, error) {
	pos, err := s.liquidityRepo.GetForUpdate(ctx, tx, userID, marketID)
	if errors.Is(err, domain.ErrPositionNotFound) {
		return &domain.LiquidityPosition{
			ID:        uuid.New(),
			UserID:    userID,
			MarketID:  marketID,
			CreatedAt: now,
		}, nil
	}
	return pos, err
}

// logTx writes the wallet audit row. delta is negative for debits.
func (s *LiquidityService) logTx(ctx context.Context, tx *sqlx.Tx, w *domain.Wallet, typ domain.TxType, delta domain.Micros, marketID uuid.UUID, now time.Time) error {
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	ref := marketID
	txn := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance + delta,
		RefID:         &ref,
		Description:   fmt.Sprintf("%s %s", typ, amount),
		CreatedAt:     now,
	}
	if err := s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return fmt.Errorf("liquidity_service.logTx: %w", err)
	}
	return nil
}

func (s *LiquidityService) result(m *domain.Market, pos *domain.LiquidityPosition, options []*domain.MarketOption, amount domain.Micros, shares int64) *LiquidityResult {
	return &LiquidityResult{
		Position: &domain.PositionView{LiquidityPosition: pos, CurrentValue: m.PositionValue(pos)},
		Amount:   amount,
		Shares:   shares,
		Pool:     domain.PoolStateOf(m, domain.Reserve(s.pricer, options)),
	}
}

func (s *LiquidityService) postPoolUpdate(action domain.TxType, userID uuid.UUID, res *LiquidityResult, now time.Time) {
	s.events.emit(domain.NewEvent(domain.EventPoolUpdated, res.Pool.MarketID, domain.PoolUpdatedPayload{
		Action: action,
		UserID: userID,
		Amount: res.Amount,
		Shares: res.Shares,
		Pool:   res.Pool,
	}, now))
}
