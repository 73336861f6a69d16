package service

import (
	"context"
	"fmt"

	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/curve"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// TradeService
// ──────────────────────────────────────────────────────────────────────────────

// TradeService executes buys and sells against option curves. All money
// movement for a trade happens inside a single PostgreSQL transaction that
// holds the market row lock.
type TradeService struct {
	db         TxBeginner
	marketRepo MarketStore
	tradeRepo  TradeStore
	walletRepo WalletStore
	pricer     *curve.Pricer
	cfg        *config.Config
	now        Clock
	events     notifier
}

// NewTradeService creates a TradeService.
func NewTradeService(
	db TxBeginner,
	marketRepo MarketStore,
	tradeRepo TradeStore,
	walletRepo WalletStore,
	pricer *curve.Pricer,
	cfg *config.Config,
) *TradeService {
	return &TradeService{
		db:         db,
		marketRepo: marketRepo,
		tradeRepo:  tradeRepo,
		walletRepo: walletRepo,
		pricer:     pricer,
		cfg:        cfg,
		now:        systemClock,
	}
}

// SetPublisher injects the event publisher post-construction.
func (s *TradeService) SetPublisher(p Publisher) { s.events.publisher = p }

// SetClock replaces the time source.
func (s *TradeService) SetClock(c Clock) { s.now = c }

// Buy purchases qty shares of one side of an option. The trader pays the
// curve cost rounded up plus the LP fee.
func (s *TradeService) Buy(ctx context.Context, actor domain.Actor, marketID, optionID uuid.UUID, side domain.Side, qty decimal.Decimal) (*domain.Trade, error) {
	return s.execute(ctx, actor, marketID, optionID, side, domain.TradeBuy, qty)
}

// Sell returns qty shares to the curve. The trader receives the payout
// rounded down minus the LP fee. Selling more than the trader holds fails
// with ErrInvalidQuantity.
func (s *TradeService) Sell(ctx context.Context, actor domain.Actor, marketID, optionID uuid.UUID, side domain.Side, qty decimal.Decimal) (*domain.Trade, error) {
	return s.execute(ctx, actor, marketID, optionID, side, domain.TradeSell, qty)
}

// Holdings lists the caller's non-zero option holdings in a market.
func (s *TradeService) Holdings(ctx context.Context, actor domain.Actor, marketID uuid.UUID) ([]*domain.OptionHolding, error) {
	if _, err := s.marketRepo.GetByID(ctx, marketID); err != nil {
		return nil, err
	}
	return s.tradeRepo.ListHoldings(ctx, actor.UserID, marketID)
}

func (s *TradeService) execute(
	ctx context.Context,
	actor domain.Actor,
	marketID, optionID uuid.UUID,
	side domain.Side,
	action domain.TradeAction,
	qty decimal.Decimal,
) (trade *domain.Trade, err error) {
	op := "trade_service." + string(action)

	// ── 1. Input validation ──────────────────────────────────────────────────
	if !side.IsValid() {
		return nil, domain.ErrInvalidSide
	}
	if err = domain.ValidateQuantity(qty); err != nil {
		return nil, err
	}

	// ── 2. Begin transaction and lock the market ─────────────────────────────
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
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
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	o, err := repository.FindOption(options, optionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err = m.CanTrade(o, now); err != nil {
		return nil, err
	}

	// ── 3. Price the trade against the current supply ────────────────────────
	holding, err := s.tradeRepo.GetHoldingForUpdate(ctx, tx, actor.UserID, o.ID, side)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if action == domain.TradeSell && holding.Quantity.LessThan(qty) {
		return nil, domain.ErrInvalidQuantity
	}
	trade, err = domain.QuoteTrade(s.pricer, o, side, action, qty, tradeFeeRate(s.cfg))
	if err != nil {
		return nil, err
	}
	trade.ID = uuid.New()
	trade.UserID = actor.UserID
	trade.CreatedAt = now

	// ── 4. Move the wallet ───────────────────────────────────────────────────
	var wallet *domain.Wallet
	txn := &domain.Transaction{
		ID:          uuid.New(),
		Amount:      trade.Total,
		RefID:       &trade.ID,
		Description: fmt.Sprintf("%s %s %s of %q", action, qty.String(), side, o.Label),
		CreatedAt:   now,
	}
	if action == domain.TradeBuy {
		wallet, err = s.walletRepo.Debit(ctx, tx, actor.UserID, trade.Total)
		if err != nil {
			return nil, err
		}
		txn.Type = domain.TxTradeBuy
		txn.BalanceAfter = wallet.Balance - trade.Total
	} else {
		wallet, err = s.walletRepo.Credit(ctx, tx, actor.UserID, trade.Total)
		if err != nil {
			return nil, err
		}
		txn.Type = domain.TxTradeSell
		txn.BalanceAfter = wallet.Balance + trade.Total
	}
	txn.WalletID = wallet.ID
	txn.BalanceBefore = wallet.Balance

	// ── 5. Apply to supply, holding and pool ─────────────────────────────────
	if err = m.ApplyTrade(o, holding, trade); err != nil {
		return nil, err
	}
	holding.UpdatedAt = now

	// ── 6. Persist ───────────────────────────────────────────────────────────
	if err = s.marketRepo.UpdateOption(ctx, tx, o); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = s.marketRepo.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = s.tradeRepo.UpsertHolding(ctx, tx, holding); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = s.tradeRepo.Create(ctx, tx, trade); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// ── 7. Commit ────────────────────────────────────────────────────────────
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	// ── 8. Async: event fan-out ──────────────────────────────────────────────
	s.events.emit(domain.NewEvent(domain.EventTradeExecuted, m.ID, domain.TradeExecutedPayload{
		Trade:       trade,
		YesQuantity: o.YesQuantity,
		NoQuantity:  o.NoQuantity,
		YesPrice:    s.pricer.Price(o.YesQuantity),
		NoPrice:     s.pricer.Price(o.NoQuantity),
		Pool:        domain.PoolStateOf(m, domain.Reserve(s.pricer, options)),
	}, now))

	return trade, nil
}
