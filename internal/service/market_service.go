package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/curve"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// MarketService
// ──────────────────────────────────────────────────────────────────────────────

// MarketService handles market creation, priced read models and quotes.
type MarketService struct {
	db         TxBeginner
	marketRepo MarketStore
	pricer     *curve.Pricer
	cfg        *config.Config
	now        Clock
}

// NewMarketService creates a MarketService.
func NewMarketService(
	db TxBeginner,
	marketRepo MarketStore,
	pricer *curve.Pricer,
	cfg *config.Config,
) *MarketService {
	return &MarketService{
		db:         db,
		marketRepo: marketRepo,
		pricer:     pricer,
		cfg:        cfg,
		now:        systemClock,
	}
}

// SetClock replaces the time source.
func (s *MarketService) SetClock(c Clock) { s.now = c }

// ──────────────────────────────────────────────────────────────────────────────
// CreateMarket
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarket opens a market with one YES/NO curve pair per option. The pool
// starts empty; trading waits for the first liquidity deposit.
func (s *MarketService) CreateMarket(ctx context.Context, actor domain.Actor, req domain.CreateMarketRequest) (view *domain.MarketView, err error) {
	now := s.now()
	if err = req.Validate(now); err != nil {
		return nil, err
	}

	m := &domain.Market{
		ID:             uuid.New(),
		Question:       strings.TrimSpace(req.Question),
		CreatorID:      actor.UserID,
		ResolverID:     req.ResolverID,
		ResolutionMode: req.ResolutionMode,
		Status:         domain.StatusOpen,
		ExpiresAt:      req.ExpiresAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	options := make([]*domain.MarketOption, 0, len(req.Options))
	for _, label := range req.Options {
		options = append(options, &domain.MarketOption{
			ID:          uuid.New(),
			MarketID:    m.ID,
			Label:       strings.TrimSpace(label),
			YesQuantity: decimal.Zero,
			NoQuantity:  decimal.Zero,
			CreatedAt:   now,
		})
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.marketRepo.Create(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: %w", err)
	}
	if err = s.marketRepo.CreateOptions(ctx, tx, options); err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("market_service.CreateMarket: commit: %w", err)
	}

	return viewOf(s.pricer, m, options), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetMarket returns a market with its options and current curve prices.
func (s *MarketService) GetMarket(ctx context.Context, id uuid.UUID) (*domain.MarketView, error) {
	m, err := s.marketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market_service.GetMarket: %w", err)
	}
	return viewOf(s.pricer, m, options), nil
}

// ListMarkets returns a page of markets filtered by optional status.
func (s *MarketService) ListMarkets(ctx context.Context, status string, limit, offset int) ([]*domain.Market, int, error) {
	limit, offset = clampPage(limit, offset)
	return s.marketRepo.List(ctx, limit, offset, status)
}

// Quote prices a trade against the option's current supply without executing
// it. Trading preconditions are checked so a quote never promises a trade the
// market would refuse.
func (s *MarketService) Quote(ctx context.Context, marketID, optionID uuid.UUID, side domain.Side, action domain.TradeAction, qty decimal.Decimal) (*domain.Trade, error) {
	m, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptions(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service.Quote: %w", err)
	}
	o, err := repository.FindOption(options, optionID)
	if err != nil {
		return nil, err
	}
	if err := m.CanTrade(o, s.now()); err != nil {
		return nil, err
	}
	return domain.QuoteTrade(s.pricer, o, side, action, qty, tradeFeeRate(s.cfg))
}

// viewOf prices every option of m.
func viewOf(p *curve.Pricer, m *domain.Market, options []*domain.MarketOption) *domain.MarketView {
	v := &domain.MarketView{Market: m, Options: make([]domain.OptionView, 0, len(options))}
	for _, o := range options {
		v.Options = append(v.Options, domain.OptionView{
			MarketOption: o,
			YesPrice:     p.Price(o.YesQuantity),
			NoPrice:      p.Price(o.NoQuantity),
		})
	}
	return v
}
