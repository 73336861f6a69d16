package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FileDisputeRequest carries a dispute filing.
type FileDisputeRequest struct {
	MarketID uuid.UUID
	OptionID uuid.UUID
	Reason   string
	Evidence *domain.Evidence
}

// ReviewResult is returned by ReviewDispute.
type ReviewResult struct {
	Dispute      *domain.Dispute     `json:"dispute"`
	Overturned   bool                `json:"overturned"`
	MarketStatus domain.MarketStatus `json:"market_status"`
}

// ──────────────────────────────────────────────────────────────────────────────
// DisputeService
// ──────────────────────────────────────────────────────────────────────────────

// DisputeService handles bonded disputes against option resolutions and
// their admin review.
type DisputeService struct {
	db          TxBeginner
	marketRepo  MarketStore
	disputeRepo DisputeStore
	walletRepo  WalletStore
	cfg         *config.Config
	now         Clock
	events      notifier
}

// NewDisputeService creates a DisputeService.
func NewDisputeService(
	db TxBeginner,
	marketRepo MarketStore,
	disputeRepo DisputeStore,
	walletRepo WalletStore,
	cfg *config.Config,
) *DisputeService {
	return &DisputeService{
		db:          db,
		marketRepo:  marketRepo,
		disputeRepo: disputeRepo,
		walletRepo:  walletRepo,
		cfg:         cfg,
		now:         systemClock,
	}
}

// SetPublisher injects the event publisher post-construction.
func (s *DisputeService) SetPublisher(p Publisher) { s.events.publisher = p }

// SetClock replaces the time source.
func (s *DisputeService) SetClock(c Clock) { s.now = c }

// ──────────────────────────────────────────────────────────────────────────────
// FileDispute
// ──────────────────────────────────────────────────────────────────────────────

// FileDispute challenges an option's resolution inside its dispute window.
// The fixed fee moves from the filer's wallet to the platform treasury and is
// never refunded. The market becomes disputed until every open dispute is
// decided.
func (s *DisputeService) FileDispute(ctx context.Context, actor domain.Actor, req FileDisputeRequest) (d *domain.Dispute, err error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	reason, err := domain.ValidateDisputeReason(req.Reason)
	if err != nil {
		return nil, err
	}
	if err = req.Evidence.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dispute_service.FileDispute: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 2. Lock the market and check the window ──────────────────────────────
	m, err := s.marketRepo.LockForUpdate(ctx, tx, req.MarketID)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptionsTx(ctx, tx, req.MarketID)
	if err != nil {
		return nil, fmt.Errorf("dispute_service.FileDispute: %w", err)
	}
	o, err := repository.FindOption(options, req.OptionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err = domain.CanFileDispute(o, now); err != nil {
		return nil, err
	}
	open, err := s.disputeRepo.HasOpen(ctx, tx, o.ID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("dispute_service.FileDispute: %w", err)
	}
	if open {
		return nil, domain.ErrDisputeExists
	}

	// ── 3. Collect the fee ───────────────────────────────────────────────────
	fee := disputeFee(s.cfg)
	d = &domain.Dispute{
		ID:                uuid.New(),
		MarketID:          m.ID,
		OptionID:          o.ID,
		UserID:            actor.UserID,
		ResolutionRound:   o.ResolutionRound,
		Reason:            reason,
		Evidence:          req.Evidence,
		ResolutionFeePaid: fee,
		Status:            domain.DisputePending,
		CreatedAt:         now,
	}
	if fee > 0 {
		if err = s.collectFee(ctx, tx, actor.UserID, d, now); err != nil {
			return nil, err
		}
	}

	// ── 4. Persist and mark the market disputed ──────────────────────────────
	if err = s.disputeRepo.Create(ctx, tx, d); err != nil {
		return nil, err
	}
	pending, err := s.disputeRepo.CountOpen(ctx, tx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("dispute_service.FileDispute: %w", err)
	}
	m.RefreshStatus(options, pending, now)
	if err = s.marketRepo.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("dispute_service.FileDispute: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("dispute_service.FileDispute: commit: %w", err)
	}

	log.Printf("[dispute] %s filed on option %s of market %s by %s", d.ID, o.ID, m.ID, actor.UserID)
	s.events.emit(domain.NewEvent(domain.EventDisputeFiled, m.ID, domain.DisputeFiledPayload{
		Dispute:      d,
		MarketStatus: m.Status,
	}, now))
	return d, nil
}

// collectFee debits the filer and credits the treasury, with an audit row on
// each side.
func (s *DisputeService) collectFee(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, d *domain.Dispute, now time.Time) error {
	fee := d.ResolutionFeePaid
	ref := d.ID

	payer, err := s.walletRepo.Debit(ctx, tx, userID, fee)
	if err != nil {
		return err
	}
	treasury, err := s.walletRepo.CreditTreasury(ctx, tx, fee)
	if err != nil {
		return fmt.Errorf("dispute_service.collectFee: %w", err)
	}

	for _, txn := range []*domain.Transaction{
		{
			ID:            uuid.New(),
			WalletID:      payer.ID,
			Type:          domain.TxDisputeFee,
			Amount:        fee,
			BalanceBefore: payer.Balance,
			BalanceAfter:  payer.Balance - fee,
			RefID:         &ref,
			Description:   "dispute fee",
			CreatedAt:     now,
		},
		{
			ID:            uuid.New(),
			WalletID:      treasury.ID,
			Type:          domain.TxFeeForfeit,
			Amount:        fee,
			BalanceBefore: treasury.Balance,
			BalanceAfter:  treasury.Balance + fee,
			RefID:         &ref,
			Description:   "dispute fee forfeited to treasury",
			CreatedAt:     now,
		},
	} {
		if err := s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
			return fmt.Errorf("dispute_service.collectFee: %w", err)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ReviewDispute
// ──────────────────────────────────────────────────────────────────────────────

// ReviewDispute records an admin decision. Upholding (resolved) overturns the
// option's resolution; the option must then be resolved again, and the market
// stays disputed until it is. Dismissing leaves the resolution standing.
func (s *DisputeService) ReviewDispute(ctx context.Context, reviewer domain.Actor, disputeID uuid.UUID, status domain.DisputeStatus, notes string) (res *ReviewResult, err error) {
	if !reviewer.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}

	// The market id is needed to take the market lock before the dispute lock.
	existing, err := s.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("dispute_service.ReviewDispute: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock market, then dispute ─────────────────────────────────────────
	m, err := s.marketRepo.LockForUpdate(ctx, tx, existing.MarketID)
	if err != nil {
		return nil, err
	}
	d, err := s.disputeRepo.GetForUpdate(ctx, tx, disputeID)
	if err != nil {
		return nil, err
	}

	// ── 2. Apply the transition ──────────────────────────────────────────────
	now := s.now()
	if err = d.Review(status, notes, reviewer, now); err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptionsTx(ctx, tx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("dispute_service.ReviewDispute: %w", err)
	}

	// ── 3. Overturn an upheld resolution ─────────────────────────────────────
	overturned := false
	if d.Status == domain.DisputeResolved {
		o, err := repository.FindOption(options, d.OptionID)
		if err != nil {
			return nil, err
		}
		// a second upheld dispute against the same round finds it reopened already
		if o.IsResolved && o.ResolutionRound == d.ResolutionRound {
			o.Overturn()
			if err := s.marketRepo.UpdateOption(ctx, tx, o); err != nil {
				return nil, fmt.Errorf("dispute_service.ReviewDispute: %w", err)
			}
			overturned = true
		}
	}

	// ── 4. Persist and recompute the market status ───────────────────────────
	if err = s.disputeRepo.UpdateReview(ctx, tx, d); err != nil {
		return nil, fmt.Errorf("dispute_service.ReviewDispute: %w", err)
	}
	pending, err := s.disputeRepo.CountOpen(ctx, tx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("dispute_service.ReviewDispute: %w", err)
	}
	m.RefreshStatus(options, pending, now)
	if err = s.marketRepo.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("dispute_service.ReviewDispute: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("dispute_service.ReviewDispute: commit: %w", err)
	}

	log.Printf("[dispute] %s reviewed as %s by %s (overturned=%t)", d.ID, d.Status, reviewer.UserID, overturned)
	res = &ReviewResult{Dispute: d, Overturned: overturned, MarketStatus: m.Status}
	s.events.emit(domain.NewEvent(domain.EventDisputeReviewed, m.ID, domain.DisputeReviewedPayload{
		Dispute:      d,
		Overturned:   overturned,
		MarketStatus: m.Status,
	}, now))
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// ListDisputes returns disputes filtered by optional status and market.
func (s *DisputeService) ListDisputes(ctx context.Context, status string, marketID *uuid.UUID, limit, offset int) ([]*domain.Dispute, error) {
	limit, offset = clampPage(limit, offset)
	return s.disputeRepo.List(ctx, status, marketID, limit, offset)
}

// GetDispute returns one dispute.
func (s *DisputeService) GetDispute(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	return s.disputeRepo.GetByID(ctx, id)
}
