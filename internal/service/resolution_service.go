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

// Resolution is the outcome of a direct resolution or a finalizing submission.
type Resolution struct {
	Option       *domain.MarketOption     `json:"option"`
	Settlement   *domain.SettlementRecord `json:"settlement"`
	MarketStatus domain.MarketStatus      `json:"market_status"`
}

// SubmissionResult is returned by SubmitResolution. Resolution is nil while
// the submission round has not finalized.
type SubmissionResult struct {
	Submission *domain.ResolutionSubmission `json:"submission"`
	Finalized  bool                         `json:"finalized"`
	Resolution *Resolution                  `json:"resolution,omitempty"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ResolutionService
// ──────────────────────────────────────────────────────────────────────────────

// ResolutionService decides option outcomes under the market's resolution
// mode and writes the settlement record in the same transaction.
type ResolutionService struct {
	db             TxBeginner
	marketRepo     MarketStore
	resolutionRepo ResolutionStore
	disputeRepo    DisputeStore
	settlementRepo SettlementStore
	cfg            *config.Config
	now            Clock
	events         notifier
}

// NewResolutionService builds a ResolutionService.
func NewResolutionService(
	db TxBeginner,
	marketRepo MarketStore,
	resolutionRepo ResolutionStore,
	disputeRepo DisputeStore,
	settlementRepo SettlementStore,
	cfg *config.Config,
) *ResolutionService {
	return &ResolutionService{
		db:             db,
		marketRepo:     marketRepo,
		resolutionRepo: resolutionRepo,
		disputeRepo:    disputeRepo,
		settlementRepo: settlementRepo,
		cfg:            cfg,
		now:            systemClock,
	}
}

// SetPublisher injects the event publisher post-construction.
func (s *ResolutionService) SetPublisher(p Publisher) { s.events.publisher = p }

// SetClock replaces the time source.
func (s *ResolutionService) SetClock(c Clock) { s.now = c }

func (s *ResolutionService) policyFor(m *domain.Market) domain.ResolutionPolicy {
	return domain.PolicyFor(m.ResolutionMode, s.cfg.Resolution.OpinionQuorum)
}

// ──────────────────────────────────────────────────────────────────────────────
// DirectResolveOption
// ──────────────────────────────────────────────────────────────────────────────

// DirectResolveOption sets the winning side of an option on the actor's
// authority. Disputable modes open a dispute window; a correction of an
// overturned outcome does not.
func (s *ResolutionService) DirectResolveOption(ctx context.Context, actor domain.Actor, marketID, optionID uuid.UUID, outcome domain.Side) (res *Resolution, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.DirectResolveOption: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the market and load the option ───────────────────────────────
	m, err := s.marketRepo.LockForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptionsTx(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.DirectResolveOption: %w", err)
	}
	o, err := repository.FindOption(options, optionID)
	if err != nil {
		return nil, err
	}

	// ── 2. Authority check ───────────────────────────────────────────────────
	p := s.policyFor(m)
	if !p.CanDirectResolve(actor, m) {
		return nil, domain.ErrUnauthorized
	}
	if o.IsResolved {
		return nil, domain.ErrAlreadyResolved
	}

	// ── 3. Resolve and record ────────────────────────────────────────────────
	now := s.now()
	trace := domain.Trace{domain.DirectResolveTrace(actor.UserID, outcome, now)}
	res, err = s.finalize(ctx, tx, m, options, o, outcome, p, actor, trace, now)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("resolution_service.DirectResolveOption: commit: %w", err)
	}

	log.Printf("[resolution] option %s of market %s resolved %s by %s (%s)", o.ID, m.ID, outcome, actor.UserID, p.Name())
	s.postResolved(m.ID, res, now)
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// SubmitResolution
// ──────────────────────────────────────────────────────────────────────────────

// SubmitResolution appends a proposed outcome for the option's current round.
// The option resolves when the mode's finalization rule is met: immediately
// for ORACLE and legacy markets, on quorum for OPINION markets.
func (s *ResolutionService) SubmitResolution(ctx context.Context, actor domain.Actor, marketID, optionID uuid.UUID, outcome domain.Side, evidence *domain.Evidence) (res *SubmissionResult, err error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if !outcome.IsValid() {
		return nil, domain.ErrInvalidOutcome
	}
	if err = evidence.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.SubmitResolution: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 2. Lock the market and load the option ───────────────────────────────
	m, err := s.marketRepo.LockForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	options, err := s.marketRepo.ListOptionsTx(ctx, tx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.SubmitResolution: %w", err)
	}
	o, err := repository.FindOption(options, optionID)
	if err != nil {
		return nil, err
	}

	// ── 3. Authority check ───────────────────────────────────────────────────
	p := s.policyFor(m)
	if !p.CanSubmit(actor, m) {
		return nil, domain.ErrUnauthorized
	}
	if o.IsResolved {
		return nil, domain.ErrAlreadyResolved
	}

	// ── 4. Append the submission ─────────────────────────────────────────────
	now := s.now()
	sub := &domain.ResolutionSubmission{
		ID:          uuid.New(),
		MarketID:    m.ID,
		OptionID:    o.ID,
		Round:       o.ResolutionRound,
		SubmitterID: actor.UserID,
		Outcome:     outcome,
		Evidence:    evidence,
		CreatedAt:   now,
	}
	if err = s.resolutionRepo.CreateSubmission(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("resolution_service.SubmitResolution: %w", err)
	}
	res = &SubmissionResult{Submission: sub}

	// ── 5. Finalize when the round satisfies the mode ────────────────────────
	round, err := s.resolutionRepo.ListRound(ctx, tx, o.ID, o.ResolutionRound)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.SubmitResolution: %w", err)
	}
	if domain.Finalizes(p, round, outcome) {
		res.Resolution, err = s.finalize(ctx, tx, m, options, o, outcome, p, actor, domain.SubmissionTrace(round), now)
		if err != nil {
			return nil, err
		}
		res.Finalized = true
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("resolution_service.SubmitResolution: commit: %w", err)
	}

	if res.Finalized {
		log.Printf("[resolution] option %s of market %s finalized %s after %d submission(s)", o.ID, m.ID, outcome, len(round))
		s.postResolved(m.ID, res.Resolution, now)
	}
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// finalize: shared by both resolution paths
// ──────────────────────────────────────────────────────────────────────────────

// finalize resolves o, writes its settlement record and recomputes the market
// status. A corrective resolution supersedes the option's previous record and
// leads its trace with the disputes that overturned it.
func (s *ResolutionService) finalize(
	ctx context.Context,
	tx *sqlx.Tx,
	m *domain.Market,
	options []*domain.MarketOption,
	o *domain.MarketOption,
	outcome domain.Side,
	p domain.ResolutionPolicy,
	actor domain.Actor,
	trace domain.Trace,
	now time.Time,
) (*Resolution, error) {
	var supersedes *uuid.UUID
	if o.IsCorrective() {
		prev, err := s.settlementRepo.LatestForOption(ctx, tx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("resolution_service.finalize: previous settlement: %w", err)
		}
		supersedes = &prev.ID

		upheld, err := s.disputeRepo.ListUpheld(ctx, tx, o.ID, o.ResolutionRound-1)
		if err != nil {
			return nil, fmt.Errorf("resolution_service.finalize: %w", err)
		}
		trace = append(domain.OverturnTrace(upheld), trace...)
	}

	if err := domain.ResolveOption(o, outcome, p, now, disputeWindow(s.cfg)); err != nil {
		return nil, err
	}
	rec, err := domain.NewSettlementRecord(o, p.Name(), actor.UserID, trace, supersedes)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = now

	pending, err := s.disputeRepo.CountOpen(ctx, tx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service.finalize: %w", err)
	}
	m.RefreshStatus(options, pending, now)

	if err := s.marketRepo.UpdateOption(ctx, tx, o); err != nil {
		return nil, fmt.Errorf("resolution_service.finalize: %w", err)
	}
	if err := s.settlementRepo.Create(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("resolution_service.finalize: %w", err)
	}
	if err := s.marketRepo.Update(ctx, tx, m); err != nil {
		return nil, fmt.Errorf("resolution_service.finalize: %w", err)
	}
	return &Resolution{Option: o, Settlement: rec, MarketStatus: m.Status}, nil
}

func (s *ResolutionService) postResolved(marketID uuid.UUID, r *Resolution, now time.Time) {
	s.events.emit(domain.NewEvent(domain.EventOptionResolved, marketID, domain.OptionResolvedPayload{
		OptionID:        r.Option.ID,
		WinningSide:     *r.Option.WinningSide,
		DisputeDeadline: r.Option.DisputeDeadline,
		SettlementID:    r.Settlement.ID,
		CanonicalHash:   r.Settlement.CanonicalHash,
		MarketStatus:    r.MarketStatus,
	}, now))
}

// ListSubmissions returns every submission for an option, grouped by round.
func (s *ResolutionService) ListSubmissions(ctx context.Context, marketID, optionID uuid.UUID) ([]*domain.ResolutionSubmission, error) {
	options, err := s.marketRepo.ListOptions(ctx, marketID)
	if err != nil {
		return nil, err
	}
	for _, o := range options {
		if o.ID == optionID {
			return s.resolutionRepo.ListByOption(ctx, optionID)
		}
	}
	return nil, domain.ErrOptionNotFound
}
