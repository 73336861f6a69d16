package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/evetabi/settlement/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// authorityMarket is one AUTHORITY market taken through a deposit, a buy and
// a YES resolution by its creator.
type authorityMarket struct {
	marketID, optionID uuid.UUID
	creator, lp        domain.Actor
	trader, admin      domain.Actor
	resolution         *service.Resolution
	resolvedAt         time.Time
}

func newAuthorityMarket(t *testing.T, h *harness) *authorityMarket {
	t.Helper()
	ctx := context.Background()
	a := &authorityMarket{
		creator: domain.Actor{UserID: uuid.New(), Role: domain.RoleUser},
		lp:      domain.Actor{UserID: uuid.New(), Role: domain.RoleUser},
		trader:  domain.Actor{UserID: uuid.New(), Role: domain.RoleUser},
		admin:   domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin},
	}
	a.marketID, a.optionID = h.seedMarket(a.creator.UserID, domain.ModeAuthority)
	h.fund(a.lp.UserID, 1_000)
	h.fund(a.trader.UserID, 100)

	if _, err := h.liquidityService().AddLiquidity(ctx, a.lp, a.marketID, 500*domain.MicrosPerUnit); err != nil {
		t.Fatalf("AddLiquidity() error = %v", err)
	}
	if _, err := h.tradeService().Buy(ctx, a.trader, a.marketID, a.optionID, domain.SideYes, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	h.now = h.now.Add(time.Hour)
	res, err := h.resolutionService().DirectResolveOption(ctx, a.creator, a.marketID, a.optionID, domain.SideYes)
	if err != nil {
		t.Fatalf("DirectResolveOption() error = %v", err)
	}
	a.resolution, a.resolvedAt = res, h.now
	return a
}

// assertMarketLockedFirst checks that the market row lock is the first
// statement of the transaction and that the transaction committed.
func assertMarketLockedFirst(t *testing.T, op string, calls []string) {
	t.Helper()
	if len(calls) < 3 || calls[0] != "begin" || calls[1] != "market.lock" {
		t.Fatalf("%s: calls = %v, want begin then market.lock", op, calls)
	}
	if last := calls[len(calls)-1]; last != "commit" {
		t.Errorf("%s: last call = %q, want commit (calls %v)", op, last, calls)
	}
	for _, c := range calls[2:] {
		if c == "begin" || c == "market.lock" {
			t.Errorf("%s: %q repeated inside the transaction: %v", op, c, calls)
		}
	}
}

func assertRolledBack(t *testing.T, op string, calls []string) {
	t.Helper()
	if len(calls) == 0 || calls[len(calls)-1] != "rollback" {
		t.Errorf("%s: calls = %v, want a rollback last", op, calls)
	}
	for _, c := range calls {
		if c == "commit" {
			t.Errorf("%s: committed: %v", op, calls)
		}
	}
}

// ── Lock ordering ─────────────────────────────────────────────────────────────

func TestWritePaths_LockMarketFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	creator := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	lp := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	trader := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	disputer := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	admin := domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}
	marketID, optionID := h.seedMarket(creator.UserID, domain.ModeAuthority)
	h.fund(lp.UserID, 1_000)
	h.fund(trader.UserID, 100)
	h.fund(disputer.UserID, 100)

	var disputeID uuid.UUID
	steps := []struct {
		name string
		run  func() error
		// calls that must follow the market lock
		after []string
	}{
		{"AddLiquidity", func() error {
			_, err := h.liquidityService().AddLiquidity(ctx, lp, marketID, 500*domain.MicrosPerUnit)
			return err
		}, []string{"position.lock", "wallet.debit", "market.update"}},
		{"Buy", func() error {
			_, err := h.tradeService().Buy(ctx, trader, marketID, optionID, domain.SideYes, decimal.NewFromInt(10))
			return err
		}, []string{"holding.lock", "wallet.debit", "option.update", "trade.create"}},
		{"DirectResolveOption", func() error {
			_, err := h.resolutionService().DirectResolveOption(ctx, creator, marketID, optionID, domain.SideYes)
			return err
		}, []string{"option.update", "settlement.create", "market.update"}},
		{"FileDispute", func() error {
			h.now = h.now.Add(30 * time.Minute)
			d, err := h.disputeService().FileDispute(ctx, disputer, service.FileDisputeRequest{
				MarketID: marketID, OptionID: optionID, Reason: "the match was replayed",
			})
			if d != nil {
				disputeID = d.ID
			}
			return err
		}, []string{"wallet.debit", "treasury.credit", "dispute.create", "market.update"}},
		{"ReviewDispute", func() error {
			_, err := h.disputeService().ReviewDispute(ctx, admin, disputeID, domain.DisputeResolved, "replay confirmed")
			return err
		}, []string{"dispute.lock", "option.update", "dispute.review", "market.update"}},
		{"DirectResolveOption (correction)", func() error {
			_, err := h.resolutionService().DirectResolveOption(ctx, creator, marketID, optionID, domain.SideNo)
			return err
		}, []string{"settlement.latest", "settlement.create"}},
		{"ClaimLpRewards", func() error {
			_, err := h.liquidityService().ClaimLpRewards(ctx, lp, marketID)
			return err
		}, []string{"position.lock", "position.delete", "wallet.credit"}},
	}

	for _, step := range steps {
		h.j.reset()
		if err := step.run(); err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		calls := h.j.list()
		assertMarketLockedFirst(t, step.name, calls)
		for _, want := range step.after {
			if !h.j.has(want) {
				t.Errorf("%s: %q missing from %v", step.name, want, calls)
			}
		}
	}
}

// A dispute review takes the market lock before the dispute lock, the same
// order as FileDispute, so the two never deadlock.
func TestReviewDispute_LocksMarketBeforeDispute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newAuthorityMarket(t, h)
	disputer := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	h.fund(disputer.UserID, 100)

	h.now = h.now.Add(10 * time.Minute)
	d, err := h.disputeService().FileDispute(ctx, disputer, service.FileDisputeRequest{
		MarketID: a.marketID, OptionID: a.optionID, Reason: "wrong team recorded",
	})
	if err != nil {
		t.Fatal(err)
	}

	h.j.reset()
	if _, err := h.disputeService().ReviewDispute(ctx, a.admin, d.ID, domain.DisputeDismissed, ""); err != nil {
		t.Fatal(err)
	}
	calls := h.j.list()
	if len(calls) < 3 || calls[1] != "market.lock" || calls[2] != "dispute.lock" {
		t.Errorf("calls = %v, want begin, market.lock, dispute.lock", calls)
	}
}

// ── Dispute fee ───────────────────────────────────────────────────────────────

func TestFileDispute_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newAuthorityMarket(t, h)
	poor := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	h.fund(poor.UserID, 5) // the fee is 10

	before := h.market(a.marketID)
	treasury := h.st.treasury.Balance
	txns := len(h.st.txns)

	h.now = h.now.Add(10 * time.Minute)
	h.j.reset()
	d, err := h.disputeService().FileDispute(ctx, poor, service.FileDisputeRequest{
		MarketID: a.marketID, OptionID: a.optionID, Reason: "wrong team recorded",
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("FileDispute() = %v, %v, want ErrInsufficientBalance", d, err)
	}

	calls := h.j.list()
	assertRolledBack(t, "FileDispute", calls)
	for _, write := range []string{"dispute.create", "treasury.credit", "wallet.log", "market.update"} {
		if h.j.has(write) {
			t.Errorf("%q ran before the fee was secured: %v", write, calls)
		}
	}
	if len(h.st.disputes) != 0 {
		t.Errorf("disputes stored = %d, want 0", len(h.st.disputes))
	}
	if got := h.market(a.marketID).Status; got != before.Status || got != domain.StatusResolved {
		t.Errorf("market status = %s, want %s", got, domain.StatusResolved)
	}
	if got := h.balance(poor.UserID); got != 5*domain.MicrosPerUnit {
		t.Errorf("filer balance = %d, want %d", got, 5*domain.MicrosPerUnit)
	}
	if h.st.treasury.Balance != treasury || len(h.st.txns) != txns {
		t.Errorf("treasury or audit rows changed: treasury %d -> %d, rows %d -> %d",
			treasury, h.st.treasury.Balance, txns, len(h.st.txns))
	}
}

func TestFileDispute_MovesFeeToTreasury(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newAuthorityMarket(t, h)
	disputer := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	h.fund(disputer.UserID, 100)

	h.now = h.now.Add(10 * time.Minute)
	d, err := h.disputeService().FileDispute(ctx, disputer, service.FileDisputeRequest{
		MarketID: a.marketID, OptionID: a.optionID, Reason: "wrong team recorded",
	})
	if err != nil {
		t.Fatal(err)
	}
	const fee = 10 * domain.MicrosPerUnit
	if d.ResolutionFeePaid != fee {
		t.Errorf("ResolutionFeePaid = %d, want %d", d.ResolutionFeePaid, fee)
	}
	if got := h.balance(disputer.UserID); got != 90*domain.MicrosPerUnit {
		t.Errorf("filer balance = %d, want %d", got, 90*domain.MicrosPerUnit)
	}
	if h.st.treasury.Balance != fee {
		t.Errorf("treasury = %d, want %d", h.st.treasury.Balance, fee)
	}
	if got := h.market(a.marketID).Status; got != domain.StatusDisputed {
		t.Errorf("market status = %s, want disputed", got)
	}

	// a second pending dispute from the same user is refused
	if _, err := h.disputeService().FileDispute(ctx, disputer, service.FileDisputeRequest{
		MarketID: a.marketID, OptionID: a.optionID, Reason: "again",
	}); !errors.Is(err, domain.ErrDisputeExists) {
		t.Errorf("second FileDispute() err = %v, want ErrDisputeExists", err)
	}
}

// ── Submissions ───────────────────────────────────────────────────────────────

func TestSubmitResolution_OpinionQuorum(t *testing.T) {
	h := newHarness(t)
	h.cfg.Resolution.OpinionQuorum = 2
	ctx := context.Background()
	creator := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	admin := domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin}
	stranger := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	marketID, optionID := h.seedMarket(creator.UserID, domain.ModeOpinion)
	svc := h.resolutionService()

	h.j.reset()
	if _, err := svc.SubmitResolution(ctx, stranger, marketID, optionID, domain.SideYes, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger: err = %v, want ErrUnauthorized", err)
	}
	assertRolledBack(t, "stranger submission", h.j.list())
	if h.j.has("submission.create") {
		t.Error("unauthorized submission was stored")
	}

	rounds := []struct {
		actor     domain.Actor
		outcome   domain.Side
		finalized bool
	}{
		{creator, domain.SideYes, false},
		{creator, domain.SideYes, false}, // the same submitter counts once
		{admin, domain.SideNo, false},
		{admin, domain.SideYes, true},
	}
	var final *service.SubmissionResult
	for i, r := range rounds {
		h.now = h.now.Add(time.Minute)
		res, err := svc.SubmitResolution(ctx, r.actor, marketID, optionID, r.outcome, nil)
		if err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
		if res.Finalized != r.finalized {
			t.Fatalf("submission %d: Finalized = %t, want %t", i, res.Finalized, r.finalized)
		}
		if !r.finalized && len(h.st.records) != 0 {
			t.Fatalf("submission %d: settlement written before quorum", i)
		}
		final = res
	}

	if len(h.st.subs) != 4 {
		t.Errorf("submissions stored = %d, want 4", len(h.st.subs))
	}
	if len(h.st.records) != 1 {
		t.Fatalf("settlement records = %d, want 1", len(h.st.records))
	}
	rec := final.Resolution.Settlement
	if rec.FinalOutcome != domain.SideYes || rec.ResolutionMode != string(domain.ModeOpinion) {
		t.Errorf("record = %s/%s, want YES/OPINION", rec.FinalOutcome, rec.ResolutionMode)
	}
	if len(rec.ResolutionTrace) != 4 {
		t.Errorf("trace entries = %d, want every submission of the round", len(rec.ResolutionTrace))
	}
	o := h.option(marketID)
	if !o.IsResolved || o.DisputeDeadline != nil {
		t.Errorf("option resolved=%t deadline=%v, want resolved with no dispute window", o.IsResolved, o.DisputeDeadline)
	}
	if got := h.market(marketID).Status; got != domain.StatusResolved {
		t.Errorf("market status = %s, want resolved", got)
	}

	if _, err := svc.SubmitResolution(ctx, admin, marketID, optionID, domain.SideNo, nil); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("late submission: err = %v, want ErrAlreadyResolved", err)
	}
}

// ── Upheld dispute → corrective settlement ───────────────────────────────────

func TestUpheldDispute_CorrectionSupersedesRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newAuthorityMarket(t, h)
	disputer := domain.Actor{UserID: uuid.New(), Role: domain.RoleUser}
	h.fund(disputer.UserID, 100)
	first := a.resolution.Settlement

	h.now = h.now.Add(20 * time.Minute)
	d, err := h.disputeService().FileDispute(ctx, disputer, service.FileDisputeRequest{
		MarketID: a.marketID, OptionID: a.optionID, Reason: "the other team won",
	})
	if err != nil {
		t.Fatal(err)
	}

	h.now = h.now.Add(20 * time.Minute)
	review, err := h.disputeService().ReviewDispute(ctx, a.admin, d.ID, domain.DisputeResolved, "footage reviewed")
	if err != nil {
		t.Fatal(err)
	}
	if !review.Overturned || review.MarketStatus != domain.StatusDisputed {
		t.Fatalf("review = overturned %t status %s, want overturned and disputed", review.Overturned, review.MarketStatus)
	}
	if o := h.option(a.marketID); o.IsResolved || o.ResolutionRound != 1 {
		t.Fatalf("option resolved=%t round=%d, want reopened in round 1", o.IsResolved, o.ResolutionRound)
	}
	if _, err := h.liquidityService().ClaimLpRewards(ctx, a.lp, a.marketID); !errors.Is(err, domain.ErrMarketDisputed) {
		t.Errorf("claim while awaiting correction: err = %v, want ErrMarketDisputed", err)
	}

	h.now = h.now.Add(5 * time.Minute)
	res, err := h.resolutionService().DirectResolveOption(ctx, a.creator, a.marketID, a.optionID, domain.SideNo)
	if err != nil {
		t.Fatal(err)
	}
	rec := res.Settlement
	if rec.SupersedesID == nil || *rec.SupersedesID != first.ID {
		t.Errorf("SupersedesID = %v, want %s", rec.SupersedesID, first.ID)
	}
	if len(rec.ResolutionTrace) != 2 {
		t.Fatalf("trace = %+v, want overturn then direct resolve", rec.ResolutionTrace)
	}
	if e := rec.ResolutionTrace[0]; e.Kind != domain.TraceOverturn || e.DisputeID == nil || *e.DisputeID != d.ID || e.ActorID != a.admin.UserID {
		t.Errorf("trace[0] = %+v, want the upheld dispute reviewed by the admin", e)
	}
	if e := rec.ResolutionTrace[1]; e.Kind != domain.TraceDirectResolve || *e.Outcome != domain.SideNo {
		t.Errorf("trace[1] = %+v, want direct resolve NO", e)
	}
	if ok, _, err := rec.Verify(); !ok || err != nil {
		t.Errorf("corrective record does not verify: %v", err)
	}
	if len(h.st.records) != 2 {
		t.Errorf("settlement records = %d, want 2", len(h.st.records))
	}
	if res.Option.DisputeDeadline != nil {
		t.Errorf("correction opened a dispute window until %s", res.Option.DisputeDeadline)
	}
	if res.MarketStatus != domain.StatusResolved {
		t.Errorf("market status = %s, want resolved", res.MarketStatus)
	}

	if _, err := h.disputeService().FileDispute(ctx, disputer, service.FileDisputeRequest{
		MarketID: a.marketID, OptionID: a.optionID, Reason: "still wrong",
	}); !errors.Is(err, domain.ErrWindowExpired) {
		t.Errorf("dispute against a correction: err = %v, want ErrWindowExpired", err)
	}
}

// ── LP claims ─────────────────────────────────────────────────────────────────

func TestClaimLpRewards_WaitsForDisputeWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newAuthorityMarket(t, h)
	deadline := *a.resolution.Option.DisputeDeadline
	lpBefore := h.balance(a.lp.UserID)

	h.now = a.resolvedAt.Add(time.Minute)
	h.j.reset()
	if _, err := h.liquidityService().ClaimLpRewards(ctx, a.lp, a.marketID); !errors.Is(err, domain.ErrDisputeWindowOpen) {
		t.Fatalf("claim inside the window: err = %v, want ErrDisputeWindowOpen", err)
	}
	assertRolledBack(t, "ClaimLpRewards", h.j.list())
	if h.j.has("wallet.credit") || h.j.has("position.delete") {
		t.Errorf("rejected claim wrote: %v", h.j.list())
	}
	if _, err := h.liquidityService().GetPosition(ctx, a.lp, a.marketID); err != nil {
		t.Errorf("position gone after a rejected claim: %v", err)
	}

	h.now = deadline.Add(time.Second)
	res, err := h.liquidityService().ClaimLpRewards(ctx, a.lp, a.marketID)
	if err != nil {
		t.Fatalf("claim after the window: %v", err)
	}
	// 500 deposited + the 416 micro fee; the 20,834 curve cost stays reserved
	if res.Amount != 500_000_416 {
		t.Errorf("payout = %d, want 500000416", res.Amount)
	}
	if got := h.balance(a.lp.UserID); got != lpBefore+res.Amount {
		t.Errorf("LP balance = %d, want %d", got, lpBefore+res.Amount)
	}
	if _, err := h.liquidityService().GetPosition(ctx, a.lp, a.marketID); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("position after claim: err = %v, want ErrPositionNotFound", err)
	}
	if _, err := h.liquidityService().ClaimLpRewards(ctx, a.lp, a.marketID); !errors.Is(err, domain.ErrPoolEmpty) {
		t.Errorf("second claim: err = %v, want ErrPoolEmpty", err)
	}
}
