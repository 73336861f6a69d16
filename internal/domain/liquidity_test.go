package domain_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/evetabi/settlement/internal/curve"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func emptyMarket() *domain.Market {
	return &domain.Market{
		ID:        uuid.New(),
		Status:    domain.StatusOpen,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func sumShares(positions ...*domain.LiquidityPosition) int64 {
	var total int64
	for _, p := range positions {
		total += p.Shares
	}
	return total
}

// ── Deposit ───────────────────────────────────────────────────────────────────

func TestDeposit_FirstDepositMintsOneToOne(t *testing.T) {
	m := emptyMarket()
	pos := &domain.LiquidityPosition{}

	minted, err := m.Deposit(pos, 100_000_000)
	if err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if minted != 100_000_000 {
		t.Errorf("minted = %d, want 100000000", minted)
	}
	if m.SharedPoolLiquidity != 100_000_000 || m.TotalSharedLPShares != 100_000_000 {
		t.Errorf("pool = (%d, %d), want (100000000, 100000000)",
			m.SharedPoolLiquidity, m.TotalSharedLPShares)
	}
	if pos.Shares != 100_000_000 || pos.DepositedAmount != 100_000_000 {
		t.Errorf("position = (%d, %d)", pos.Shares, pos.DepositedAmount)
	}
}

func TestDeposit_SecondDepositIsProportionalAndTruncates(t *testing.T) {
	m := emptyMarket()
	a, b := &domain.LiquidityPosition{}, &domain.LiquidityPosition{}

	if _, err := m.Deposit(a, 100_000_000); err != nil {
		t.Fatal(err)
	}
	m.AccrueFee(10_000_000) // L=110M, S=100M

	minted, err := m.Deposit(b, 50_000_000)
	if err != nil {
		t.Fatal(err)
	}
	// floor(50M * 100M / 110M) = 45,454,545
	if minted != 45_454_545 {
		t.Errorf("minted = %d, want 45454545", minted)
	}
	if m.TotalSharedLPShares != 100_000_000+minted {
		t.Errorf("total shares = %d, want %d", m.TotalSharedLPShares, 100_000_000+minted)
	}
	if got := sumShares(a, b); got != m.TotalSharedLPShares {
		t.Errorf("sum of positions = %d, total = %d", got, m.TotalSharedLPShares)
	}
}

func TestDeposit_Rejects(t *testing.T) {
	m := emptyMarket()
	pos := &domain.LiquidityPosition{}
	if _, err := m.Deposit(pos, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("zero deposit: err = %v, want ErrInvalidQuantity", err)
	}

	m.Status = domain.StatusDisputed
	if _, err := m.Deposit(pos, 10); !errors.Is(err, domain.ErrMarketDisputed) {
		t.Errorf("disputed: err = %v, want ErrMarketDisputed", err)
	}
	m.Status = domain.StatusResolved
	if _, err := m.Deposit(pos, 10); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("resolved: err = %v, want ErrAlreadyResolved", err)
	}
}

func TestDeposit_TooSmallToMint(t *testing.T) {
	m := emptyMarket()
	m.SharedPoolLiquidity = 1_000
	m.TotalSharedLPShares = 10 // one share is worth 100 micros
	pos := &domain.LiquidityPosition{}
	if _, err := m.Deposit(pos, 50); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("err = %v, want ErrInvalidQuantity", err)
	}
	if m.SharedPoolLiquidity != 1_000 {
		t.Errorf("pool mutated on failure: %d", m.SharedPoolLiquidity)
	}
}

// ── Fees ──────────────────────────────────────────────────────────────────────

func TestAccrueFee_RaisesShareValue(t *testing.T) {
	m := emptyMarket()
	pos := &domain.LiquidityPosition{}
	_, _ = m.Deposit(pos, 1_000_000)

	before := m.PositionValue(pos)
	m.AccrueFee(20_000)
	m.AccrueFee(-5) // ignored

	if m.TotalSharedLPShares != 1_000_000 {
		t.Errorf("fee accrual minted shares: %d", m.TotalSharedLPShares)
	}
	if m.AccumulatedLPFees != 20_000 {
		t.Errorf("accumulated fees = %d, want 20000", m.AccumulatedLPFees)
	}
	if after := m.PositionValue(pos); after != before+20_000 {
		t.Errorf("PositionValue() = %d, want %d", after, before+20_000)
	}
}

// ── Withdraw ──────────────────────────────────────────────────────────────────

func TestWithdraw(t *testing.T) {
	m := emptyMarket()
	pos := &domain.LiquidityPosition{}
	_, _ = m.Deposit(pos, 100_000_000)

	paid, err := m.Withdraw(pos, 40_000_000, 0)
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if paid != 40_000_000 {
		t.Errorf("paid = %d, want 40000000", paid)
	}
	if pos.Shares != 60_000_000 || m.TotalSharedLPShares != 60_000_000 || m.SharedPoolLiquidity != 60_000_000 {
		t.Errorf("after withdraw: pos=%d total=%d pool=%d", pos.Shares, m.TotalSharedLPShares, m.SharedPoolLiquidity)
	}
}

func TestWithdraw_CannotTouchReserve(t *testing.T) {
	m := emptyMarket()
	pos := &domain.LiquidityPosition{}
	_, _ = m.Deposit(pos, 100_000_000)

	// 90M reserved for outstanding option supply, so 10M available
	_, err := m.Withdraw(pos, 40_000_000, 90_000_000)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if pos.Shares != 100_000_000 || m.SharedPoolLiquidity != 100_000_000 {
		t.Error("failed withdrawal mutated state")
	}

	if _, err := m.Withdraw(pos, 10_000_000, 90_000_000); err != nil {
		t.Errorf("withdrawal of exactly the available amount failed: %v", err)
	}
}

func TestWithdraw_Rejects(t *testing.T) {
	m := emptyMarket()
	pos := &domain.LiquidityPosition{}
	if _, err := m.Withdraw(pos, 1, 0); !errors.Is(err, domain.ErrPoolEmpty) {
		t.Errorf("empty pool: err = %v, want ErrPoolEmpty", err)
	}
	_, _ = m.Deposit(pos, 1_000)
	if _, err := m.Withdraw(pos, 0, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("zero shares: err = %v, want ErrInvalidQuantity", err)
	}
	if _, err := m.Withdraw(pos, 1_001, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("more than held: err = %v, want ErrInvalidQuantity", err)
	}
	m.Status = domain.StatusResolved
	if _, err := m.Withdraw(pos, 1, 0); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Errorf("resolved: err = %v, want ErrAlreadyResolved", err)
	}
}

// ── Claim ─────────────────────────────────────────────────────────────────────

func TestClaim_ProportionalAndOnce(t *testing.T) {
	m := emptyMarket()
	a, b := &domain.LiquidityPosition{}, &domain.LiquidityPosition{}
	_, _ = m.Deposit(a, 60_000_000)
	_, _ = m.Deposit(b, 40_000_000)
	m.Status = domain.StatusResolved

	const reserved domain.Micros = 20_000_000 // winning supply buy-back

	paidA, err := m.Claim(a, nil, reserved, time.Now())
	if err != nil {
		t.Fatalf("Claim(a) error = %v", err)
	}
	// floor(60M * (100M - 20M) / 100M)
	if paidA != 48_000_000 {
		t.Errorf("paidA = %d, want 48000000", paidA)
	}
	paidB, err := m.Claim(b, nil, reserved, time.Now())
	if err != nil {
		t.Fatalf("Claim(b) error = %v", err)
	}
	if paidB != 32_000_000 {
		t.Errorf("paidB = %d, want 32000000", paidB)
	}
	if m.SharedPoolLiquidity != reserved {
		t.Errorf("pool after claims = %d, want the reserve %d", m.SharedPoolLiquidity, reserved)
	}
	if m.TotalSharedLPShares != 0 || sumShares(a, b) != 0 {
		t.Errorf("shares remain: total=%d positions=%d", m.TotalSharedLPShares, sumShares(a, b))
	}

	if _, err := m.Claim(a, nil, reserved, time.Now()); !errors.Is(err, domain.ErrPoolEmpty) {
		t.Errorf("second claim: err = %v, want ErrPoolEmpty", err)
	}
}

func TestClaim_RequiresResolvedMarket(t *testing.T) {
	m := emptyMarket()
	pos := &domain.LiquidityPosition{}
	_, _ = m.Deposit(pos, 1_000)

	if _, err := m.Claim(pos, nil, 0, time.Now()); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Errorf("open: err = %v, want ErrMarketNotResolved", err)
	}
	m.Status = domain.StatusDisputed
	if _, err := m.Claim(pos, nil, 0, time.Now()); !errors.Is(err, domain.ErrMarketDisputed) {
		t.Errorf("disputed: err = %v, want ErrMarketDisputed", err)
	}
}

func TestShareInvariant_AcrossOperations(t *testing.T) {
	m := emptyMarket()
	ps := []*domain.LiquidityPosition{{}, {}, {}}

	_, _ = m.Deposit(ps[0], 1_000_000)
	m.AccrueFee(3_333)
	_, _ = m.Deposit(ps[1], 777_777)
	_, _ = m.Withdraw(ps[0], 123_456, 0)
	m.AccrueFee(999)
	_, _ = m.Deposit(ps[2], 5_000_001)
	_, _ = m.Withdraw(ps[1], ps[1].Shares, 0)

	if got := sumShares(ps...); got != m.TotalSharedLPShares {
		t.Fatalf("sum of positions = %d, total_shared_lp_shares = %d", got, m.TotalSharedLPShares)
	}

	m.Status = domain.StatusResolved
	for _, p := range ps {
		if p.Shares > 0 {
			if _, err := m.Claim(p, nil, 0, time.Now()); err != nil {
				t.Fatal(err)
			}
		}
	}
	if m.TotalSharedLPShares != 0 || m.SharedPoolLiquidity < 0 {
		t.Errorf("after claims: total=%d pool=%d", m.TotalSharedLPShares, m.SharedPoolLiquidity)
	}
}

func TestClaim_WaitsForDisputeWindow(t *testing.T) {
	p := curve.NewPricer(curve.DefaultK)
	resolvedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	deadline := resolvedAt.Add(domain.DefaultDisputeWindow)

	m := emptyMarket()
	pos := &domain.LiquidityPosition{}
	if _, err := m.Deposit(pos, 1_000_000_000); err != nil {
		t.Fatal(err)
	}
	o := newOption(m)
	o.YesQuantity = decimal.NewFromInt(10)
	o.NoQuantity = decimal.NewFromInt(100)
	yes := domain.SideYes
	o.IsResolved, o.WinningSide, o.DisputeDeadline = true, &yes, &deadline
	options := []*domain.MarketOption{o}
	m.Status = domain.StatusResolved

	// inside the window only the YES supply is reserved; an overturn would
	// bring the NO supply back into the reserve
	if _, err := m.Claim(pos, options, domain.Reserve(p, options), resolvedAt.Add(time.Minute)); !errors.Is(err, domain.ErrDisputeWindowOpen) {
		t.Fatalf("claim inside the window: err = %v, want ErrDisputeWindowOpen", err)
	}
	if pos.Shares != 1_000_000_000 || m.SharedPoolLiquidity != 1_000_000_000 {
		t.Fatal("rejected claim mutated state")
	}

	o.Overturn()
	if got, want := domain.Reserve(p, options), domain.Micros(20_834+20_833_334); got != want {
		t.Errorf("reserve after overturn = %d, want %d", got, want)
	}

	// re-resolved, window elapsed
	o.IsResolved, o.WinningSide, o.DisputeDeadline = true, &yes, &deadline
	paid, err := m.Claim(pos, options, domain.Reserve(p, options), deadline)
	if err != nil {
		t.Fatalf("claim at the deadline: %v", err)
	}
	if paid != 1_000_000_000-20_834 {
		t.Errorf("paid = %d, want %d", paid, 1_000_000_000-20_834)
	}
}

func TestReserve_SaturatesInsteadOfWrapping(t *testing.T) {
	p := curve.NewPricer(curve.DefaultK)
	o := newOption(emptyMarket())
	o.YesQuantity = decimal.NewFromInt(1_000_000_000)
	o.NoQuantity = decimal.NewFromInt(700_000)

	if got := domain.Reserve(p, []*domain.MarketOption{o}); got != domain.Micros(math.MaxInt64) {
		t.Errorf("Reserve() = %d, want MaxInt64", got)
	}
}

// ── Reserve ───────────────────────────────────────────────────────────────────

func TestReserve(t *testing.T) {
	p := curve.NewPricer(curve.DefaultK)
	m := emptyMarket()
	o := newOption(m)
	o.YesQuantity = decimal.NewFromInt(10)
	o.NoQuantity = decimal.NewFromInt(10)

	both := domain.Reserve(p, []*domain.MarketOption{o})
	if both != 2*20_834 {
		t.Errorf("unresolved reserve = %d, want %d", both, 2*20_834)
	}

	yes := domain.SideYes
	o.IsResolved = true
	o.WinningSide = &yes
	if got := domain.Reserve(p, []*domain.MarketOption{o}); got != 20_834 {
		t.Errorf("resolved reserve = %d, want 20834", got)
	}
}
