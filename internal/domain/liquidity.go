package domain

import (
	"math"
	"time"

	"github.com/evetabi/settlement/internal/curve"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// LiquidityPosition
// ──────────────────────────────────────────────────────────────────────────────

// LiquidityPosition is one provider's stake in a market's shared pool.
type LiquidityPosition struct {
	ID              uuid.UUID `json:"id"               db:"id"`
	UserID          uuid.UUID `json:"user_id"          db:"user_id"`
	MarketID        uuid.UUID `json:"market_id"        db:"market_id"`
	Shares          int64     `json:"shares"           db:"shares"`
	DepositedAmount Micros    `json:"deposited_amount" db:"deposited_amount"`
	CreatedAt       time.Time `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"       db:"updated_at"`
}

// PositionView adds the derived current value of a position.
type PositionView struct {
	*LiquidityPosition
	CurrentValue Micros `json:"current_value"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Pool ledger: the only code that mutates shared_pool_liquidity,
// total_shared_lp_shares and accumulated_lp_fees.
// ──────────────────────────────────────────────────────────────────────────────

// Deposit adds amount to the pool and mints LP shares into pos.
//
//	empty pool:  minted = amount
//	otherwise:   minted = floor(amount * S / L)
func (m *Market) Deposit(pos *LiquidityPosition, amount Micros) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidQuantity
	}
	if err := m.poolOpen(); err != nil {
		return 0, err
	}

	var minted int64
	if m.TotalSharedLPShares == 0 || m.SharedPoolLiquidity == 0 {
		minted = int64(amount)
	} else {
		minted = mulDivFloor(int64(amount), m.TotalSharedLPShares, int64(m.SharedPoolLiquidity))
	}
	if minted <= 0 {
		// deposit too small to buy a single share
		return 0, ErrInvalidQuantity
	}

	m.SharedPoolLiquidity += amount
	m.TotalSharedLPShares += minted
	pos.Shares += minted
	pos.DepositedAmount += amount
	return minted, nil
}

// AccrueFee credits a trading fee to the pool without minting shares, raising
// the value of every outstanding share.
func (m *Market) AccrueFee(fee Micros) {
	if fee <= 0 {
		return
	}
	m.SharedPoolLiquidity += fee
	m.AccumulatedLPFees += fee
}

// Withdraw burns shares from pos before resolution and returns the payout
// floor(shares * L / S). The payout may not dip into the liquidity reserved
// for outstanding option supply.
func (m *Market) Withdraw(pos *LiquidityPosition, shares int64, reserved Micros) (Micros, error) {
	if shares <= 0 {
		return 0, ErrInvalidQuantity
	}
	if err := m.poolOpen(); err != nil {
		return 0, err
	}
	if m.TotalSharedLPShares == 0 {
		return 0, ErrPoolEmpty
	}
	if shares > pos.Shares {
		return 0, ErrInvalidQuantity
	}

	payout := Micros(mulDivFloor(shares, int64(m.SharedPoolLiquidity), m.TotalSharedLPShares))
	if payout <= 0 {
		// too few shares to be worth a single micro
		return 0, ErrInvalidQuantity
	}
	if payout > m.Available(reserved) {
		return 0, ErrInsufficientBalance
	}

	m.SharedPoolLiquidity -= payout
	m.TotalSharedLPShares -= shares
	pos.Shares -= shares
	return payout, nil
}

// Claim pays out pos's proportional share of the settled pool and burns all
// of its shares. A second claim finds zero shares and fails with ErrPoolEmpty.
// Nothing can be claimed until every option's dispute window has closed: an
// overturn inside the window changes the reserve.
func (m *Market) Claim(pos *LiquidityPosition, options []*MarketOption, reserved Micros, now time.Time) (Micros, error) {
	if m.Status == StatusDisputed {
		return 0, ErrMarketDisputed
	}
	if m.Status != StatusResolved {
		return 0, ErrMarketNotResolved
	}
	for _, o := range options {
		if o.DisputeDeadline != nil && now.Before(*o.DisputeDeadline) {
			return 0, ErrDisputeWindowOpen
		}
	}
	if m.TotalSharedLPShares == 0 || pos.Shares <= 0 {
		return 0, ErrPoolEmpty
	}

	payout := Micros(mulDivFloor(pos.Shares, int64(m.Available(reserved)), m.TotalSharedLPShares))

	m.SharedPoolLiquidity -= payout
	m.TotalSharedLPShares -= pos.Shares
	pos.Shares = 0
	return payout, nil
}

// CollectTradeCost books a buy: the curve cost backs the new supply and the
// fee accrues to providers.
func (m *Market) CollectTradeCost(cost, fee Micros) {
	m.SharedPoolLiquidity += cost
	m.AccrueFee(fee)
}

// PayTradeProceeds books a sell: the pool pays the gross curve payout and
// keeps the fee.
func (m *Market) PayTradeProceeds(gross, fee Micros) error {
	if gross > m.SharedPoolLiquidity {
		return ErrInsufficientBalance
	}
	m.SharedPoolLiquidity -= gross
	m.AccrueFee(fee)
	return nil
}

// Available returns pool liquidity not reserved for option supply.
func (m *Market) Available(reserved Micros) Micros {
	if avail := m.SharedPoolLiquidity - reserved; avail > 0 {
		return avail
	}
	return 0
}

// PositionValue returns shares / S * L, rounded down.
func (m *Market) PositionValue(pos *LiquidityPosition) Micros {
	if m.TotalSharedLPShares == 0 || pos.Shares <= 0 {
		return 0
	}
	return Micros(mulDivFloor(pos.Shares, int64(m.SharedPoolLiquidity), m.TotalSharedLPShares))
}

func (m *Market) poolOpen() error {
	switch m.Status {
	case StatusDisputed:
		return ErrMarketDisputed
	case StatusResolved:
		return ErrAlreadyResolved
	}
	return nil
}

// Reserve returns the liquidity held back for outstanding option supply: the
// curve buy-back value of every side, and only the winning side once an
// option is resolved.
//
// The sum saturates at math.MaxInt64, which leaves nothing available.
func Reserve(p *curve.Pricer, options []*MarketOption) Micros {
	var total int64
	add := func(supply decimal.Decimal) {
		v, err := p.BuybackMicros(supply)
		if err != nil || v > math.MaxInt64-total {
			total = math.MaxInt64
			return
		}
		total += v
	}
	for _, o := range options {
		if o.IsResolved && o.WinningSide != nil {
			add(o.Supply(*o.WinningSide))
			continue
		}
		add(o.YesQuantity)
		add(o.NoQuantity)
	}
	return Micros(total)
}

// mulDivFloor returns floor(a*b/c) for non-negative operands without int64
// overflow in the intermediate product.
func mulDivFloor(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	q, _ := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)).QuoRem(decimal.NewFromInt(c), 0)
	return q.IntPart()
}
