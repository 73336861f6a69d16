package domain

import (
	"math"
	"time"

	"github.com/evetabi/settlement/internal/curve"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeAction is the direction of a curve trade.
type TradeAction string

const (
	TradeBuy  TradeAction = "buy"
	TradeSell TradeAction = "sell"
)

// Trade is the priced, immutable record of one executed curve trade.
type Trade struct {
	ID           uuid.UUID       `json:"id"            db:"id"`
	MarketID     uuid.UUID       `json:"market_id"     db:"market_id"`
	OptionID     uuid.UUID       `json:"option_id"     db:"option_id"`
	UserID       uuid.UUID       `json:"user_id"       db:"user_id"`
	Side         Side            `json:"side"          db:"side"`
	Action       TradeAction     `json:"action"        db:"action"`
	Quantity     decimal.Decimal `json:"quantity"      db:"quantity"`
	SupplyBefore decimal.Decimal `json:"supply_before" db:"supply_before"`
	Amount       Micros          `json:"amount"        db:"amount"` // curve cost or gross payout
	Fee          Micros          `json:"fee"           db:"fee"`
	Total        Micros          `json:"total"         db:"total"` // debited on buy, credited on sell
	CreatedAt    time.Time       `json:"created_at"    db:"created_at"`
}

// QuoteTrade prices qty shares of side against the option's current supply.
// Buys round the curve cost up and sells round the payout down; the fee is
// floor(amount * feeRate).
func QuoteTrade(p *curve.Pricer, o *MarketOption, side Side, action TradeAction, qty, feeRate decimal.Decimal) (*Trade, error) {
	if !side.IsValid() {
		return nil, ErrInvalidSide
	}
	if err := ValidateQuantity(qty); err != nil {
		return nil, err
	}

	supply := o.Supply(side)
	t := &Trade{
		MarketID:     o.MarketID,
		OptionID:     o.ID,
		Side:         side,
		Action:       action,
		Quantity:     qty,
		SupplyBefore: supply,
	}

	switch action {
	case TradeBuy:
		cost, err := p.BuyCostMicros(supply, qty)
		if err != nil {
			return nil, ErrInvalidQuantity
		}
		// the new supply must stay representable in the pool reserve
		if _, err := p.BuybackMicros(supply.Add(qty)); err != nil {
			return nil, ErrInvalidQuantity
		}
		t.Amount = Micros(cost)
		t.Fee = feeOf(t.Amount, feeRate)
		if t.Fee > math.MaxInt64-t.Amount {
			return nil, ErrInvalidQuantity
		}
		t.Total = t.Amount + t.Fee
	case TradeSell:
		if qty.GreaterThan(supply) {
			return nil, ErrInvalidQuantity
		}
		payout, err := p.SellPayoutMicros(supply, qty)
		if err != nil {
			return nil, ErrInvalidQuantity
		}
		t.Amount = Micros(payout)
		t.Fee = feeOf(t.Amount, feeRate)
		t.Total = t.Amount - t.Fee
		if t.Total <= 0 {
			// dust: the payout rounds to nothing after the fee
			return nil, ErrInvalidQuantity
		}
	default:
		return nil, ErrInvalidQuantity
	}
	return t, nil
}

// ApplyTrade moves option supply, the trader's holding and the pool for a
// quoted trade. Nothing is mutated when it returns an error.
func (m *Market) ApplyTrade(o *MarketOption, h *OptionHolding, t *Trade) error {
	switch t.Action {
	case TradeBuy:
		m.CollectTradeCost(t.Amount, t.Fee)
		o.AddSupply(t.Side, t.Quantity)
		h.Quantity = h.Quantity.Add(t.Quantity)
	case TradeSell:
		if h.Quantity.LessThan(t.Quantity) {
			return ErrInvalidQuantity
		}
		if err := m.PayTradeProceeds(t.Amount, t.Fee); err != nil {
			return err
		}
		o.AddSupply(t.Side, t.Quantity.Neg())
		h.Quantity = h.Quantity.Sub(t.Quantity)
	default:
		return ErrInvalidQuantity
	}
	return nil
}

func feeOf(amount Micros, rate decimal.Decimal) Micros {
	if amount <= 0 || !rate.IsPositive() {
		return 0
	}
	return Micros(decimal.NewFromInt(int64(amount)).Mul(rate).Floor().IntPart())
}
