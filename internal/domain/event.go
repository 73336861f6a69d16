package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies an outbound domain event.
type EventType string

const (
	EventTradeExecuted   EventType = "trade_executed"
	EventPoolUpdated     EventType = "pool_updated"
	EventOptionResolved  EventType = "option_resolved"
	EventDisputeFiled    EventType = "dispute_filed"
	EventDisputeReviewed EventType = "dispute_reviewed"
)

// Event is published after the transaction that produced it commits. The
// payload carries enough state for a client to update without re-querying.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	MarketID  uuid.UUID   `json:"market_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(t EventType, marketID uuid.UUID, payload interface{}, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		MarketID:  marketID,
		Payload:   payload,
		Timestamp: at,
	}
}

// PoolState is the public snapshot of a market's shared pool.
type PoolState struct {
	MarketID            uuid.UUID    `json:"market_id"`
	Status              MarketStatus `json:"status"`
	SharedPoolLiquidity Micros       `json:"shared_pool_liquidity"`
	TotalSharedLPShares int64        `json:"total_shared_lp_shares"`
	AccumulatedLPFees   Micros       `json:"accumulated_lp_fees"`
	Reserved            Micros       `json:"reserved"`
}

// PoolStateOf snapshots m.
func PoolStateOf(m *Market, reserved Micros) PoolState {
	return PoolState{
		MarketID:            m.ID,
		Status:              m.Status,
		SharedPoolLiquidity: m.SharedPoolLiquidity,
		TotalSharedLPShares: m.TotalSharedLPShares,
		AccumulatedLPFees:   m.AccumulatedLPFees,
		Reserved:            reserved,
	}
}

// TradeExecutedPayload accompanies EventTradeExecuted.
type TradeExecutedPayload struct {
	Trade       *Trade          `json:"trade"`
	YesQuantity decimal.Decimal `json:"yes_quantity"`
	NoQuantity  decimal.Decimal `json:"no_quantity"`
	YesPrice    decimal.Decimal `json:"yes_price"`
	NoPrice     decimal.Decimal `json:"no_price"`
	Pool        PoolState       `json:"pool"`
}

// PoolUpdatedPayload accompanies EventPoolUpdated.
type PoolUpdatedPayload struct {
	Action TxType    `json:"action"`
	UserID uuid.UUID `json:"user_id"`
	Amount Micros    `json:"amount"`
	Shares int64     `json:"shares"`
	Pool   PoolState `json:"pool"`
}

// OptionResolvedPayload accompanies EventOptionResolved.
type OptionResolvedPayload struct {
	OptionID        uuid.UUID    `json:"option_id"`
	WinningSide     Side         `json:"winning_side"`
	DisputeDeadline *time.Time   `json:"dispute_deadline"`
	SettlementID    uuid.UUID    `json:"settlement_id"`
	CanonicalHash   string       `json:"canonical_hash"`
	MarketStatus    MarketStatus `json:"market_status"`
}

// DisputeFiledPayload accompanies EventDisputeFiled.
type DisputeFiledPayload struct {
	Dispute      *Dispute     `json:"dispute"`
	MarketStatus MarketStatus `json:"market_status"`
}

// DisputeReviewedPayload accompanies EventDisputeReviewed.
type DisputeReviewedPayload struct {
	Dispute      *Dispute     `json:"dispute"`
	Overturned   bool         `json:"overturned"`
	MarketStatus MarketStatus `json:"market_status"`
}
