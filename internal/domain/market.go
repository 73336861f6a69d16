// Package domain defines the core entities, authority policies and ledger
// math of the market settlement service.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Money
// ──────────────────────────────────────────────────────────────────────────────

// Micros is an amount of the settlement currency in 1/1,000,000 units.
type Micros int64

// MicrosPerUnit is the number of micro-units in one currency unit.
const MicrosPerUnit Micros = 1_000_000

// Decimal returns the amount in whole currency units.
func (m Micros) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -6)
}

// String formats the amount with six decimals, e.g. "100.000000".
func (m Micros) String() string {
	return m.Decimal().StringFixed(6)
}

// ParseMicros parses a decimal currency string ("100.25") into micro-units.
// More than six decimals is rejected rather than rounded.
func ParseMicros(s string) (Micros, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
	}
	if !d.Equal(d.Truncate(6)) {
		return 0, ErrInvalidQuantity
	}
	return Micros(d.Shift(6).IntPart()), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "open"     // trading and liquidity allowed
	StatusDisputed MarketStatus = "disputed" // a resolution is contested
	StatusResolved MarketStatus = "resolved" // every option has a final outcome
)

// ResolutionMode is the configured authority model of a market.
type ResolutionMode string

const (
	ModeOracle    ResolutionMode = "ORACLE"    // platform admins decide
	ModeAuthority ResolutionMode = "AUTHORITY" // designated resolver decides
	ModeOpinion   ResolutionMode = "OPINION"   // creator opinion, not disputable
)

// Side selects one of the two parallel curves of an option.
type Side int16

const (
	SideYes Side = 1
	SideNo  Side = 2
)

// IsValid returns true for YES and NO.
func (s Side) IsValid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// String returns "YES" or "NO".
func (s Side) String() string {
	switch s {
	case SideYes:
		return "YES"
	case SideNo:
		return "NO"
	default:
		return fmt.Sprintf("Side(%d)", int16(s))
	}
}

// ParseSide accepts YES/NO (any case) or the numeric forms 1/2.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "YES", "1":
		return SideYes, nil
	case "NO", "2":
		return SideNo, nil
	}
	return 0, ErrInvalidSide
}

// MaxQuantityDecimals is the precision of option share quantities.
const MaxQuantityDecimals = 6

// MaxQuantity caps the shares moved by a single trade.
var MaxQuantity = decimal.NewFromInt(100_000)

// ValidateQuantity checks that q is positive, at most MaxQuantity and has at
// most six decimals.
func ValidateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() || q.GreaterThan(MaxQuantity) {
		return ErrInvalidQuantity
	}
	if !q.Equal(q.Truncate(MaxQuantityDecimals)) {
		return ErrInvalidQuantity
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Market
// ──────────────────────────────────────────────────────────────────────────────

// Market is a question with N independently resolved options sharing one
// liquidity pool.
type Market struct {
	ID                  uuid.UUID       `json:"id"                     db:"id"`
	Question            string          `json:"question"               db:"question"`
	CreatorID           uuid.UUID       `json:"creator_id"             db:"creator_id"`
	ResolverID          *uuid.UUID      `json:"resolver_id"            db:"resolver_id"`
	ResolutionMode      *ResolutionMode `json:"resolution_mode"        db:"resolution_mode"` // NULL = legacy
	Status              MarketStatus    `json:"status"                 db:"status"`
	ExpiresAt           time.Time       `json:"expires_at"             db:"expires_at"`
	SharedPoolLiquidity Micros          `json:"shared_pool_liquidity"  db:"shared_pool_liquidity"`
	TotalSharedLPShares int64           `json:"total_shared_lp_shares" db:"total_shared_lp_shares"`
	AccumulatedLPFees   Micros          `json:"accumulated_lp_fees"    db:"accumulated_lp_fees"`
	IsResolved          bool            `json:"is_resolved"            db:"is_resolved"`
	ResolvedAt          *time.Time      `json:"resolved_at"            db:"resolved_at"`
	CreatedAt           time.Time       `json:"created_at"             db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"             db:"updated_at"`
}

// IsInitialized returns true once the first liquidity deposit has landed.
func (m *Market) IsInitialized() bool {
	return m.SharedPoolLiquidity > 0 && m.TotalSharedLPShares > 0
}

// IsDisputed returns true while a dispute escalation is open.
func (m *Market) IsDisputed() bool {
	return m.Status == StatusDisputed
}

// CanTrade reports whether a trade on option o may proceed at now.
func (m *Market) CanTrade(o *MarketOption, now time.Time) error {
	switch {
	case m.Status == StatusDisputed:
		return ErrMarketDisputed
	case m.Status == StatusResolved || o.IsResolved:
		return ErrAlreadyResolved
	case !now.Before(m.ExpiresAt):
		return ErrMarketNotOpen
	case !m.IsInitialized():
		return ErrMarketNotInitialized
	}
	return nil
}

// RefreshStatus recomputes the market status from its options and the number
// of pending disputes. An option that was overturned and not yet re-resolved
// keeps the market disputed.
func (m *Market) RefreshStatus(options []*MarketOption, pendingDisputes int, now time.Time) {
	awaitingCorrection := false
	allResolved := len(options) > 0
	for _, o := range options {
		if !o.IsResolved {
			allResolved = false
			if o.ResolutionRound > 0 {
				awaitingCorrection = true
			}
		}
	}

	switch {
	case pendingDisputes > 0 || awaitingCorrection:
		m.Status = StatusDisputed
		m.IsResolved = false
	case allResolved:
		m.Status = StatusResolved
		m.IsResolved = true
		if m.ResolvedAt == nil {
			t := now
			m.ResolvedAt = &t
		}
	default:
		m.Status = StatusOpen
		m.IsResolved = false
		m.ResolvedAt = nil
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketOption
// ──────────────────────────────────────────────────────────────────────────────

// MarketOption holds the YES and NO curve supplies of one outcome.
type MarketOption struct {
	ID              uuid.UUID       `json:"id"               db:"id"`
	MarketID        uuid.UUID       `json:"market_id"        db:"market_id"`
	Label           string          `json:"label"            db:"label"`
	YesQuantity     decimal.Decimal `json:"yes_quantity"     db:"yes_quantity"`
	NoQuantity      decimal.Decimal `json:"no_quantity"      db:"no_quantity"`
	IsResolved      bool            `json:"is_resolved"      db:"is_resolved"`
	WinningSide     *Side           `json:"winning_side"     db:"winning_side"`
	DisputeDeadline *time.Time      `json:"dispute_deadline" db:"dispute_deadline"`
	ResolutionRound int             `json:"resolution_round" db:"resolution_round"` // incremented on overturn
	ResolvedAt      *time.Time      `json:"resolved_at"      db:"resolved_at"`
	CreatedAt       time.Time       `json:"created_at"       db:"created_at"`
}

// Supply returns the outstanding quantity on the given side.
func (o *MarketOption) Supply(side Side) decimal.Decimal {
	if side == SideNo {
		return o.NoQuantity
	}
	return o.YesQuantity
}

// AddSupply moves the side's supply by delta (negative for sells).
func (o *MarketOption) AddSupply(side Side, delta decimal.Decimal) {
	if side == SideNo {
		o.NoQuantity = o.NoQuantity.Add(delta)
		return
	}
	o.YesQuantity = o.YesQuantity.Add(delta)
}

// IsCorrective returns true when the option was overturned by a dispute and
// the next resolution replaces an earlier settlement.
func (o *MarketOption) IsCorrective() bool {
	return o.ResolutionRound > 0
}

// Overturn clears the resolution so the option can be resolved again.
func (o *MarketOption) Overturn() {
	o.IsResolved = false
	o.WinningSide = nil
	o.DisputeDeadline = nil
	o.ResolvedAt = nil
	o.ResolutionRound++
}

// ──────────────────────────────────────────────────────────────────────────────
// OptionHolding
// ──────────────────────────────────────────────────────────────────────────────

// OptionHolding is the quantity of one option side owned by a user.
type OptionHolding struct {
	UserID    uuid.UUID       `json:"user_id"    db:"user_id"`
	OptionID  uuid.UUID       `json:"option_id"  db:"option_id"`
	Side      Side            `json:"side"       db:"side"`
	Quantity  decimal.Decimal `json:"quantity"   db:"quantity"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateMarketRequest
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarketRequest carries everything needed to open a new market.
type CreateMarketRequest struct {
	Question       string
	Options        []string
	ExpiresAt      time.Time
	ResolutionMode *ResolutionMode
	ResolverID     *uuid.UUID
}

// MaxOptions caps the number of options per market.
const MaxOptions = 32

// Validate checks the request shape. Unknown resolution modes are accepted
// and leave the market without a resolution authority.
func (r *CreateMarketRequest) Validate(now time.Time) error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidMarket)
	}
	if len(r.Options) == 0 || len(r.Options) > MaxOptions {
		return fmt.Errorf("%w: between 1 and %d options required", ErrInvalidMarket, MaxOptions)
	}
	seen := make(map[string]bool, len(r.Options))
	for _, label := range r.Options {
		key := strings.ToLower(strings.TrimSpace(label))
		if key == "" {
			return fmt.Errorf("%w: option label is empty", ErrInvalidMarket)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate option %q", ErrInvalidMarket, label)
		}
		seen[key] = true
	}
	if !r.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expiry must be in the future", ErrInvalidMarket)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketView: read model for API responses and event payloads
// ──────────────────────────────────────────────────────────────────────────────

// OptionView is an option with its current curve prices.
type OptionView struct {
	*MarketOption
	YesPrice decimal.Decimal `json:"yes_price"`
	NoPrice  decimal.Decimal `json:"no_price"`
}

// MarketView bundles a market with its priced options.
type MarketView struct {
	*Market
	Options []OptionView `json:"options"`
}
