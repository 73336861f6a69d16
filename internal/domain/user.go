package domain

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// UserRole
// ──────────────────────────────────────────────────────────────────────────────

// UserRole is the platform role carried in the caller's access token.
type UserRole string

const (
	RoleUser     UserRole = "user"     // trader / liquidity provider
	RoleAdmin    UserRole = "admin"    // platform admin: oracle resolution, dispute review
	RoleOps      UserRole = "ops"      // operations: read-only back-office
	RoleReadOnly UserRole = "readonly" // read-only back-office access
)

// CanAccessBackoffice returns true for all non-standard roles.
func (r UserRole) CanAccessBackoffice() bool {
	return r == RoleAdmin || r == RoleOps || r == RoleReadOnly
}

// IsAdmin returns true only for the full admin role.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

// ──────────────────────────────────────────────────────────────────────────────
// Actor
// ──────────────────────────────────────────────────────────────────────────────

// Actor is the already-authenticated identity behind a request.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   UserRole  `json:"role"`
}

// IsAdmin returns true for platform admins.
func (a Actor) IsAdmin() bool { return a.Role.IsAdmin() }

// ──────────────────────────────────────────────────────────────────────────────
// Wallet
// ──────────────────────────────────────────────────────────────────────────────

// WalletTypeTreasury marks the platform wallet that receives forfeited
// dispute fees.
const WalletTypeTreasury = "platform_treasury"

// Wallet holds a user's balance in micro-units.
type Wallet struct {
	ID         uuid.UUID  `json:"id"          db:"id"`
	UserID     *uuid.UUID `json:"user_id"     db:"user_id"`     // NULL for the treasury
	WalletType *string    `json:"wallet_type" db:"wallet_type"` // NULL=user, 'platform_treasury'=house
	Balance    Micros     `json:"balance"     db:"balance"`
	CreatedAt  time.Time  `json:"created_at"  db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"  db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

// TxType enumerates wallet transaction types for auditing.
type TxType string

const (
	TxTradeBuy   TxType = "trade_buy"
	TxTradeSell  TxType = "trade_sell"
	TxLPDeposit  TxType = "lp_deposit"
	TxLPWithdraw TxType = "lp_withdraw"
	TxLPClaim    TxType = "lp_claim"
	TxDisputeFee TxType = "dispute_fee"
	TxFeeForfeit TxType = "dispute_fee_forfeit" // treasury side of a dispute fee
)

// Transaction is an immutable audit record for every wallet balance change.
type Transaction struct {
	ID            uuid.UUID  `json:"id"             db:"id"`
	WalletID      uuid.UUID  `json:"wallet_id"      db:"wallet_id"`
	Type          TxType     `json:"type"           db:"type"`
	Amount        Micros     `json:"amount"         db:"amount"`
	BalanceBefore Micros     `json:"balance_before" db:"balance_before"`
	BalanceAfter  Micros     `json:"balance_after"  db:"balance_after"`
	RefID         *uuid.UUID `json:"ref_id"         db:"ref_id"` // trade, market or dispute ID
	Description   string     `json:"description"    db:"description"`
	CreatedAt     time.Time  `json:"created_at"     db:"created_at"`
}
