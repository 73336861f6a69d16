package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors: compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Market errors
var (
	// ErrMarketNotFound is returned when no market matches the given criteria.
	ErrMarketNotFound = errors.New("market not found")

	// ErrOptionNotFound is returned when the option does not exist or does not
	// belong to the requested market.
	ErrOptionNotFound = errors.New("market option not found")

	// ErrMarketNotOpen is returned when a trade is attempted after the market
	// has expired.
	ErrMarketNotOpen = errors.New("market is not open for trading")

	// ErrMarketNotInitialized is returned when a trade is attempted before the
	// first liquidity deposit.
	ErrMarketNotInitialized = errors.New("market has no liquidity yet")

	// ErrMarketDisputed is returned for trades, withdrawals and claims while a
	// dispute on the market is unresolved.
	ErrMarketDisputed = errors.New("market is under dispute")

	// ErrMarketNotResolved is returned when LP rewards are claimed before every
	// option of the market has been resolved.
	ErrMarketNotResolved = errors.New("market is not resolved yet")

	// ErrDisputeWindowOpen is returned when LP rewards are claimed while an
	// option's dispute window is still running.
	ErrDisputeWindowOpen = errors.New("dispute window is still open")

	// ErrAlreadyResolved is returned when resolving, or trading on, an option
	// that already has a final outcome.
	ErrAlreadyResolved = errors.New("option is already resolved")

	// ErrInvalidMarket is returned when a market definition fails validation.
	ErrInvalidMarket = errors.New("invalid market definition")
)

// Trading errors
var (
	// ErrInvalidQuantity is returned for non-positive amounts, quantities with
	// more than six decimals or above MaxQuantity, trades whose amount does not
	// fit in int64 micro-units, and sells or withdrawals above what the caller
	// holds.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidSide is returned when the side is neither YES nor NO.
	ErrInvalidSide = errors.New("invalid side: must be YES or NO")
)

// Liquidity errors
var (
	// ErrPoolEmpty is returned for withdrawals and claims against a pool, or a
	// position, holding zero shares.
	ErrPoolEmpty = errors.New("liquidity pool has no shares")

	// ErrPositionNotFound is returned when the user has never provided
	// liquidity to the market.
	ErrPositionNotFound = errors.New("liquidity position not found")
)

// Resolution errors
var (
	// ErrUnauthorized is returned when the actor lacks authority for the
	// resolution mode or the requested action.
	ErrUnauthorized = errors.New("actor is not authorized for this action")

	// ErrInvalidOutcome is returned when the proposed outcome is not YES or NO.
	ErrInvalidOutcome = errors.New("invalid outcome: must be YES or NO")

	// ErrInvalidEvidence is returned when a submission or dispute carries
	// malformed evidence or misses a required field.
	ErrInvalidEvidence = errors.New("invalid evidence")

	// ErrSettlementNotFound is returned when no settlement record matches.
	ErrSettlementNotFound = errors.New("settlement record not found")
)

// Dispute errors
var (
	// ErrWindowExpired is returned when a dispute is filed after the deadline
	// or against an option that has no dispute window.
	ErrWindowExpired = errors.New("dispute window is closed")

	// ErrAlreadyReviewed is returned when reviewing a dispute in a terminal state.
	ErrAlreadyReviewed = errors.New("dispute is already reviewed")

	// ErrInvalidReviewStatus is returned when a review targets a status other
	// than reviewed, resolved or dismissed.
	ErrInvalidReviewStatus = errors.New("invalid review status")

	// ErrDisputeNotFound is returned when no dispute matches the given id.
	ErrDisputeNotFound = errors.New("dispute not found")

	// ErrDisputeExists is returned when the user already has a pending dispute
	// on the option.
	ErrDisputeExists = errors.New("a pending dispute already exists for this option")
)

// Wallet errors
var (
	// ErrInsufficientBalance is returned when a wallet, or the pool's available
	// liquidity, cannot cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrWalletNotFound is returned when no wallet exists for the requested user.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Auth errors
var (
	// ErrUnauthenticated is returned when a valid token is not present.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when the authenticated user lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a token has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ErrLockHeld is returned when a distributed lock is already held elsewhere.
var ErrLockHeld = errors.New("lock is held by another instance")

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

var notFoundErrors = []error{
	ErrMarketNotFound,
	ErrOptionNotFound,
	ErrPositionNotFound,
	ErrSettlementNotFound,
	ErrDisputeNotFound,
	ErrWalletNotFound,
}

var conflictErrors = []error{
	ErrAlreadyResolved,
	ErrAlreadyReviewed,
	ErrDisputeExists,
	ErrMarketNotOpen,
	ErrMarketNotInitialized,
	ErrMarketDisputed,
	ErrMarketNotResolved,
	ErrDisputeWindowOpen,
	ErrWindowExpired,
	ErrPoolEmpty,
}

var validationErrors = []error{
	ErrInvalidQuantity,
	ErrInvalidSide,
	ErrInvalidOutcome,
	ErrInvalidEvidence,
	ErrInvalidReviewStatus,
	ErrInvalidMarket,
}

var authErrors = []error{
	ErrUnauthorized,
	ErrUnauthenticated,
	ErrForbidden,
	ErrTokenExpired,
	ErrTokenInvalid,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors.
func IsNotFound(err error) bool { return isAny(err, notFoundErrors) }

// IsConflict returns true for errors that represent a state conflict such as
// double resolution or a closed dispute window.
func IsConflict(err error) bool { return isAny(err, conflictErrors) }

// IsValidation returns true for malformed input.
func IsValidation(err error) bool { return isAny(err, validationErrors) }

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool { return isAny(err, authErrors) }

// errorCodes maps each caller-facing sentinel to a stable API code.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, "ERR_UNAUTHORIZED"},
	{ErrUnauthenticated, "ERR_UNAUTHENTICATED"},
	{ErrForbidden, "ERR_FORBIDDEN"},
	{ErrTokenExpired, "ERR_TOKEN_EXPIRED"},
	{ErrTokenInvalid, "ERR_TOKEN_INVALID"},
	{ErrAlreadyResolved, "ERR_ALREADY_RESOLVED"},
	{ErrAlreadyReviewed, "ERR_ALREADY_REVIEWED"},
	{ErrInsufficientBalance, "ERR_INSUFFICIENT_BALANCE"},
	{ErrInvalidQuantity, "ERR_INVALID_QUANTITY"},
	{ErrWindowExpired, "ERR_WINDOW_EXPIRED"},
	{ErrPoolEmpty, "ERR_POOL_EMPTY"},
	{ErrInvalidSide, "ERR_INVALID_SIDE"},
	{ErrInvalidOutcome, "ERR_INVALID_OUTCOME"},
	{ErrInvalidEvidence, "ERR_INVALID_EVIDENCE"},
	{ErrInvalidReviewStatus, "ERR_INVALID_REVIEW_STATUS"},
	{ErrInvalidMarket, "ERR_INVALID_MARKET"},
	{ErrDisputeExists, "ERR_DISPUTE_EXISTS"},
	{ErrMarketNotOpen, "ERR_MARKET_NOT_OPEN"},
	{ErrMarketNotInitialized, "ERR_MARKET_NOT_INITIALIZED"},
	{ErrMarketDisputed, "ERR_MARKET_DISPUTED"},
	{ErrMarketNotResolved, "ERR_MARKET_NOT_RESOLVED"},
	{ErrDisputeWindowOpen, "ERR_DISPUTE_WINDOW_OPEN"},
	{ErrMarketNotFound, "ERR_MARKET_NOT_FOUND"},
	{ErrOptionNotFound, "ERR_OPTION_NOT_FOUND"},
	{ErrPositionNotFound, "ERR_POSITION_NOT_FOUND"},
	{ErrSettlementNotFound, "ERR_SETTLEMENT_NOT_FOUND"},
	{ErrDisputeNotFound, "ERR_DISPUTE_NOT_FOUND"},
	{ErrWalletNotFound, "ERR_WALLET_NOT_FOUND"},
}

// ErrorCode returns the API code for err, or "ERR_INTERNAL" when err is not a
// domain error (storage failures and the like).
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "ERR_INTERNAL"
}
