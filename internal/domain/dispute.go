package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DisputeStatus is the review state of a dispute.
type DisputeStatus string

const (
	DisputePending   DisputeStatus = "pending"   // awaiting admin attention
	DisputeReviewed  DisputeStatus = "reviewed"  // acknowledged, decision outstanding
	DisputeResolved  DisputeStatus = "resolved"  // upheld: the resolution is overturned
	DisputeDismissed DisputeStatus = "dismissed" // rejected: the resolution stands
)

// IsTerminal returns true for resolved and dismissed.
func (s DisputeStatus) IsTerminal() bool {
	return s == DisputeResolved || s == DisputeDismissed
}

// IsOpen returns true while a decision is outstanding.
func (s DisputeStatus) IsOpen() bool {
	return s == DisputePending || s == DisputeReviewed
}

// MaxDisputeReasonLen caps the free-form reason text.
const MaxDisputeReasonLen = 2000

// Dispute is a bonded challenge to an option's resolution.
type Dispute struct {
	ID                uuid.UUID     `json:"id"                  db:"id"`
	MarketID          uuid.UUID     `json:"market_id"           db:"market_id"`
	OptionID          uuid.UUID     `json:"option_id"           db:"option_id"`
	UserID            uuid.UUID     `json:"user_id"             db:"user_id"`
	ResolutionRound   int           `json:"resolution_round"    db:"resolution_round"`
	Reason            string        `json:"reason"              db:"reason"`
	Evidence          *Evidence     `json:"evidence"            db:"evidence"`
	ResolutionFeePaid Micros        `json:"resolution_fee_paid" db:"resolution_fee_paid"`
	Status            DisputeStatus `json:"status"              db:"status"`
	ReviewerID        *uuid.UUID    `json:"reviewer_id"         db:"reviewer_id"`
	ReviewNotes       *string       `json:"review_notes"        db:"review_notes"`
	ReviewedAt        *time.Time    `json:"reviewed_at"         db:"reviewed_at"`
	CreatedAt         time.Time     `json:"created_at"          db:"created_at"`
}

// CanFileDispute checks the option's dispute window at now. Options without a
// deadline (opinion resolutions and corrections) are never disputable.
func CanFileDispute(o *MarketOption, now time.Time) error {
	if !o.IsResolved {
		return ErrMarketNotResolved
	}
	if o.DisputeDeadline == nil || now.After(*o.DisputeDeadline) {
		return ErrWindowExpired
	}
	return nil
}

// ValidateDisputeReason trims and checks a dispute reason.
func ValidateDisputeReason(reason string) (string, error) {
	r := strings.TrimSpace(reason)
	if r == "" {
		return "", fmt.Errorf("%w: reason is required", ErrInvalidEvidence)
	}
	if len(r) > MaxDisputeReasonLen {
		return "", fmt.Errorf("%w: reason exceeds %d characters", ErrInvalidEvidence, MaxDisputeReasonLen)
	}
	return r, nil
}

// Review moves the dispute to status on behalf of reviewer.
//
//	pending           → reviewed | resolved | dismissed
//	reviewed          → resolved | dismissed
//	resolved/dismissed → ErrAlreadyReviewed
func (d *Dispute) Review(status DisputeStatus, notes string, reviewer Actor, now time.Time) error {
	if !reviewer.IsAdmin() {
		return ErrUnauthorized
	}
	if d.Status.IsTerminal() {
		return ErrAlreadyReviewed
	}
	switch status {
	case DisputeResolved, DisputeDismissed:
	case DisputeReviewed:
		if d.Status != DisputePending {
			return ErrInvalidReviewStatus
		}
	default:
		return ErrInvalidReviewStatus
	}

	reviewerID := reviewer.UserID
	reviewedAt := now
	d.Status = status
	d.ReviewerID = &reviewerID
	d.ReviewedAt = &reviewedAt
	if n := strings.TrimSpace(notes); n != "" {
		d.ReviewNotes = &n
	}
	return nil
}
