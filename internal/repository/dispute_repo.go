package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// DisputeRepository handles all database operations for Disputes.
type DisputeRepository struct {
	db *sqlx.DB
}

// NewDisputeRepository creates a new DisputeRepository.
func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create inserts a dispute. A second open dispute by the same user on the
// same option trips disputes_one_open_per_user and maps to ErrDisputeExists.
func (r *DisputeRepository) Create(ctx context.Context, tx *sqlx.Tx, d *domain.Dispute) error {
	query := `
		INSERT INTO disputes
			(id, market_id, option_id, user_id, resolution_round, reason, evidence,
			 resolution_fee_paid, status, created_at)
		VALUES
			(:id, :market_id, :option_id, :user_id, :resolution_round, :reason, :evidence,
			 :resolution_fee_paid, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, d); err != nil {
		if isUniqueViolation(err, "disputes_one_open_per_user") {
			return domain.ErrDisputeExists
		}
		return fmt.Errorf("dispute_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a dispute by its primary key.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	var d domain.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute_repo.GetByID: %w", err)
	}
	return &d, nil
}

// GetForUpdate locks a dispute row inside a transaction.
func (r *DisputeRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Dispute, error) {
	var d domain.Dispute
	err := tx.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute_repo.GetForUpdate: %w", err)
	}
	return &d, nil
}

// UpdateReview writes the review columns of a dispute.
func (r *DisputeRepository) UpdateReview(ctx context.Context, tx *sqlx.Tx, d *domain.Dispute) error {
	query := `
		UPDATE disputes
		SET status       = :status,
		    reviewer_id  = :reviewer_id,
		    review_notes = :review_notes,
		    reviewed_at  = :reviewed_at
		WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, d)
	if err != nil {
		return fmt.Errorf("dispute_repo.UpdateReview: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDisputeNotFound
	}
	return nil
}

// HasOpen reports whether userID already has a pending or reviewed dispute on
// the option.
func (r *DisputeRepository) HasOpen(ctx context.Context, tx *sqlx.Tx, optionID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM disputes
			WHERE option_id = $1 AND user_id = $2 AND status IN ('pending', 'reviewed')
		)`,
		optionID, userID)
	if err != nil {
		return false, fmt.Errorf("dispute_repo.HasOpen: %w", err)
	}
	return exists, nil
}

// CountOpen returns the number of undecided disputes on a market.
func (r *DisputeRepository) CountOpen(ctx context.Context, tx *sqlx.Tx, marketID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM disputes
		WHERE market_id = $1 AND status IN ('pending', 'reviewed')`,
		marketID)
	if err != nil {
		return 0, fmt.Errorf("dispute_repo.CountOpen: %w", err)
	}
	return n, nil
}

// ListUpheld returns the disputes that overturned the given resolution round
// of an option, in review order.
func (r *DisputeRepository) ListUpheld(ctx context.Context, tx *sqlx.Tx, optionID uuid.UUID, round int) ([]*domain.Dispute, error) {
	var disputes []*domain.Dispute
	err := tx.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE option_id = $1 AND resolution_round = $2 AND status = 'resolved'
		ORDER BY reviewed_at ASC`,
		optionID, round)
	if err != nil {
		return nil, fmt.Errorf("dispute_repo.ListUpheld: %w", err)
	}
	return disputes, nil
}

// List returns disputes filtered by optional status and market, oldest first
// so reviewers work the queue in filing order.
func (r *DisputeRepository) List(ctx context.Context, status string, marketID *uuid.UUID, limit, offset int) ([]*domain.Dispute, error) {
	var disputes []*domain.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE ($1 = '' OR status = $1)
		  AND ($2::uuid IS NULL OR market_id = $2)
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4`,
		status, marketID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("dispute_repo.List: %w", err)
	}
	return disputes, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation on
// the named constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}
