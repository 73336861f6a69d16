package repository

import (
	"context"
	"fmt"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ResolutionRepository stores the append-only resolution submissions.
type ResolutionRepository struct {
	db *sqlx.DB
}

// NewResolutionRepository creates a new ResolutionRepository.
func NewResolutionRepository(db *sqlx.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

// CreateSubmission appends a submission inside a transaction.
func (r *ResolutionRepository) CreateSubmission(ctx context.Context, tx *sqlx.Tx, s *domain.ResolutionSubmission) error {
	query := `
		INSERT INTO resolution_submissions
			(id, market_id, option_id, round, submitter_id, outcome, evidence, created_at)
		VALUES
			(:id, :market_id, :option_id, :round, :submitter_id, :outcome, :evidence, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("resolution_repo.CreateSubmission: %w", err)
	}
	return nil
}

// ListRound returns the submissions of one resolution round in arrival order.
func (r *ResolutionRepository) ListRound(ctx context.Context, tx *sqlx.Tx, optionID uuid.UUID, round int) ([]*domain.ResolutionSubmission, error) {
	var subs []*domain.ResolutionSubmission
	err := tx.SelectContext(ctx, &subs, `
		SELECT * FROM resolution_submissions
		WHERE option_id = $1 AND round = $2
		ORDER BY created_at, id`,
		optionID, round)
	if err != nil {
		return nil, fmt.Errorf("resolution_repo.ListRound: %w", err)
	}
	return subs, nil
}

// ListByOption returns every submission for an option across rounds.
func (r *ResolutionRepository) ListByOption(ctx context.Context, optionID uuid.UUID) ([]*domain.ResolutionSubmission, error) {
	var subs []*domain.ResolutionSubmission
	err := r.db.SelectContext(ctx, &subs, `
		SELECT * FROM resolution_submissions
		WHERE option_id = $1
		ORDER BY round, created_at, id`,
		optionID)
	if err != nil {
		return nil, fmt.Errorf("resolution_repo.ListByOption: %w", err)
	}
	return subs, nil
}
