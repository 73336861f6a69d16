package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// WalletRepository handles all database operations for Wallets and Transactions.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Debit subtracts amount from a user's balance inside a transaction and
// returns the locked wallet with its balance before the change. Uses FOR
// UPDATE to prevent races; returns ErrInsufficientBalance when the balance
// would go negative and ErrInvalidQuantity for a non-positive amount.
func (r *WalletRepository) Debit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount domain.Micros) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	var w domain.Wallet
	err := tx.GetContext(ctx, &w, `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.Debit lock: %w", err)
	}
	if w.Balance < amount {
		return nil, domain.ErrInsufficientBalance
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = now() WHERE id = $2`,
		amount, w.ID)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.Debit update: %w", err)
	}
	return &w, nil
}

// Credit adds amount to a user's wallet inside a transaction and returns the
// wallet with its balance before the change. amount must be positive.
func (r *WalletRepository) Credit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount domain.Micros) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	var w domain.Wallet
	err := tx.GetContext(ctx, &w, `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.Credit lock: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = now() WHERE id = $2`,
		amount, w.ID)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.Credit update: %w", err)
	}
	return &w, nil
}

// LogTransaction inserts an audit record into wallet_transactions inside a transaction.
func (r *WalletRepository) LogTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.Transaction) error {
	query := `
		INSERT INTO wallet_transactions
			(id, wallet_id, type, amount, balance_before, balance_after, ref_id, description, created_at)
		VALUES
			(:id, :wallet_id, :type, :amount, :balance_before, :balance_after, :ref_id, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("wallet_repo.LogTransaction: %w", err)
	}
	return nil
}

// ── Platform treasury ────────────────────────────────────────────────────────
// The treasury wallet has user_id = NULL; all operations use wallet_type.

// CreditTreasury credits amount to the platform treasury inside a transaction
// and returns the wallet with its balance before the change.
func (r *WalletRepository) CreditTreasury(ctx context.Context, tx *sqlx.Tx, amount domain.Micros) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	var w domain.Wallet
	err := tx.GetContext(ctx, &w,
		`SELECT * FROM wallets WHERE wallet_type = $1 FOR UPDATE`, domain.WalletTypeTreasury)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.CreditTreasury lock: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = now() WHERE id = $2`,
		amount, w.ID)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.CreditTreasury update: %w", err)
	}
	return &w, nil
}
