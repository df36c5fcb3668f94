// Package ledger implements the money-movement boundary. All balance
// mutations go through the Adapter; every mutation appends a ledger entry so
// that a user's balance is always the running sum of their entries.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Money-movement errors.
var (
	// ErrInsufficientFunds is returned when a debit would take a balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownUser is returned when the target account does not exist.
	ErrUnknownUser = errors.New("unknown user")
)

// Adapter performs atomic debit/credit operations against user balances.
type Adapter struct {
	pool *pgxpool.Pool
}

// New creates a ledger Adapter backed by the given pool.
func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

// Debit atomically subtracts amount from the user's balance and records a
// ledger entry. Returns ErrInsufficientFunds without any mutation when the
// balance does not cover the amount.
func (a *Adapter) Debit(ctx context.Context, userID, amount int64, reason string, sessionID *string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		return a.DebitTx(ctx, tx, userID, amount, reason, sessionID)
	})
}

// DebitTx is Debit within a caller-owned transaction. The balance guard is
// part of the UPDATE itself, so concurrent debits against the same user can
// never take the balance negative.
func (a *Adapter) DebitTx(ctx context.Context, tx pgx.Tx, userID, amount int64, reason string, sessionID *string) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}

	const update = `
		UPDATE users
		SET balance = balance - $2, updated_at = NOW()
		WHERE telegram_id = $1 AND balance >= $2
	`
	tag, err := tx.Exec(ctx, update, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := a.existsTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrUnknownUser
		}
		return ErrInsufficientFunds
	}

	return a.appendEntryTx(ctx, tx, userID, -amount, reason, sessionID)
}

// Credit atomically adds amount to the user's balance and records a ledger
// entry.
func (a *Adapter) Credit(ctx context.Context, userID, amount int64, reason string, sessionID *string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		return a.CreditTx(ctx, tx, userID, amount, reason, sessionID)
	})
}

// CreditTx is Credit within a caller-owned transaction.
func (a *Adapter) CreditTx(ctx context.Context, tx pgx.Tx, userID, amount int64, reason string, sessionID *string) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}

	const update = `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE telegram_id = $1
	`
	tag, err := tx.Exec(ctx, update, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownUser
	}

	return a.appendEntryTx(ctx, tx, userID, amount, reason, sessionID)
}

// DebitAtMost debits up to amount, capped at the user's current balance, and
// returns the amount actually debited. Used by penalty-style settlements
// where the loser pays what they can.
func (a *Adapter) DebitAtMost(ctx context.Context, userID, amount int64, reason string, sessionID *string) (int64, error) {
	var debited int64
	err := pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		var err error
		debited, err = a.DebitAtMostTx(ctx, tx, userID, amount, reason, sessionID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return debited, nil
}

// DebitAtMostTx is DebitAtMost within a caller-owned transaction.
func (a *Adapter) DebitAtMostTx(ctx context.Context, tx pgx.Tx, userID, amount int64, reason string, sessionID *string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}

	var before int64
	if err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE telegram_id = $1 FOR UPDATE`, userID).Scan(&before); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownUser
		}
		return 0, fmt.Errorf("failed to lock user %d: %w", userID, err)
	}

	debited := amount
	if before < debited {
		debited = before
	}
	if debited == 0 {
		return 0, nil
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance - $2, updated_at = NOW() WHERE telegram_id = $1`, userID, debited); err != nil {
		return 0, fmt.Errorf("failed to debit user %d: %w", userID, err)
	}
	if err := a.appendEntryTx(ctx, tx, userID, -debited, reason, sessionID); err != nil {
		return 0, err
	}
	return debited, nil
}

// Set overwrites a user's balance with an exact value and records the delta
// as a ledger entry. Admin use only.
func (a *Adapter) Set(ctx context.Context, userID, balance int64, reason string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		var before int64
		err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE telegram_id = $1 FOR UPDATE`, userID).Scan(&before)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUnknownUser
			}
			return fmt.Errorf("failed to lock user %d: %w", userID, err)
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET balance = $2, updated_at = NOW() WHERE telegram_id = $1`, userID, balance); err != nil {
			return fmt.Errorf("failed to set balance for user %d: %w", userID, err)
		}
		return a.appendEntryTx(ctx, tx, userID, balance-before, reason, nil)
	})
}

// Transfer moves amount from one user to another in a single transaction.
func (a *Adapter) Transfer(ctx context.Context, fromID, toID, amount int64, fromReason, toReason string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		if err := a.DebitTx(ctx, tx, fromID, amount, fromReason, nil); err != nil {
			return err
		}
		return a.CreditTx(ctx, tx, toID, amount, toReason, nil)
	})
}

// appendEntryTx records one ledger entry inside tx.
func (a *Adapter) appendEntryTx(ctx context.Context, tx pgx.Tx, userID, amount int64, reason string, sessionID *string) error {
	const insert = `
		INSERT INTO ledger_entries (user_id, amount, type, session_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := tx.Exec(ctx, insert, userID, amount, reason, sessionID); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// existsTx checks account existence inside tx.
func (a *Adapter) existsTx(ctx context.Context, tx pgx.Tx, userID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE telegram_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
