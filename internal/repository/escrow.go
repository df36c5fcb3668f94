package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-game-bot/internal/ledger"
	"chat-game-bot/internal/model"
)

// Escrow errors. ErrInsufficientFunds surfaces from the ledger package.
var (
	ErrAlreadyJoined     = errors.New("user already joined this session")
	ErrSessionFull       = errors.New("session is full")
	ErrSessionNotWaiting = errors.New("session is not accepting joins")
)

// EscrowManager wraps the ledger adapter with join-time debit and exit-time
// credit. Its invariant: a participant row exists if and only if the entry
// fee was debited, and every participant is settled (refund or payout) at
// most once. Each operation is one database transaction; a failure anywhere
// rolls the whole operation back.
type EscrowManager struct {
	pool   *pgxpool.Pool
	ledger *ledger.Adapter
}

// NewEscrowManager creates a new EscrowManager instance.
func NewEscrowManager(pool *pgxpool.Pool, adapter *ledger.Adapter) *EscrowManager {
	return &EscrowManager{pool: pool, ledger: adapter}
}

// Join debits the entry fee and inserts the participant record atomically.
// The session row is locked for the duration so concurrent joins serialize
// and the cap check cannot be raced past.
func (e *EscrowManager) Join(ctx context.Context, sessionID string, userID int64) error {
	return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		var status model.SessionStatus
		var entryFee int64
		var capLimit int
		err := tx.QueryRow(ctx,
			`SELECT status, entry_fee, participant_cap FROM sessions WHERE id = $1 FOR UPDATE`,
			sessionID,
		).Scan(&status, &entryFee, &capLimit)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session: %w", err)
		}

		if status != model.StatusWaiting {
			return ErrSessionNotWaiting
		}

		var joined bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM participants WHERE session_id = $1 AND user_id = $2)`,
			sessionID, userID,
		).Scan(&joined)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if joined {
			return ErrAlreadyJoined
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM participants WHERE session_id = $1`, sessionID).Scan(&count); err != nil {
			return fmt.Errorf("failed to count participants: %w", err)
		}
		if count >= capLimit {
			return ErrSessionFull
		}

		if entryFee > 0 {
			if err := e.ledger.DebitTx(ctx, tx, userID, entryFee, model.TxTypeEntryFee, &sessionID); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO participants (session_id, user_id, joined_at, escrowed)
			VALUES ($1, $2, NOW(), TRUE)
		`, sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}

		return nil
	})
}

// Refund returns the entry fee to every participant who was escrowed and not
// yet refunded or paid. Idempotent: a second call finds nothing left to
// credit and issues zero credits.
func (e *EscrowManager) Refund(ctx context.Context, sessionID string) (int, error) {
	var credited int
	err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		credited = 0

		var entryFee int64
		err := tx.QueryRow(ctx, `SELECT entry_fee FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&entryFee)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT user_id FROM participants
			WHERE session_id = $1 AND escrowed AND NOT refunded AND NOT paid
			FOR UPDATE
		`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to select refundable participants: %w", err)
		}
		var userIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan participant: %w", err)
			}
			userIDs = append(userIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating participants: %w", err)
		}

		for _, userID := range userIDs {
			if entryFee > 0 {
				if err := e.ledger.CreditTx(ctx, tx, userID, entryFee, model.TxTypeRefund, &sessionID); err != nil {
					return err
				}
			}
			if _, err := tx.Exec(ctx,
				`UPDATE participants SET refunded = TRUE WHERE session_id = $1 AND user_id = $2`,
				sessionID, userID,
			); err != nil {
				return fmt.Errorf("failed to mark participant refunded: %w", err)
			}
			credited++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}
	return credited, nil
}

// Settle applies the final payouts. Idempotent per session: the settled flag
// is compare-and-set inside the same transaction as the credits, so repeated
// calls (including crash-restart replays) apply the credits exactly once.
// Returns false when the session was already settled.
func (e *EscrowManager) Settle(ctx context.Context, sessionID string, payouts map[int64]int64) (bool, error) {
	var applied bool
	err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		applied = false

		tag, err := tx.Exec(ctx,
			`UPDATE sessions SET settled = TRUE, updated_at = NOW() WHERE id = $1 AND settled = FALSE`,
			sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark session settled: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Already settled; nothing to apply.
			return nil
		}

		for userID, amount := range payouts {
			if amount <= 0 {
				continue
			}

			tag, err := tx.Exec(ctx, `
				UPDATE participants SET paid = TRUE
				WHERE session_id = $1 AND user_id = $2 AND NOT paid
			`, sessionID, userID)
			if err != nil {
				return fmt.Errorf("failed to mark participant paid: %w", err)
			}
			if tag.RowsAffected() == 0 {
				continue
			}

			if err := e.ledger.CreditTx(ctx, tx, userID, amount, model.TxTypePrize, &sessionID); err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Penalize debits up to amount from a participant outside the escrowed pool,
// for penalty-style kinds. Returns the amount actually collected. The debit
// happens at most once per participant per session: a replayed settlement
// gets the previously collected amount back instead of debiting again.
func (e *EscrowManager) Penalize(ctx context.Context, sessionID string, userID, amount int64) (int64, error) {
	var collected int64
	err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		collected = 0

		tag, err := tx.Exec(ctx, `
			UPDATE participants SET penalized = TRUE
			WHERE session_id = $1 AND user_id = $2 AND NOT penalized
		`, sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to mark participant penalized: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Already collected; re-read the amount from the ledger.
			err := tx.QueryRow(ctx, `
				SELECT COALESCE(-SUM(amount), 0)
				FROM ledger_entries
				WHERE session_id = $1 AND user_id = $2 AND type = $3
			`, sessionID, userID, model.TxTypePenalty).Scan(&collected)
			if err != nil {
				return fmt.Errorf("failed to read collected penalty: %w", err)
			}
			return nil
		}

		collected, err = e.ledger.DebitAtMostTx(ctx, tx, userID, amount, model.TxTypePenalty, &sessionID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return collected, nil
}
