package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-game-bot/internal/model"
)

// LedgerRepository reads the append-only ledger. Writes happen exclusively in
// the ledger adapter.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// GetByUserID retrieves a user's ledger entries, newest first.
func (r *LedgerRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT id, user_id, amount, type, session_id, description, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Type, &e.SessionID, &e.Description, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// GetBySessionID retrieves all ledger entries correlated with a session, in
// insertion order. Useful for settlement audits.
func (r *LedgerRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*model.LedgerEntry, error) {
	const query = `
		SELECT id, user_id, amount, type, session_id, description, created_at
		FROM ledger_entries
		WHERE session_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Type, &e.SessionID, &e.Description, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// GetDailyWinners retrieves the top winners for a date: users with positive
// game net profit, sorted by profit descending.
func (r *LedgerRepository) GetDailyWinners(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return r.dailyRanks(ctx, date, limit, true)
}

// GetDailyLosers retrieves the top losers for a date: users with negative
// game net profit, sorted by loss descending.
func (r *LedgerRepository) GetDailyLosers(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return r.dailyRanks(ctx, date, limit, false)
}

func (r *LedgerRepository) dailyRanks(ctx context.Context, date time.Time, limit int, winners bool) ([]*model.DailyRank, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	query := `
		SELECT e.user_id, u.username, COALESCE(SUM(e.amount), 0) as net_profit
		FROM ledger_entries e
		JOIN users u ON e.user_id = u.telegram_id
		WHERE e.type = ANY($1)
		  AND e.created_at >= $2
		  AND e.created_at < $3
		GROUP BY e.user_id, u.username
		HAVING SUM(e.amount) > 0
		ORDER BY net_profit DESC
		LIMIT $4
	`
	if !winners {
		query = `
		SELECT e.user_id, u.username, COALESCE(SUM(e.amount), 0) as net_profit
		FROM ledger_entries e
		JOIN users u ON e.user_id = u.telegram_id
		WHERE e.type = ANY($1)
		  AND e.created_at >= $2
		  AND e.created_at < $3
		GROUP BY e.user_id, u.username
		HAVING SUM(e.amount) < 0
		ORDER BY net_profit ASC
		LIMIT $4
	`
	}

	rows, err := r.pool.Query(ctx, query, model.GameTransactionTypes(), startOfDay, endOfDay, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily ranks: %w", err)
	}
	defer rows.Close()

	var ranks []*model.DailyRank
	for rows.Next() {
		var rank model.DailyRank
		if err := rows.Scan(&rank.UserID, &rank.Username, &rank.NetProfit); err != nil {
			return nil, fmt.Errorf("failed to scan daily rank: %w", err)
		}
		ranks = append(ranks, &rank)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily ranks: %w", err)
	}

	return ranks, nil
}

// GetUserDailyProfit retrieves a specific user's game net profit for a date.
func (r *LedgerRepository) GetUserDailyProfit(ctx context.Context, userID int64, date time.Time) (int64, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1
		  AND type = ANY($2)
		  AND created_at >= $3
		  AND created_at < $4
	`

	var profit int64
	err := r.pool.QueryRow(ctx, query, userID, model.GameTransactionTypes(), startOfDay, endOfDay).Scan(&profit)
	if err != nil {
		return 0, fmt.Errorf("failed to get user daily profit: %w", err)
	}

	return profit, nil
}
