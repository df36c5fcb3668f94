package service

import (
	"context"
	"time"

	"chat-game-bot/internal/model"
	"chat-game-bot/internal/repository"
)

// RankingService handles ranking and leaderboard operations. Daily boards
// are derived from the game-related ledger entries of the day.
type RankingService struct {
	userRepo   *repository.UserRepository
	ledgerRepo *repository.LedgerRepository
	timezone   *time.Location
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(
	userRepo *repository.UserRepository,
	ledgerRepo *repository.LedgerRepository,
	timezone *time.Location,
) *RankingService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &RankingService{
		userRepo:   userRepo,
		ledgerRepo: ledgerRepo,
		timezone:   timezone,
	}
}

// GetTopUsers retrieves the top users by balance.
func (s *RankingService) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}

// GetDailyWinners retrieves today's top winners (users with most game profit).
func (s *RankingService) GetDailyWinners(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	today := time.Now().In(s.timezone)
	return s.ledgerRepo.GetDailyWinners(ctx, today, limit)
}

// GetDailyLosers retrieves today's top losers (users with most game loss).
func (s *RankingService) GetDailyLosers(ctx context.Context, limit int) ([]*model.DailyRank, error) {
	today := time.Now().In(s.timezone)
	return s.ledgerRepo.GetDailyLosers(ctx, today, limit)
}

// GetDailyWinnersForDate retrieves winners for a specific date.
func (s *RankingService) GetDailyWinnersForDate(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return s.ledgerRepo.GetDailyWinners(ctx, date, limit)
}

// GetDailyLosersForDate retrieves losers for a specific date.
func (s *RankingService) GetDailyLosersForDate(ctx context.Context, date time.Time, limit int) ([]*model.DailyRank, error) {
	return s.ledgerRepo.GetDailyLosers(ctx, date, limit)
}

// GetUserDailyProfit retrieves a specific user's game profit for today.
func (s *RankingService) GetUserDailyProfit(ctx context.Context, userID int64) (int64, error) {
	today := time.Now().In(s.timezone)
	return s.ledgerRepo.GetUserDailyProfit(ctx, userID, today)
}
