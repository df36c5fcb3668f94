// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-game-bot/internal/ledger"
	"chat-game-bot/internal/model"
	"chat-game-bot/internal/repository"
)

// Common errors for account operations.
var (
	ErrDailyAlreadyClaimed = errors.New("daily reward already claimed")
)

// AccountService handles user account operations. All balance mutations go
// through the ledger adapter so every change leaves a ledger entry.
type AccountService struct {
	userRepo    *repository.UserRepository
	ledger      *ledger.Adapter
	dailyReward int64
	cooldown    time.Duration
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	userRepo *repository.UserRepository,
	ledger *ledger.Adapter,
	dailyReward int64,
	cooldown time.Duration,
) *AccountService {
	return &AccountService{
		userRepo:    userRepo,
		ledger:      ledger,
		dailyReward: dailyReward,
		cooldown:    cooldown,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, telegramID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	// Keep the stored username in sync; a failure here is non-fatal.
	if !created && user.Username != username && username != "" {
		if err := s.userRepo.UpdateUsername(ctx, telegramID, username); err == nil {
			user.Username = username
		}
	}

	return user, created, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, telegramID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, telegramID)
}

// ClaimDaily attempts to claim the daily reward for a user. When the
// cooldown has not elapsed it returns ErrDailyAlreadyClaimed together with
// the remaining wait.
func (s *AccountService) ClaimDaily(ctx context.Context, telegramID int64) (int64, time.Duration, error) {
	canClaim, remaining, err := s.CanClaimDaily(ctx, telegramID)
	if err != nil {
		return 0, 0, err
	}
	if !canClaim {
		return 0, remaining, ErrDailyAlreadyClaimed
	}

	if err := s.ledger.Credit(ctx, telegramID, s.dailyReward, model.TxTypeDaily, nil); err != nil {
		return 0, 0, fmt.Errorf("failed to add daily reward: %w", err)
	}
	if err := s.userRepo.UpdateDailyClaim(ctx, telegramID, time.Now().Unix()); err != nil {
		return 0, 0, fmt.Errorf("failed to update daily claim time: %w", err)
	}

	return s.dailyReward, 0, nil
}

// CanClaimDaily checks if a user can claim their daily reward.
// Returns eligibility status and remaining time if not eligible.
func (s *AccountService) CanClaimDaily(ctx context.Context, telegramID int64) (bool, time.Duration, error) {
	user, err := s.userRepo.GetByID(ctx, telegramID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to check daily claim eligibility: %w", err)
	}

	if user.LastDailyClaim == 0 {
		return true, 0, nil
	}
	next := time.Unix(user.LastDailyClaim, 0).Add(s.cooldown)
	remaining := time.Until(next)
	if remaining <= 0 {
		return true, 0, nil
	}
	return false, remaining, nil
}

// GetTopUsers retrieves the top users by balance.
func (s *AccountService) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}

// Adjust adds (or, for a negative amount, removes) coins on a user's
// account. Admin use only; the change is recorded under txType.
func (s *AccountService) Adjust(ctx context.Context, telegramID, amount int64, txType string) error {
	switch {
	case amount > 0:
		return s.ledger.Credit(ctx, telegramID, amount, txType, nil)
	case amount < 0:
		return s.ledger.Debit(ctx, telegramID, -amount, txType, nil)
	default:
		return nil
	}
}

// SetBalance overwrites a user's balance. Admin use only.
func (s *AccountService) SetBalance(ctx context.Context, telegramID, balance int64) error {
	return s.ledger.Set(ctx, telegramID, balance, model.TxTypeAdminSet)
}
