package service

import (
	"context"
	"errors"
	"fmt"

	"chat-game-bot/internal/ledger"
	"chat-game-bot/internal/model"
	"chat-game-bot/internal/repository"
)

// Transfer-related errors.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
	ErrUserNotFound        = errors.New("user not found")
)

// TransferService handles user-to-user transfers. The balance movement is a
// single ledger transaction, so a crash can never leave the coins half-moved.
type TransferService struct {
	userRepo *repository.UserRepository
	ledger   *ledger.Adapter
}

// NewTransferService creates a new TransferService instance.
func NewTransferService(userRepo *repository.UserRepository, ledger *ledger.Adapter) *TransferService {
	return &TransferService{
		userRepo: userRepo,
		ledger:   ledger,
	}
}

// Transfer transfers coins from one user to another. Rejects non-positive
// amounts, self-transfers and unknown receivers; the balance check itself is
// atomic inside the ledger transaction.
func (s *TransferService) Transfer(ctx context.Context, fromID, toID int64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSelfTransfer
	}

	exists, err := s.userRepo.Exists(ctx, toID)
	if err != nil {
		return fmt.Errorf("failed to check receiver: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}

	err = s.ledger.Transfer(ctx, fromID, toID, amount, model.TxTypeTransfer, model.TxTypeTransfer)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return ErrInsufficientBalance
		case errors.Is(err, ledger.ErrUnknownUser):
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to transfer: %w", err)
	}
	return nil
}

// ValidateTransfer validates a transfer without executing it. The real
// balance check happens again inside the transfer transaction; this is for
// friendlier error messages up front.
func (s *TransferService) ValidateTransfer(ctx context.Context, fromID, toID int64, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSelfTransfer
	}

	sender, err := s.userRepo.GetByID(ctx, fromID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get sender: %w", err)
	}
	if sender.Balance < amount {
		return ErrInsufficientBalance
	}

	exists, err := s.userRepo.Exists(ctx, toID)
	if err != nil {
		return fmt.Errorf("failed to check receiver: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}
