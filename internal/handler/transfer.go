package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/pkg/lock"
	"chat-game-bot/internal/service"
)

// TransferHandler handles transfer-related commands.
type TransferHandler struct {
	accountService  *service.AccountService
	transferService *service.TransferService
	userLock        *lock.UserLock
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(
	accountService *service.AccountService,
	transferService *service.TransferService,
	userLock *lock.UserLock,
) *TransferHandler {
	return &TransferHandler{
		accountService:  accountService,
		transferService: transferService,
		userLock:        userLock,
	}
}

// HandlePay handles the /pay command.
// Format: /pay @username amount, or reply to the recipient's message with
// /pay amount.
func (h *TransferHandler) HandlePay(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, err := h.parsePayArgs(c)
	if err != nil {
		return c.Reply(err.Error())
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	if err := h.transferService.Transfer(ctx, sender.ID, targetID, amount); err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientBalance):
			return c.Reply("❌ Not enough coins for this transfer")
		case errors.Is(err, service.ErrSelfTransfer):
			return c.Reply("❌ You cannot transfer coins to yourself")
		case errors.Is(err, service.ErrUserNotFound):
			return c.Reply("❌ The recipient has no account yet. They need to /start first")
		case errors.Is(err, service.ErrInvalidAmount):
			return c.Reply("❌ Amount must be a positive number")
		}
		return c.Reply("❌ Transfer failed, please try again later")
	}

	balance, _ := h.accountService.GetBalance(ctx, sender.ID)
	return c.Reply(fmt.Sprintf("✅ Sent %d coins\n💰 Your balance: %d coins", amount, balance))
}

// parsePayArgs resolves the recipient and amount from the command. Telegram
// offers no username lookup, so the recipient must come from a mention
// entity or a replied-to message.
func (h *TransferHandler) parsePayArgs(c tele.Context) (targetID, amount int64, err error) {
	args := c.Args()
	msg := c.Message()

	// Reply form: /pay <amount>
	if msg != nil && msg.ReplyTo != nil && msg.ReplyTo.Sender != nil && len(args) == 1 {
		amount, convErr := strconv.ParseInt(args[0], 10, 64)
		if convErr != nil || amount <= 0 {
			return 0, 0, errors.New("❌ Amount must be a positive number")
		}
		return msg.ReplyTo.Sender.ID, amount, nil
	}

	if len(args) < 2 {
		return 0, 0, errors.New("❌ Usage: /pay @username <amount>, or reply with /pay <amount>")
	}

	targetName := strings.TrimPrefix(args[0], "@")
	amount, convErr := strconv.ParseInt(args[1], 10, 64)
	if convErr != nil || amount <= 0 {
		return 0, 0, errors.New("❌ Amount must be a positive number")
	}

	if msg != nil {
		for _, entity := range msg.Entities {
			if entity.Type == tele.EntityMention && entity.User != nil && entity.User.Username == targetName {
				return entity.User.ID, amount, nil
			}
		}
		if msg.ReplyTo != nil && msg.ReplyTo.Sender != nil && msg.ReplyTo.Sender.Username == targetName {
			return msg.ReplyTo.Sender.ID, amount, nil
		}
	}

	return 0, 0, fmt.Errorf("❌ Cannot find @%s. Reply to one of their messages to pay them", targetName)
}
