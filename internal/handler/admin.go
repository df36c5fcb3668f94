package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/model"
	"chat-game-bot/internal/pkg/lock"
	"chat-game-bot/internal/service"
)

// AdminHandler handles admin-only balance commands. Admin checks happen in
// middleware; every operation here is logged with the acting admin.
type AdminHandler struct {
	accountService *service.AccountService
	userLock       *lock.UserLock
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accountService *service.AccountService, userLock *lock.UserLock) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		userLock:       userLock,
	}
}

// HandleAdminAdd handles the /admin_add command.
// Format: /admin_add <user_id> <amount>
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	return h.adjust(c, "admin_add", func(ctx context.Context, targetID, amount int64) error {
		return h.accountService.Adjust(ctx, targetID, amount, model.TxTypeAdminAdd)
	})
}

// HandleAdminSub handles the /admin_sub command.
// Format: /admin_sub <user_id> <amount>
func (h *AdminHandler) HandleAdminSub(c tele.Context) error {
	return h.adjust(c, "admin_sub", func(ctx context.Context, targetID, amount int64) error {
		return h.accountService.Adjust(ctx, targetID, -amount, model.TxTypeAdminSub)
	})
}

// HandleAdminSet handles the /admin_set command.
// Format: /admin_set <user_id> <balance>
func (h *AdminHandler) HandleAdminSet(c tele.Context) error {
	return h.adjust(c, "admin_set", func(ctx context.Context, targetID, amount int64) error {
		return h.accountService.SetBalance(ctx, targetID, amount)
	})
}

func (h *AdminHandler) adjust(c tele.Context, op string, apply func(ctx context.Context, targetID, amount int64) error) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, amount, err := parseAdminArgs(c)
	if err != nil {
		return c.Reply(err.Error())
	}

	h.userLock.Lock(targetID)
	defer h.userLock.Unlock(targetID)

	if err := apply(ctx, targetID, amount); err != nil {
		return c.Reply("❌ Operation failed, the user may not exist")
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Int64("amount", amount).
		Str("operation", op).
		Msg("Admin operation executed")

	balance, err := h.accountService.GetBalance(ctx, targetID)
	if err != nil {
		return c.Reply("✅ Done")
	}
	return c.Reply(fmt.Sprintf("✅ Done\n👤 User %d\n💰 Balance: %d coins", targetID, balance))
}

func parseAdminArgs(c tele.Context) (targetID, amount int64, err error) {
	args := c.Args()
	if len(args) < 2 {
		return 0, 0, errors.New("❌ Usage: <user_id> <amount>")
	}

	targetID, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, errors.New("❌ Invalid user ID")
	}
	amount, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount < 0 {
		return 0, 0, errors.New("❌ Invalid amount")
	}
	return targetID, amount, nil
}
