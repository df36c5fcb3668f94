// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/pkg/lock"
	"chat-game-bot/internal/service"
)

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
	rankingService *service.RankingService
	userLock       *lock.UserLock
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, rankingService *service.RankingService, userLock *lock.UserLock) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		rankingService: rankingService,
		userLock:       userLock,
	}
}

// HandleStart handles the /start command.
// Creates a new account with the initial coin grant if the user is unknown.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	username := displayName(sender)

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	user, created, err := h.accountService.EnsureUser(ctx, sender.ID, username)
	if err != nil {
		return c.Reply("❌ Failed to create your account, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome @%s!\n\n"+
				"Your account is ready with %d coins.\n\n"+
				"Commands:\n"+
				"/balance — check your balance\n"+
				"/daily — claim the daily reward\n"+
				"/top — richest players\n"+
				"/newgame <kind> <fee> — start a game\n"+
				"/join — join the open game\n"+
				"/pay @user <amount> — send coins",
			username, user.Balance,
		))
	}

	return c.Reply(fmt.Sprintf("👋 Welcome back @%s!\n\nBalance: %d coins", username, user.Balance))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	balance, err := h.accountService.GetBalance(ctx, sender.ID)
	if err != nil {
		// Unknown user: register on the fly.
		user, _, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender))
		if err != nil {
			return c.Reply("❌ Failed to fetch your balance, please try again later")
		}
		balance = user.Balance
	}

	return c.Reply(fmt.Sprintf("💰 Balance: %d coins", balance))
}

// HandleMy handles the /my command, showing account details and today's
// game profit.
func (h *AccountHandler) HandleMy(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, _, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender))
	if err != nil {
		return c.Reply("❌ Failed to fetch your account, please try again later")
	}

	profit, err := h.rankingService.GetUserDailyProfit(ctx, sender.ID)
	if err != nil {
		profit = 0
	}

	sign := ""
	if profit > 0 {
		sign = "+"
	}
	return c.Reply(fmt.Sprintf(
		"👤 @%s\n💰 Balance: %d coins\n🎮 Today's games: %s%d coins",
		user.Username, user.Balance, sign, profit,
	))
}

// HandleDaily handles the /daily command.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
		return c.Reply("❌ Failed to fetch your account, please try again later")
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	reward, remaining, err := h.accountService.ClaimDaily(ctx, sender.ID)
	if err != nil {
		if remaining > 0 {
			hours := int(remaining.Hours())
			minutes := int(remaining.Minutes()) % 60
			return c.Reply(fmt.Sprintf("⏳ Already claimed. Next reward in %dh %dm", hours, minutes))
		}
		return c.Reply("❌ Failed to claim the daily reward, please try again later")
	}

	return c.Reply(fmt.Sprintf("✅ Daily reward claimed: +%d coins", reward))
}

// HandleTop handles the /top command, showing the richest players.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	users, err := h.accountService.GetTopUsers(ctx, 10)
	if err != nil {
		return c.Reply("❌ Failed to fetch the leaderboard, please try again later")
	}
	if len(users) == 0 {
		return c.Reply("No players yet. Send /start to create an account!")
	}

	msg := "🏆 Richest players\n\n"
	for i, user := range users {
		name := user.Username
		if name == "" {
			name = fmt.Sprintf("%d", user.TelegramID)
		}
		msg += fmt.Sprintf("%d. %s — %d coins\n", i+1, name, user.Balance)
	}
	return c.Reply(msg)
}

// displayName picks the best human-readable name for a Telegram user.
func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}
