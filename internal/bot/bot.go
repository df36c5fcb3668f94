// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/config"
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/handler"
	"chat-game-bot/internal/pkg/lock"
	"chat-game-bot/internal/service"
	"chat-game-bot/internal/session"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	engine   *session.Engine
	registry *game.Registry

	accountHandler  *handler.AccountHandler
	transferHandler *handler.TransferHandler
	adminHandler    *handler.AdminHandler
	rankingHandler  *handler.RankingHandler
	sessionHandler  *handler.SessionHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config          *config.Config
	AccountService  *service.AccountService
	TransferService *service.TransferService
	RankingService  *service.RankingService
	Engine          *session.Engine
	Registry        *game.Registry
	UserLock        *lock.UserLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		engine:   deps.Engine,
		registry: deps.Registry,
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService, deps.RankingService, deps.UserLock)
	b.transferHandler = handler.NewTransferHandler(deps.AccountService, deps.TransferService, deps.UserLock)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService, deps.UserLock)
	b.rankingHandler = handler.NewRankingHandler(deps.RankingService)
	b.sessionHandler = handler.NewSessionHandler(deps.Config, deps.Engine, deps.Registry, deps.AccountService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Account
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/my", b.accountHandler.HandleMy)
	b.bot.Handle("/daily", b.accountHandler.HandleDaily)
	b.bot.Handle("/top", b.accountHandler.HandleTop)

	// Transfers
	b.bot.Handle("/pay", b.transferHandler.HandlePay)

	// Leaderboards
	b.bot.Handle("/daily_top", b.rankingHandler.HandleDailyTop)

	// Game sessions
	b.bot.Handle("/games", b.sessionHandler.HandleGames)
	b.bot.Handle("/newgame", b.sessionHandler.HandleNewGame)
	b.bot.Handle("/join", b.sessionHandler.HandleJoin)
	b.bot.Handle("/answer", b.sessionHandler.HandleAnswer)
	b.bot.Handle("/claim", b.sessionHandler.HandleClaim)
	b.bot.Handle("/cancelgame", b.sessionHandler.HandleCancelGame)
	b.bot.Handle("/gamestatus", b.sessionHandler.HandleGameStatus)

	// Admin commands behind the admin check
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin_add", b.adminHandler.HandleAdminAdd)
	adminGroup.Handle("/admin_sub", b.adminHandler.HandleAdminSub)
	adminGroup.Handle("/admin_set", b.adminHandler.HandleAdminSet)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes inline button callbacks.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot prefixes callback data with \f.
	data := strings.TrimPrefix(callback.Data, "\f")
	if strings.HasPrefix(data, "claim") {
		return b.sessionHandler.HandleClaim(c)
	}

	log.Debug().Str("data", data).Msg("Unhandled callback")
	return nil
}

// Start starts the bot polling. Blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// Telebot returns the underlying telebot instance.
func (b *Bot) Telebot() *tele.Bot {
	return b.bot
}
