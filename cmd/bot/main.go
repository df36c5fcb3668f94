// Package main is the entry point for the chat game bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chat-game-bot/internal/bot"
	"chat-game-bot/internal/config"
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/game/claimfirst"
	"chat-game-bot/internal/game/duel"
	"chat-game-bot/internal/game/hotpotato"
	"chat-game-bot/internal/game/quiz"
	"chat-game-bot/internal/game/treasurehunt"
	"chat-game-bot/internal/game/wordchain"
	"chat-game-bot/internal/handler"
	"chat-game-bot/internal/ledger"
	"chat-game-bot/internal/pkg/db"
	"chat-game-bot/internal/pkg/lock"
	"chat-game-bot/internal/repository"
	"chat-game-bot/internal/service"
	"chat-game-bot/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories and the ledger
	userRepo := repository.NewUserRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)
	sessionRepo := repository.NewSessionRepository(dbPool.Pool)
	participantRepo := repository.NewParticipantRepository(dbPool.Pool)
	turnRepo := repository.NewTurnRepository(dbPool.Pool)
	submissionRepo := repository.NewSubmissionRepository(dbPool.Pool)
	moneyLedger := ledger.New(dbPool.Pool)
	escrow := repository.NewEscrowManager(dbPool.Pool, moneyLedger)

	// Services
	accountService := service.NewAccountService(
		userRepo,
		moneyLedger,
		cfg.Daily.Reward,
		time.Duration(cfg.Daily.CooldownHours)*time.Hour,
	)
	transferService := service.NewTransferService(userRepo, moneyLedger)
	rankingService := service.NewRankingService(userRepo, ledgerRepo, time.Local)

	userLock := lock.NewUserLock()

	// Game kinds
	registry := game.NewRegistry()
	for _, rules := range []game.Rules{
		quiz.New(&quiz.Config{
			Turns:      cfg.Sessions.Quiz.Turns,
			SpeedBonus: cfg.Sessions.Quiz.SpeedBonus,
		}),
		wordchain.New(nil),
		duel.New(&duel.Config{BestOf: cfg.Sessions.Duel.BestOf}),
		claimfirst.New(),
		treasurehunt.New(&treasurehunt.Config{Turns: cfg.Sessions.TreasureHunt.Turns}),
		hotpotato.New(),
	} {
		if err := registry.Register(rules); err != nil {
			log.Fatal().Err(err).Str("kind", string(rules.Kind())).Msg("Failed to register game")
		}
	}
	log.Info().Int("kinds", registry.Count()).Msg("Games registered")

	// Session engine, wired to the chat notifier after the bot exists.
	engineDeps := session.Deps{
		Config:       cfg.Sessions,
		Sessions:     sessionRepo,
		Participants: participantRepo,
		Turns:        turnRepo,
		Submissions:  submissionRepo,
		Escrow:       escrow,
		Rules:        registry,
	}

	telegramBot, engine, err := wire(cfg, engineDeps, accountService, transferService, rankingService, userLock, sessionRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session engine")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	engine.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// wire builds the engine and bot, closing the loop between them: the engine
// needs the bot for notifications, the bot needs the engine for commands.
func wire(
	cfg *config.Config,
	engineDeps session.Deps,
	accountService *service.AccountService,
	transferService *service.TransferService,
	rankingService *service.RankingService,
	userLock *lock.UserLock,
	sessionRepo *repository.SessionRepository,
) (*bot.Bot, *session.Engine, error) {
	engine := session.NewEngine(engineDeps)

	telegramBot, err := bot.New(&bot.Dependencies{
		Config:          cfg,
		AccountService:  accountService,
		TransferService: transferService,
		RankingService:  rankingService,
		Engine:          engine,
		Registry:        engineDeps.Rules,
		UserLock:        userLock,
	})
	if err != nil {
		return nil, nil, err
	}

	engine.SetNotifier(handler.NewChatNotifier(telegramBot.Telebot(), sessionRepo))
	return telegramBot, engine, nil
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: users
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 1000,
			last_daily_claim BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
	`)
	if err != nil {
		return err
	}

	// Migration 2: append-only ledger
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			session_id UUID,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_user_time ON ledger_entries(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_type_time ON ledger_entries(type, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger_entries(session_id);
	`)
	if err != nil {
		return err
	}

	// Migration 3: sessions
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			kind VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL,
			creator_id BIGINT NOT NULL,
			entry_fee BIGINT NOT NULL DEFAULT 0,
			participant_cap INT NOT NULL,
			min_participants INT NOT NULL,
			deadline TIMESTAMPTZ,
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			settled BOOLEAN NOT NULL DEFAULT FALSE,
			refunded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_chat_status ON sessions(chat_id, status);
		CREATE INDEX IF NOT EXISTS idx_sessions_status_deadline ON sessions(status, deadline);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_live_chat ON sessions(chat_id) WHERE status IN ('waiting', 'in_progress');
	`)
	if err != nil {
		return err
	}

	// Migration 4: participants
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS participants (
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id),
			escrowed BOOLEAN NOT NULL DEFAULT FALSE,
			refunded BOOLEAN NOT NULL DEFAULT FALSE,
			paid BOOLEAN NOT NULL DEFAULT FALSE,
			penalized BOOLEAN NOT NULL DEFAULT FALSE,
			score BIGINT NOT NULL DEFAULT 0,
			eliminated BOOLEAN NOT NULL DEFAULT FALSE,
			rank INT NOT NULL DEFAULT 0,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, user_id)
		);
	`)
	if err != nil {
		return err
	}

	// Migration 5: turns; at most one open turn per session
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS turns (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			turn_number INT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			deadline TIMESTAMPTZ NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (session_id, turn_number)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_turns_open ON turns(session_id) WHERE NOT closed;
	`)
	if err != nil {
		return err
	}

	// Migration 6: submissions; one answer per user per turn
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id BIGSERIAL PRIMARY KEY,
			turn_id BIGINT NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
			session_id UUID NOT NULL,
			user_id BIGINT NOT NULL,
			value TEXT NOT NULL,
			correct BOOLEAN,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (turn_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_session ON submissions(session_id);
	`)
	if err != nil {
		return err
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
