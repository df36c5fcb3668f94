package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/config"
	"chat-game-bot/internal/game"
	"chat-game-bot/internal/ledger"
	"chat-game-bot/internal/model"
	"chat-game-bot/internal/repository"
	"chat-game-bot/internal/service"
	"chat-game-bot/internal/session"
)

// Default table shape for /newgame when the creator gives only kind and fee.
const (
	defaultCap = 8
	defaultMin = 2
)

// SessionHandler handles the multiplayer game session commands.
type SessionHandler struct {
	cfg            *config.Config
	engine         *session.Engine
	registry       *game.Registry
	accountService *service.AccountService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	cfg *config.Config,
	engine *session.Engine,
	registry *game.Registry,
	accountService *service.AccountService,
) *SessionHandler {
	return &SessionHandler{
		cfg:            cfg,
		engine:         engine,
		registry:       registry,
		accountService: accountService,
	}
}

// HandleGames handles the /games command, listing the available kinds.
func (h *SessionHandler) HandleGames(c tele.Context) error {
	msg := "🎮 Available games\n\n"
	for _, rules := range h.registry.List() {
		msg += fmt.Sprintf("• %s (%s)\n  %s\n", rules.Name(), rules.Kind(), rules.Description())
	}
	msg += "\nStart one with /newgame <kind> <fee>"
	return c.Reply(msg)
}

// HandleNewGame handles the /newgame command.
// Format: /newgame <kind> [fee] [cap] [min]
func (h *SessionHandler) HandleNewGame(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /newgame <kind> [fee] [cap] [min]\nSee /games for the kinds")
	}

	kind := model.SessionKind(strings.ToLower(args[0]))
	fee, capLimit, minPlayers, err := h.parseTableArgs(args, kind)
	if err != nil {
		return c.Reply(err.Error())
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
		return c.Reply("❌ Failed to fetch your account, please try again later")
	}

	s, err := h.engine.Create(ctx, chat.ID, kind, fee, capLimit, minPlayers, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownKind):
			return c.Reply("❌ Unknown game kind. See /games")
		case errors.Is(err, session.ErrChatBusy):
			return c.Reply("❌ A game is already running in this chat. Finish it or /cancelgame first")
		case errors.Is(err, session.ErrInvalidConfig):
			return c.Reply("❌ " + err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return c.Reply("❌ You don't have enough coins for the entry fee")
		}
		return c.Reply("❌ Failed to start the game, please try again later")
	}

	rules, _ := h.registry.Get(kind)
	return c.Reply(fmt.Sprintf(
		"🎮 %s is open!\n\n"+
			"💵 Entry fee: %d coins\n"+
			"👥 Players: %d–%d\n"+
			"⏰ Joining closes in %s\n\n"+
			"Send /join to play!",
		rules.Name(), s.EntryFee, s.MinParticipants, s.ParticipantCap,
		h.cfg.Sessions.WaitWindow,
	))
}

// HandleJoin handles the /join command.
func (h *SessionHandler) HandleJoin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	s, err := h.activeSession(ctx, c)
	if s == nil {
		return err
	}

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
		return c.Reply("❌ Failed to fetch your account, please try again later")
	}

	if err := h.engine.Join(ctx, s.ID, sender.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyJoined):
			return c.Reply("❌ You are already in this game")
		case errors.Is(err, repository.ErrSessionFull):
			return c.Reply("❌ The game is full")
		case errors.Is(err, repository.ErrSessionNotWaiting), errors.Is(err, session.ErrInvalidState):
			return c.Reply("❌ This game is no longer accepting players")
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return c.Reply("❌ You don't have enough coins for the entry fee")
		}
		return c.Reply("❌ Failed to join, please try again later")
	}

	return c.Reply(fmt.Sprintf("✅ @%s joined! Entry fee: %d coins", displayName(sender), s.EntryFee))
}

// HandleAnswer handles the /answer command.
// Format: /answer <text>
func (h *SessionHandler) HandleAnswer(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) == 0 {
		return c.Reply("❌ Usage: /answer <your answer>")
	}
	value := strings.Join(args, " ")

	s, err := h.activeSession(ctx, c)
	if s == nil {
		return err
	}

	if _, err := h.engine.Submit(ctx, s.ID, 0, sender.ID, value); err != nil {
		switch {
		case errors.Is(err, session.ErrNotParticipant):
			return c.Reply("❌ You are not in this game")
		case errors.Is(err, session.ErrEliminated):
			return c.Reply("❌ You have been eliminated from this game")
		case errors.Is(err, session.ErrDuplicateAnswer):
			return c.Reply("❌ You already answered this round")
		case errors.Is(err, session.ErrTooLate):
			return c.Reply("⏰ Too late, the round is over")
		case errors.Is(err, session.ErrInvalidState):
			return c.Reply("❌ There is no round to answer right now")
		}
		return c.Reply("❌ Failed to record your answer, please try again later")
	}

	return c.Reply(fmt.Sprintf("✅ Answer from @%s recorded", displayName(sender)))
}

// HandleClaim handles the claim button callback and the /claim command.
func (h *SessionHandler) HandleClaim(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	var sessionID string
	if cb := c.Callback(); cb != nil {
		data := strings.TrimPrefix(cb.Data, "\f")
		if i := strings.IndexByte(data, '|'); i >= 0 {
			sessionID = data[i+1:]
		}
	}
	if sessionID == "" {
		s, err := h.activeSession(ctx, c)
		if s == nil {
			return err
		}
		sessionID = s.ID
	}

	err := h.engine.ClaimFirst(ctx, sessionID, sender.ID)
	switch {
	case err == nil:
		return h.respond(c, fmt.Sprintf("🏆 @%s claimed it first and takes the pot!", displayName(sender)))
	case errors.Is(err, session.ErrAlreadyClaimed):
		return h.respond(c, "❌ Too slow, someone claimed it first")
	case errors.Is(err, session.ErrNotParticipant):
		return h.respond(c, "❌ You are not in this game")
	case errors.Is(err, session.ErrInvalidState):
		return h.respond(c, "❌ Nothing to claim right now")
	}
	return h.respond(c, "❌ Claim failed, please try again")
}

// HandleCancelGame handles the /cancelgame command. Only the creator or an
// admin may cancel; everyone escrowed gets their fee back.
func (h *SessionHandler) HandleCancelGame(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	s, err := h.activeSession(ctx, c)
	if s == nil {
		return err
	}

	if s.CreatorID != sender.ID && !h.cfg.IsAdmin(sender.ID) {
		return c.Reply("❌ Only the game's creator or an admin can cancel it")
	}

	reason := fmt.Sprintf("cancelled by user %d", sender.ID)
	if err := h.engine.ForceCancel(ctx, s.ID, reason); err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			return c.Reply("❌ The game is already over")
		}
		return c.Reply("❌ Failed to cancel, please try again later")
	}

	return c.Reply("🚫 Game cancelled. All entry fees refunded")
}

// HandleGameStatus handles the /gamestatus command.
func (h *SessionHandler) HandleGameStatus(c tele.Context) error {
	ctx := context.Background()

	s, err := h.activeSession(ctx, c)
	if s == nil {
		return err
	}

	snapshot, err := h.engine.Status(ctx, s.ID)
	if err != nil {
		return c.Reply("❌ Failed to fetch the game status, please try again later")
	}

	return c.Reply(formatSnapshot(snapshot))
}

// activeSession resolves the chat's live session, replying when none exists.
// A nil session means the reply (or nil) returned should be propagated.
func (h *SessionHandler) activeSession(ctx context.Context, c tele.Context) (*model.Session, error) {
	chat := c.Chat()
	if chat == nil {
		return nil, nil
	}
	s, err := h.engine.ActiveInChat(ctx, chat.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, c.Reply("❌ No game is running in this chat. Start one with /newgame")
		}
		return nil, c.Reply("❌ Something went wrong, please try again later")
	}
	return s, nil
}

func (h *SessionHandler) parseTableArgs(args []string, kind model.SessionKind) (fee int64, capLimit, minPlayers int, err error) {
	fee = 0
	capLimit = defaultCap
	minPlayers = defaultMin

	if len(args) > 1 {
		fee, err = strconv.ParseInt(args[1], 10, 64)
		if err != nil || fee < 0 {
			return 0, 0, 0, errors.New("❌ The entry fee must be zero or a positive number")
		}
	}
	if len(args) > 2 {
		capLimit, err = strconv.Atoi(args[2])
		if err != nil {
			return 0, 0, 0, errors.New("❌ Invalid player cap")
		}
	}
	if len(args) > 3 {
		minPlayers, err = strconv.Atoi(args[3])
		if err != nil {
			return 0, 0, 0, errors.New("❌ Invalid minimum player count")
		}
	}

	// A duel is always exactly two players.
	if kind == model.KindDuel {
		capLimit, minPlayers = 2, 2
	}
	if minPlayers > capLimit {
		minPlayers = capLimit
	}
	return fee, capLimit, minPlayers, nil
}

// respond answers a callback in place or replies to a message.
func (h *SessionHandler) respond(c tele.Context, text string) error {
	if c.Callback() != nil {
		if err := c.Respond(&tele.CallbackResponse{Text: text}); err != nil {
			return err
		}
		return c.Send(text)
	}
	return c.Reply(text)
}

func formatSnapshot(snapshot *session.Snapshot) string {
	s := snapshot.Session

	var status string
	switch s.Status {
	case model.StatusWaiting:
		status = "⏳ Waiting for players"
	case model.StatusInProgress:
		status = "▶️ In progress"
	case model.StatusCompleted:
		status = "🏁 Finished"
	case model.StatusCancelled:
		status = "🚫 Cancelled"
	}

	msg := fmt.Sprintf(
		"🎮 %s — %s\n💵 Entry fee: %d coins\n💰 Pot: %d coins\n\n👥 Players:\n",
		s.Kind, status, s.EntryFee, s.PrizePool(len(snapshot.Participants)),
	)
	for _, p := range snapshot.Participants {
		mark := ""
		if p.Eliminated {
			mark = " ☠️"
		}
		msg += fmt.Sprintf("• %d — %d pts%s\n", p.UserID, p.Score, mark)
	}

	if snapshot.OpenTurn != nil {
		msg += fmt.Sprintf("\n❓ Round %d: %s", snapshot.OpenTurn.TurnNumber, snapshot.OpenTurn.Prompt)
	}
	return msg
}
