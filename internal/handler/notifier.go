package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/model"
	"chat-game-bot/internal/repository"
	"chat-game-bot/internal/session"
)

// ChatNotifier delivers session engine events to the session's chat. It
// implements session.Notifier; the engine fires its methods outside of any
// lock, so slow sends never stall game state.
type ChatNotifier struct {
	bot      *tele.Bot
	sessions *repository.SessionRepository
}

// NewChatNotifier creates a ChatNotifier.
func NewChatNotifier(bot *tele.Bot, sessions *repository.SessionRepository) *ChatNotifier {
	return &ChatNotifier{bot: bot, sessions: sessions}
}

// PhaseChanged announces session lifecycle transitions.
func (n *ChatNotifier) PhaseChanged(sessionID string, status model.SessionStatus, snapshot *session.Snapshot) {
	if snapshot == nil || snapshot.Session == nil {
		return
	}
	s := snapshot.Session

	switch status {
	case model.StatusInProgress:
		if s.Kind == model.KindClaimFirst {
			n.sendClaimButton(s)
			return
		}
		n.send(s.ChatID, fmt.Sprintf("▶️ The game is on! %d players, %d coins in the pot.",
			len(snapshot.Participants), s.PrizePool(len(snapshot.Participants))))
	case model.StatusCancelled:
		n.send(s.ChatID, "🚫 Game over — cancelled. Entry fees have been refunded.")
	}
}

// TurnOpened announces a new round with its prompt and deadline.
func (n *ChatNotifier) TurnOpened(sessionID string, turn *model.Turn) {
	chatID, ok := n.chatFor(sessionID)
	if !ok {
		return
	}
	remaining := time.Until(turn.Deadline).Round(time.Second)
	n.send(chatID, fmt.Sprintf("❓ Round %d (%s to answer)\n\n%s\n\nReply with /answer <your answer>",
		turn.TurnNumber, remaining, turn.Prompt))
}

// TurnClosed announces the round results.
func (n *ChatNotifier) TurnClosed(sessionID string, results *session.TurnResults) {
	chatID, ok := n.chatFor(sessionID)
	if !ok {
		return
	}

	msg := fmt.Sprintf("⏱ Round %d is over. %d answers in.", results.Turn.TurnNumber, len(results.Submissions))
	for _, d := range results.Deltas {
		switch {
		case d.Eliminate:
			msg += fmt.Sprintf("\n☠️ %d is eliminated", d.UserID)
		case d.Delta != 0:
			msg += fmt.Sprintf("\n• %d: %+d pts", d.UserID, d.Delta)
		}
	}
	n.send(chatID, msg)
}

// Settled announces the payouts.
func (n *ChatNotifier) Settled(sessionID string, payouts map[int64]int64) {
	chatID, ok := n.chatFor(sessionID)
	if !ok {
		return
	}

	msg := "🏁 Game over! Payouts:"
	for userID, amount := range payouts {
		msg += fmt.Sprintf("\n🏆 %d wins %d coins", userID, amount)
	}
	if len(payouts) == 0 {
		msg = "🏁 Game over! Nobody won the pot this time."
	}
	n.send(chatID, msg)
}

func (n *ChatNotifier) sendClaimButton(s *model.Session) {
	markup := &tele.ReplyMarkup{}
	btn := markup.Data("🎁 CLAIM", "claim", s.ID)
	markup.Inline(markup.Row(btn))

	_, err := n.bot.Send(tele.ChatID(s.ChatID), "🎁 First to hit the button takes the pot!", markup)
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", s.ChatID).Msg("Failed to send claim button")
	}
}

func (n *ChatNotifier) chatFor(sessionID string) (int64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := n.sessions.GetByID(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to resolve chat for notification")
		return 0, false
	}
	return s.ChatID, true
}

func (n *ChatNotifier) send(chatID int64, text string) {
	if _, err := n.bot.Send(tele.ChatID(chatID), text); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send notification")
	}
}
