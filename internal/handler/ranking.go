package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"chat-game-bot/internal/model"
	"chat-game-bot/internal/service"
)

// RankingHandler handles leaderboard commands.
type RankingHandler struct {
	rankingService *service.RankingService
}

// NewRankingHandler creates a new RankingHandler.
func NewRankingHandler(rankingService *service.RankingService) *RankingHandler {
	return &RankingHandler{rankingService: rankingService}
}

// HandleDailyTop handles the /daily_top command, showing today's biggest
// game winners and losers.
func (h *RankingHandler) HandleDailyTop(c tele.Context) error {
	ctx := context.Background()

	winners, err := h.rankingService.GetDailyWinners(ctx, 10)
	if err != nil {
		return c.Reply("❌ Failed to fetch today's rankings, please try again later")
	}
	losers, err := h.rankingService.GetDailyLosers(ctx, 10)
	if err != nil {
		return c.Reply("❌ Failed to fetch today's rankings, please try again later")
	}

	if len(winners) == 0 && len(losers) == 0 {
		return c.Reply("No games played today yet. Start one with /newgame!")
	}

	msg := "📊 Today's game results\n"
	msg += rankingSection("🏆 Winners", winners)
	msg += rankingSection("💸 Losers", losers)
	return c.Reply(msg)
}

func rankingSection(title string, ranks []*model.DailyRank) string {
	if len(ranks) == 0 {
		return ""
	}
	section := "\n" + title + "\n"
	for i, r := range ranks {
		name := r.Username
		if name == "" {
			name = fmt.Sprintf("%d", r.UserID)
		}
		sign := ""
		if r.NetProfit > 0 {
			sign = "+"
		}
		section += fmt.Sprintf("%d. %s: %s%d coins\n", i+1, name, sign, r.NetProfit)
	}
	return section
}
