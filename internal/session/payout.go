package session

import (
	"sort"

	"chat-game-bot/internal/model"
)

// payoutTable maps participant count to per-rank percentages. Counts above
// four use the four-player split; ranks past the table get nothing.
// Percentages are applied with floor rounding and the remainder is
// forfeited, never redistributed.
var payoutTable = map[int][]int64{
	1: {100},
	2: {100, 0},
	3: {70, 30, 0},
	4: {60, 25, 15, 0},
}

// CalculatePayouts maps a prize pool onto a ranked participant list. ranked
// holds user IDs in final rank order (winner first). The returned map only
// contains non-zero payouts.
func CalculatePayouts(pool int64, ranked []int64) map[int64]int64 {
	payouts := make(map[int64]int64)
	if pool <= 0 || len(ranked) == 0 {
		return payouts
	}

	n := len(ranked)
	table := payoutTable[n]
	if table == nil {
		table = payoutTable[4]
	}

	for i, userID := range ranked {
		if i >= len(table) {
			break
		}
		amount := pool * table[i] / 100
		if amount > 0 {
			payouts[userID] = amount
		}
	}

	return payouts
}

// SplitEven divides a pool evenly among users with floor rounding; the
// remainder is forfeited.
func SplitEven(pool int64, users []int64) map[int64]int64 {
	payouts := make(map[int64]int64)
	if pool <= 0 || len(users) == 0 {
		return payouts
	}

	share := pool / int64(len(users))
	if share <= 0 {
		return payouts
	}
	for _, userID := range users {
		payouts[userID] = share
	}
	return payouts
}

// Rank orders participants for settlement: score descending, ties broken by
// earliest join, then by user ID for determinism. Returns user IDs winner
// first.
func Rank(participants []*model.Participant) []int64 {
	sorted := make([]*model.Participant, len(participants))
	copy(sorted, participants)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	ranked := make([]int64, len(sorted))
	for i, p := range sorted {
		ranked[i] = p.UserID
	}
	return ranked
}
