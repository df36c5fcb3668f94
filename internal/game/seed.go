package game

import "hash/fnv"

// Seed derives a stable per-session, per-turn value for kinds that need
// deterministic content (question selection, fuse lengths, target spots).
// Deriving from stored identifiers means a restarted process re-creates the
// same turn content instead of inventing new answers mid-session.
func Seed(sessionID string, turnNumber int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	_, _ = h.Write([]byte{byte(turnNumber), byte(turnNumber >> 8)})
	return h.Sum64()
}
