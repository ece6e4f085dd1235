package store

import "fmt"

// Key layout. Everything about one match hangs off its match id so completed
// matches can be expired as a unit.

func snapshotKey(matchID string) string {
	return fmt.Sprintf("match:%s:snapshot", matchID)
}

func versionKey(matchID string) string {
	return fmt.Sprintf("match:%s:version", matchID)
}

func rewardsKey(matchID string) string {
	return fmt.Sprintf("match:%s:rewards", matchID)
}

func activeSetKey() string {
	return "matches:active"
}

func waitingKey(gameType string) string {
	return fmt.Sprintf("mm:waiting:%s", gameType)
}

func disconnectKey(playerID string) string {
	return fmt.Sprintf("disc:%s", playerID)
}
