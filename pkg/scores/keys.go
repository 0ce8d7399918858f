package scores

const keyPrefix = "rtype:"

func redisHistoryKey() string {
	return keyPrefix + "scores:history"
}

func redisLeaderboardKey() string {
	return keyPrefix + "leaderboard"
}

func redisPlayerKey(player string) string {
	return keyPrefix + "players:" + player
}

const (
	fieldGamesPlayed = "games_played"
	fieldPlaytimeMS  = "playtime_ms"
	fieldKills       = "kills"
)

// historyLimit bounds the history list.
const historyLimit = 1000
