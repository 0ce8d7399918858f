package scores

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStore keeps the record history in a capped list, per player totals in
// a hash and each player's best score in a sorted set.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrapf(err, "ping redis at %s", addr)
	}
	return NewRedisStore(client), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Save(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	bz, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "encode score record")
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, redisHistoryKey(), bz)
	pipe.LTrim(ctx, redisHistoryKey(), -historyLimit, -1)

	playerKey := redisPlayerKey(r.Player)
	pipe.HIncrBy(ctx, playerKey, fieldGamesPlayed, 1)
	pipe.HIncrBy(ctx, playerKey, fieldPlaytimeMS, r.Playtime.Milliseconds())
	pipe.HIncrBy(ctx, playerKey, fieldKills, int64(r.Kills))

	// GT keeps the best score without a read outside the transaction
	pipe.ZAddGT(ctx, redisLeaderboardKey(), redis.Z{Score: float64(r.Score), Member: r.Player})

	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "save score record %s", r.ID)
	}
	return nil
}

func (s *RedisStore) best(ctx context.Context, player string) (*uint32, error) {
	score, err := s.client.ZScore(ctx, redisLeaderboardKey(), player).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read best score of %s", player)
	}
	b := uint32(score)
	return &b, nil
}

func (s *RedisStore) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, redisLeaderboardKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, eris.Wrap(err, "read leaderboard")
	}

	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		player, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Player: player, Score: uint32(z.Score)})
	}
	return entries, nil
}

func (s *RedisStore) Stats(ctx context.Context, player string) (PlayerStats, error) {
	var stats PlayerStats

	fields, err := s.client.HGetAll(ctx, redisPlayerKey(player)).Result()
	if err != nil {
		return stats, eris.Wrapf(err, "read stats of %s", player)
	}

	parse := func(field string) (int64, error) {
		v, ok := fields[field]
		if !ok {
			return 0, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "field %s of %s", field, player)
		}
		return n, nil
	}

	if stats.GamesPlayed, err = parse(fieldGamesPlayed); err != nil {
		return stats, err
	}
	ms, err := parse(fieldPlaytimeMS)
	if err != nil {
		return stats, err
	}
	stats.Playtime = time.Duration(ms) * time.Millisecond
	if stats.Kills, err = parse(fieldKills); err != nil {
		return stats, err
	}

	best, err := s.best(ctx, player)
	if err != nil {
		return stats, err
	}
	if best != nil {
		stats.Best = *best
	}
	return stats, nil
}

func (s *RedisStore) History(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, redisHistoryKey(), int64(-n), -1).Result()
	if err != nil {
		return nil, eris.Wrap(err, "read score history")
	}

	records := make([]Record, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var r Record
		if err := json.Unmarshal([]byte(raw[i]), &r); err != nil {
			return nil, eris.Wrap(err, "decode score record")
		}
		records = append(records, r)
	}
	return records, nil
}
