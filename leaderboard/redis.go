package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr         string        `json:"addr" env:"REDIS_ADDR"`
	Password     string        `json:"password" env:"REDIS_PASSWORD"`
	DB           int           `json:"db" env:"REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"REDIS_WRITE_TIMEOUT"`
}

// DefaultRedisConfig returns sensible defaults for a local Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Redis keeps one sorted set per company:
//   - leaderboard:{company_id} -> ZSET member=user_id score=xp
type Redis struct {
	client *redis.Client
}

var _ Board = (*Redis)(nil)

// NewRedis connects and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client, e.g. a miniredis one in tests.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Close() error { return r.client.Close() }

func boardKey(companyID string) string {
	return "leaderboard:" + companyID
}

func (r *Redis) Update(ctx context.Context, companyID, userID string, xp int64) error {
	return r.client.ZAdd(ctx, boardKey(companyID), redis.Z{Score: float64(xp), Member: userID}).Err()
}

func (r *Redis) Remove(ctx context.Context, companyID, userID string) error {
	return r.client.ZRem(ctx, boardKey(companyID), userID).Err()
}

func (r *Redis) Top(ctx context.Context, companyID string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := r.client.ZRevRangeWithScores(ctx, boardKey(companyID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, Entry{UserID: member, XP: int64(z.Score)})
	}
	return out, nil
}

func (r *Redis) Rank(ctx context.Context, companyID, userID string) (Entry, int, bool, error) {
	key := boardKey(companyID)
	pos, err := r.client.ZRevRank(ctx, key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, 0, false, nil
	}
	if err != nil {
		return Entry{}, 0, false, err
	}
	score, err := r.client.ZScore(ctx, key, userID).Result()
	if err != nil {
		return Entry{}, 0, false, err
	}
	return Entry{UserID: userID, XP: int64(score)}, int(pos) + 1, true, nil
}
