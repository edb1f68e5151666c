package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/reading-progression/internal/config"
	"github.com/reading-progression/internal/domain"
)

// Rankings provides the Redis-backed leaderboard mirror. Each ranking
// period maps to one sorted set keyed by user with the recomputed EXP
// total as score; the durable snapshots in Postgres remain authoritative.
type Rankings struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankings creates a new Redis rankings mirror
func NewRankings(cfg *config.RedisConfig, logger *slog.Logger) (*Rankings, error) {
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

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Rankings{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (r *Rankings) Close() error {
	return r.client.Close()
}

// Client returns the underlying Redis client
func (r *Rankings) Client() *redis.Client {
	return r.client
}

// periodKey returns the Redis key for a period's sorted set
func (r *Rankings) periodKey(period domain.Period) string {
	return fmt.Sprintf("rankings:%s", period)
}

// SetPeriodExp writes a user's recomputed total for one period
func (r *Rankings) SetPeriodExp(ctx context.Context, period domain.Period, userID string, totalExp int) error {
	key := r.periodKey(period)
	err := r.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(totalExp),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting period exp: %w", err)
	}
	return nil
}

// RemoveUser drops a user from a period's leaderboard
func (r *Rankings) RemoveUser(ctx context.Context, period domain.Period, userID string) error {
	key := r.periodKey(period)
	if err := r.client.ZRem(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("removing user: %w", err)
	}
	return nil
}

// TopN returns the period's top N users in descending EXP order with
// 1-based ranks
func (r *Rankings) TopN(ctx context.Context, period domain.Period, n int) ([]domain.RankingItem, error) {
	key := r.periodKey(period)
	results, err := r.client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	items := make([]domain.RankingItem, len(results))
	for i, result := range results {
		items[i] = domain.RankingItem{
			Rank:     i + 1,
			UserID:   result.Member.(string),
			TotalExp: int(result.Score),
		}
	}
	return items, nil
}

// UserRank returns a user's rank and total within a period
func (r *Rankings) UserRank(ctx context.Context, period domain.Period, userID string) (*domain.RankingItem, error) {
	key := r.periodKey(period)

	pipe := r.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, userID)
	scoreCmd := pipe.ZScore(ctx, key, userID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}
	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.RankingItem{
		Rank:     int(rank) + 1, // Convert 0-indexed to 1-indexed
		UserID:   userID,
		TotalExp: int(score),
	}, nil
}

// RebuildPeriod replaces a period's sorted set with the given totals,
// used on startup recovery and by the reconciliation pass
func (r *Rankings) RebuildPeriod(ctx context.Context, period domain.Period, totals map[string]int) error {
	key := r.periodKey(period)

	pipe := r.client.Pipeline()
	pipe.Del(ctx, key)
	for userID, totalExp := range totals {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(totalExp),
			Member: userID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding period: %w", err)
	}
	return nil
}
