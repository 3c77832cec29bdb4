package database

import (
	"context"
	"fmt"

	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisDB holds the client behind the cross-process aggregates lock.
type RedisDB struct {
	Client   *redis.Client
	poolSize int
	logger   *zap.Logger
}

// NewRedisDB connects and pings once. Only lock traffic goes through this
// client, so the pool stays small.
func NewRedisDB(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		ClientName: "adpulse",
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize),
	)

	return &RedisDB{Client: client, poolSize: cfg.PoolSize, logger: logger}, nil
}

func (r *RedisDB) Close() error {
	if r.Client != nil {
		r.logger.Info("Redis connection closed")
		return r.Client.Close()
	}
	return nil
}

func (r *RedisDB) Health(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// PoolStats reports pool usage for the /metrics scrape.
func (r *RedisDB) PoolStats() metrics.PoolStats {
	s := r.Client.PoolStats()
	return metrics.PoolStats{
		Total:    int64(s.TotalConns),
		Idle:     int64(s.IdleConns),
		InUse:    int64(s.TotalConns) - int64(s.IdleConns),
		Max:      int64(r.poolSize),
		Waits:    int64(s.Misses),
		Timeouts: int64(s.Timeouts),
	}
}
