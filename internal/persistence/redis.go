package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
)

// Redis backs the classifier response cache and the ticket event relay. Both
// degrade to no-ops when it is disabled, so a failed ping only warns.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a disabled handle when cfg.Enabled is false.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if !cfg.Enabled || cfg.Addr == "" {
		logger.Info("redis disabled; classifier cache and event relay are off")
		return &Redis{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return &Redis{client: client}
}

// Client returns nil when Redis is disabled.
func (r *Redis) Client() *redis.Client {
	if r == nil {
		return nil
	}
	return r.client
}

// Enabled reports whether a client was configured.
func (r *Redis) Enabled() bool {
	return r.Client() != nil
}

func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.client.Close()
	}
}

// Ping is used by the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return errors.New("redis disabled")
	}
	return r.client.Ping(ctx).Err()
}
