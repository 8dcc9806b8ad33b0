package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"linkrelay/internal/config"
	"linkrelay/internal/logger"
	"linkrelay/pkg/retry"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
	Policy retry.Policy
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
		Policy: retry.DefaultPolicy(),
	}
}

// InitRedis connects and pings Redis, retrying the ping with backoff. It
// returns nil without error when no component is configured to use Redis.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	if !dc.Config.UsesRedis() {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Redis.Host, dc.Config.Redis.Port),
		Password: dc.Config.Redis.Password,
		DB:       dc.Config.Redis.DB,
	})

	err := retry.Retry(ctx, dc.Policy, func() error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, next time.Duration) {
		dc.Logger.Warnw("Redis ping failed, retrying", "attempt", attempt, "error", err, "next", next)
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, redis *redis.Client) []error {
	var errs []error

	if redis != nil {
		if err := redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	return errs
}
