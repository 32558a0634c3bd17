package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"habit-tracker/internal/common/aws"
	"habit-tracker/internal/common/config"
	"habit-tracker/internal/common/database"
	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/delivery/offline"
	"habit-tracker/internal/delivery/outofband"
	"habit-tracker/internal/directory"
	"habit-tracker/internal/models"
	"habit-tracker/internal/reminder/registry"
	"habit-tracker/internal/reminder/store"
)

// storage bundles the stores selected by database.driver. pg and redis are
// nil when not configured.
type storage struct {
	reminders store.Store
	inbox     offline.Store
	registry  *registry.Registry
	directory directory.Directory
	pg        *database.PostgresClient
	redis     *database.RedisClient
}

func openStorage(ctx context.Context, cfg *config.Config, clk clock.Clock, zapLog *zap.Logger, log logger.Logger) (*storage, error) {
	st := &storage{}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pg, err := connectPostgres(ctx, cfg.Database.Postgres, postgresRetry, zapLog)
		if err != nil {
			return nil, err
		}
		st.pg = pg
		zapLog.Info("PostgreSQL connected successfully")

		if cfg.Database.Postgres.AutoMigrate {
			if err := database.Migrate(ctx, st.pg.DB); err != nil {
				st.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			zapLog.Info("Schema migrated")
		}

		st.reminders = store.NewPostgresStore(st.pg.DB, clk, store.WithLogger(log))
		st.inbox = offline.NewPostgresStore(st.pg.DB)
		st.directory = directory.NewPostgresDirectory(st.pg.DB)
		st.registry, err = registry.FromConfig(st.pg.DB, cfg.Entities)
		if err != nil {
			st.Close()
			return nil, err
		}

	case config.DriverMemory:
		types := make([]models.EntityType, 0, len(cfg.Entities))
		for name := range cfg.Entities {
			types = append(types, models.EntityType(name))
		}
		reg, _, err := registry.InMemory(types)
		if err != nil {
			return nil, err
		}
		st.reminders = store.NewMemoryStore(clk)
		st.inbox = offline.NewMemoryStore()
		st.directory = directory.StaticDirectory{}
		st.registry = reg
		zapLog.Warn("Using in-memory stores; reminders are lost on restart")

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Database.Redis.Enabled() {
		rdb, err := connectRedis(ctx, cfg.Database.Redis, redisRetry, zapLog)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.redis = rdb
		zapLog.Info("Redis connected successfully")

		ttl := time.Duration(cfg.Notifications.DirectoryCacheTTL) * time.Second
		st.directory = directory.NewCachedDirectory(st.directory, st.redis.Client, ttl, log)
	}

	zapLog.Info("Entity types registered", zap.Int("count", len(st.registry.Types())))
	return st, nil
}

type retryPolicy struct {
	attempts int
	delay    time.Duration
}

var (
	postgresRetry = retryPolicy{attempts: 15, delay: 2 * time.Second}
	redisRetry    = retryPolicy{attempts: 10, delay: 2 * time.Second}
)

func connectPostgres(ctx context.Context, cfg config.PostgresConfig, policy retryPolicy, zapLog *zap.Logger) (*database.PostgresClient, error) {
	var pg *database.PostgresClient
	err := retryWithBackoff(func() error {
		client, err := database.NewPostgres(cfg)
		if err != nil {
			return err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return err
		}
		pg = client
		return nil
	}, policy.attempts, policy.delay, zapLog, "PostgreSQL connection")
	if err != nil {
		return nil, errors.NewDatabaseConnectionFailedError(err).WithMetadata("backend", "postgres")
	}
	return pg, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, policy retryPolicy, zapLog *zap.Logger) (*database.RedisClient, error) {
	var rdb *database.RedisClient
	err := retryWithBackoff(func() error {
		client, err := database.NewRedis(cfg)
		if err != nil {
			return err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return err
		}
		rdb = client
		return nil
	}, policy.attempts, policy.delay, zapLog, "Redis connection")
	if err != nil {
		return nil, errors.NewDatabaseConnectionFailedError(err).WithMetadata("backend", "redis")
	}
	return rdb, nil
}

// Ping checks every configured backing service.
func (s *storage) Ping(ctx context.Context) error {
	if s.pg != nil {
		if err := s.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (s *storage) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pg != nil {
		_ = s.pg.Close()
	}
}

// newOutOfBandNotifier returns nil when neither email nor SMS is enabled.
func newOutOfBandNotifier(ctx context.Context, cfg *config.Config, dir directory.Directory, log logger.Logger) (*outofband.Notifier, error) {
	emailOn := cfg.Notifications.Email.Enabled
	smsOn := cfg.Notifications.SMS.Enabled
	if !emailOn && !smsOn {
		return nil, nil
	}

	awsCfg, err := aws.LoadConfig(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var email outofband.EmailSender
	if emailOn {
		email = aws.NewEmailSender(aws.NewSESService(awsCfg), cfg.Notifications.Email.FromEmail)
	}
	var sms outofband.SMSSender
	if smsOn {
		sms = aws.NewSMSSender(aws.NewSNSService(awsCfg))
	}

	return outofband.NewNotifier(outofband.Config{
		EmailEnabled: emailOn,
		SMSEnabled:   smsOn,
		SMSThreshold: models.Priority(cfg.Notifications.SMS.PriorityThreshold),
	}, dir, email, sms, log), nil
}
