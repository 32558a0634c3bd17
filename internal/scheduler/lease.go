package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"habit-tracker/internal/common/errors"
	"habit-tracker/internal/common/logger"
)

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type leaseClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLease is a Lease held as a Redis key with a TTL. The TTL bounds how
// long a crashed holder blocks other replicas.
type RedisLease struct {
	client leaseClient
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisLease(client leaseClient, prefix string, ttl time.Duration, log logger.Logger) *RedisLease {
	return &RedisLease{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "scheduler-lease"}),
	}
}

func (l *RedisLease) Acquire(ctx context.Context, name string) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, errors.NewLeaseUnavailableError(key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.WithError(err).Warn("Lease release failed, waiting for expiry", map[string]interface{}{"key": key})
		}
	}
	return release, true, nil
}
