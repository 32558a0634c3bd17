package directory

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"habit-tracker/internal/common/logger"
	"habit-tracker/internal/models"
)

const cacheKeyPrefix = "user:contact:"

// CachedDirectory reads through Redis in front of another Directory. Redis
// failures degrade to the underlying lookup.
type CachedDirectory struct {
	next   Directory
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedDirectory(next Directory, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "user-directory"}),
	}
}

func cacheKey(userID string) string {
	return cacheKeyPrefix + userID
}

func (d *CachedDirectory) FindByID(ctx context.Context, userID string) (*models.User, error) {
	key := cacheKey(userID)

	val, err := d.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var u models.User
		if jsonErr := json.Unmarshal([]byte(val), &u); jsonErr == nil {
			return &u, nil
		}
		d.logger.Warn("Discarding malformed cached user", map[string]interface{}{"userId": userID})
	case !stderrors.Is(err, redis.Nil):
		d.logger.WithError(err).Warn("User cache read failed", map[string]interface{}{"userId": userID})
	}

	u, err := d.next.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, _ := json.Marshal(u)
	if err := d.redis.Set(ctx, key, data, d.ttl).Err(); err != nil {
		d.logger.WithError(err).Warn("User cache write failed", map[string]interface{}{"userId": userID})
	}
	return u, nil
}

// Invalidate drops the cached entry for userID.
func (d *CachedDirectory) Invalidate(ctx context.Context, userID string) error {
	return d.redis.Del(ctx, cacheKey(userID)).Err()
}
