package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Leaser grants exclusive runs of a job across instances.
type Leaser interface {
	// Acquire returns a release func and true when this instance owns the
	// lease. False with a nil error means another instance holds it.
	Acquire(ctx context.Context) (func(), bool, error)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLeaser is a SET NX PX lease. The TTL bounds how long a crashed
// holder blocks other instances.
type RedisLeaser struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLeaser returns a lease on key.
func NewRedisLeaser(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *RedisLeaser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLeaser{client: client, key: key, ttl: ttl, logger: logger}
}

// Acquire implements Leaser.
func (l *RedisLeaser) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The job context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("release lease", zap.String("key", l.key), zap.Error(err))
		}
	}
	return release, true, nil
}
