package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// releaseScript снимает блокировку только если токен совпадает: блокировку,
// перехваченную другим владельцем после истечения TTL, снимать нельзя.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker — распределённая блокировка по ключу аккаунта на SET NX PX.
// TTL страхует от зависшего владельца; время ожидания ограничено.
type RedisLocker struct {
	client         *redis.Client
	acquireTimeout time.Duration
	lockTTL        time.Duration
}

// NewRedisLocker создаёт RedisLocker с заданным временем ожидания и TTL.
func NewRedisLocker(client *redis.Client, acquireTimeout, lockTTL time.Duration) *RedisLocker {
	return &RedisLocker{
		client:         client,
		acquireTimeout: acquireTimeout,
		lockTTL:        lockTTL,
	}
}

// Acquire пытается взять блокировку, опрашивая Redis до acquireTimeout.
// По истечении ожидания возвращает models.ErrConcurrentOperation.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	const op = "locker.RedisLocker.Acquire"

	lockKey := "lock:account:" + key
	token := uuid.New().String()
	deadline := time.Now().Add(l.acquireTimeout)

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err()
			}
			return release, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrConcurrentOperation)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
