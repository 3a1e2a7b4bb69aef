package locker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

// MemoryLocker — внутрипроцессная блокировка по ключу. Используется в тестах
// и при развёртывании одним экземпляром; контракт тот же, что у RedisLocker.
type MemoryLocker struct {
	mu             sync.Mutex
	held           map[string]chan struct{}
	acquireTimeout time.Duration
}

// NewMemoryLocker создаёт MemoryLocker с заданным временем ожидания.
func NewMemoryLocker(acquireTimeout time.Duration) *MemoryLocker {
	return &MemoryLocker{
		held:           make(map[string]chan struct{}),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire берёт блокировку по ключу или возвращает
// models.ErrConcurrentOperation по истечении времени ожидания.
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	const op = "locker.MemoryLocker.Acquire"

	deadline := time.Now().Add(l.acquireTimeout)
	for {
		l.mu.Lock()
		waiter, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()

			var once sync.Once
			release := func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}
			return release, nil
		}
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%s: %w", op, models.ErrConcurrentOperation)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-waiter:
		case <-time.After(remaining):
			return nil, fmt.Errorf("%s: %w", op, models.ErrConcurrentOperation)
		}
	}
}
