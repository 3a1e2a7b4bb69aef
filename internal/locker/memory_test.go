package locker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/access-gatekeeper/internal/models"
)

func TestMemoryLocker_ExclusivePerKey(t *testing.T) {
	l := NewMemoryLocker(50 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "acc-1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "acc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConcurrentOperation))

	// Другой ключ свободен.
	release2, err := l.Acquire(ctx, "acc-2")
	require.NoError(t, err)
	release2()

	release()

	release3, err := l.Acquire(ctx, "acc-1")
	require.NoError(t, err)
	release3()
}

func TestMemoryLocker_WaitsForRelease(t *testing.T) {
	l := NewMemoryLocker(time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "acc-1")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		release()
	}()

	release2, err := l.Acquire(ctx, "acc-1")
	require.NoError(t, err)
	release2()
}

func TestMemoryLocker_ConcurrentHolders(t *testing.T) {
	l := NewMemoryLocker(2 * time.Second)
	ctx := context.Background()

	var inCritical int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "acc-1")
			require.NoError(t, err)
			defer release()

			require.Equal(t, int32(1), atomic.AddInt32(&inCritical, 1))
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inCritical, -1)
		}()
	}
	wg.Wait()
}

func TestMemoryLocker_ReleaseIsIdempotent(t *testing.T) {
	l := NewMemoryLocker(50 * time.Millisecond)

	release, err := l.Acquire(context.Background(), "acc-1")
	require.NoError(t, err)

	release()
	release() // повторный вызов не должен паниковать

	release2, err := l.Acquire(context.Background(), "acc-1")
	require.NoError(t, err)
	release2()
}
