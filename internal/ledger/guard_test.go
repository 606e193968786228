package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/attendance/internal/domain"
)

func TestGuardSucceedsFirstAttempt(t *testing.T) {
	g := Guard{MaxAttempts: 5, Backoff: time.Millisecond}

	attempts := 0
	err := g.Do(context.Background(), "emp-1:2026-03-02", func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

func TestGuardRetriesLostRace(t *testing.T) {
	g := Guard{MaxAttempts: 5, Backoff: time.Millisecond}

	attempts := 0
	err := g.Do(context.Background(), "emp-1:2026-03-02", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return domain.ErrVersionMismatch
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestGuardDoesNotRetryLogicalErrors(t *testing.T) {
	g := Guard{MaxAttempts: 5, Backoff: time.Millisecond}

	attempts := 0
	err := g.Do(context.Background(), "emp-1:2026-03-02", func(ctx context.Context) error {
		attempts++
		return domain.ErrAlreadyClockedOut
	})

	require.ErrorIs(t, err, domain.ErrAlreadyClockedOut)
	require.Equal(t, 1, attempts)
}

func TestGuardExhaustionSurfacesWriteConflict(t *testing.T) {
	g := Guard{MaxAttempts: 3, Backoff: time.Millisecond}

	attempts := 0
	err := g.Do(context.Background(), "emp-1:2026-03-02", func(ctx context.Context) error {
		attempts++
		return domain.ErrVersionMismatch
	})

	require.ErrorIs(t, err, domain.ErrWriteConflict)
	require.Equal(t, 3, attempts)
}

func TestGuardCancelledContext(t *testing.T) {
	g := Guard{MaxAttempts: 5, Backoff: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Do(ctx, "emp-1:2026-03-02", func(ctx context.Context) error {
		return domain.ErrVersionMismatch
	})

	require.ErrorIs(t, err, domain.ErrWriteConflict)
}

// TestGuardConcurrentWriters drives several writers through a conditional
// write against the same key. Every writer must land within the retry bound
// and every increment must survive; a lost update would show up as a final
// version below the writer count.
func TestGuardConcurrentWriters(t *testing.T) {
	const writers = 4

	var storeMu sync.Mutex
	version := 0

	g := Guard{MaxAttempts: 10, Backoff: time.Millisecond}

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.Do(context.Background(), "emp-1:2026-03-02", func(ctx context.Context) error {
				storeMu.Lock()
				read := version
				storeMu.Unlock()

				// Yield so writers interleave between read and write.
				time.Sleep(time.Millisecond)

				storeMu.Lock()
				defer storeMu.Unlock()
				if version != read {
					return errors.Wrap(domain.ErrVersionMismatch, "stale read")
				}
				version = read + 1
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "writer %d", i)
	}
	require.Equal(t, writers, version)
}
