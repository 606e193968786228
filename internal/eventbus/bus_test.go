package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/attendance/internal/domain"
)

func testEvent(kind, aggregateID string, version int) domain.Event {
	return domain.Event{
		ID:          kind + "-" + aggregateID,
		Kind:        kind,
		AggregateID: aggregateID,
		Version:     version,
		OccurredAt:  time.Now().UTC(),
	}
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := New(8)

	var mu sync.Mutex
	var order []string

	for _, name := range []string{"first", "second", "third"} {
		name := name
		_, err := bus.Subscribe(domain.AttendanceClockedIn, name, func(ctx context.Context, evt domain.Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}
	bus.Seal()

	err := bus.Publish(context.Background(), testEvent(domain.AttendanceClockedIn, "emp-1:2026-03-02", 1))
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPublishSerializesPerAggregate(t *testing.T) {
	bus := New(8)

	var mu sync.Mutex
	seen := make(map[string][]int)

	_, err := bus.Subscribe(domain.AttendanceClockedOut, "recorder", func(ctx context.Context, evt domain.Event) error {
		mu.Lock()
		seen[evt.AggregateID] = append(seen[evt.AggregateID], evt.Version)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	bus.Seal()

	// Sequential publishes for one aggregate arrive in publish order.
	for v := 1; v <= 5; v++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent(domain.AttendanceClockedOut, "emp-1:2026-03-02", v)))
	}

	// Concurrent publishes for distinct aggregates all arrive.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := []string{"a", "b", "c", "d"}[i]
			_ = bus.Publish(context.Background(), testEvent(domain.AttendanceClockedOut, id, 1))
		}(i)
	}
	wg.Wait()

	require.Equal(t, []int{1, 2, 3, 4, 5}, seen["emp-1:2026-03-02"])
	for _, id := range []string{"a", "b", "c", "d"} {
		require.Len(t, seen[id], 1)
	}
}

func TestSubscribeAfterSealFails(t *testing.T) {
	bus := New(8)
	bus.Seal()

	_, err := bus.Subscribe(domain.AttendanceClockedIn, "late", func(ctx context.Context, evt domain.Event) error {
		return nil
	})
	require.Error(t, err)
}

func TestCancelledSubscriptionSkipped(t *testing.T) {
	bus := New(8)

	calls := 0
	sub, err := bus.Subscribe(domain.AttendanceClockedIn, "cancellable", func(ctx context.Context, evt domain.Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "cancellable", sub.Name())
	bus.Seal()

	require.NoError(t, bus.Publish(context.Background(), testEvent(domain.AttendanceClockedIn, "emp-1:2026-03-02", 1)))
	sub.Cancel()
	require.NoError(t, bus.Publish(context.Background(), testEvent(domain.AttendanceClockedIn, "emp-1:2026-03-02", 2)))

	require.Equal(t, 1, calls)
}

func TestFailingSubscriberReported(t *testing.T) {
	bus := New(8)

	_, err := bus.Subscribe(domain.AttendanceClockedIn, "broken", func(ctx context.Context, evt domain.Event) error {
		return errors.New("index unavailable")
	})
	require.NoError(t, err)

	healthyCalls := 0
	_, err = bus.Subscribe(domain.AttendanceClockedIn, "healthy", func(ctx context.Context, evt domain.Event) error {
		healthyCalls++
		return nil
	})
	require.NoError(t, err)
	bus.Seal()

	err = bus.Publish(context.Background(), testEvent(domain.AttendanceClockedIn, "emp-1:2026-03-02", 1))
	require.Error(t, err)

	// One subscriber failing never blocks the others.
	require.Equal(t, 1, healthyCalls)

	select {
	case f := <-bus.Failures():
		require.Equal(t, "broken", f.Subscriber)
		require.Equal(t, domain.AttendanceClockedIn, f.Event.Kind)
	default:
		t.Fatal("expected a delivery failure report")
	}
}
