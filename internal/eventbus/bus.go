// Package eventbus is the in-process publish/subscribe mechanism that drives
// downstream side effects. Delivery is serialized per aggregate stream;
// events for different aggregates run concurrently.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/domain"
)

// Handler consumes one event. A non-nil error is reported on the failure
// channel and aggregated into the Publish result; it never reaches the
// triggering write's caller as a write failure.
type Handler func(ctx context.Context, evt domain.Event) error

// DeliveryFailure describes one subscriber failing on one event. It is
// surfaced for operator visibility and retried by the outbox worker, not by
// the bus itself.
type DeliveryFailure struct {
	Event      domain.Event
	Subscriber string
	Err        error
	At         time.Time
}

// Subscription is the handle returned by Subscribe. Cancel detaches the
// subscriber; events published afterwards are not delivered to it. Events
// already being delivered complete normally.
type Subscription struct {
	kind      string
	name      string
	handler   Handler
	cancelled atomic.Bool
}

// Name returns the subscriber name used in logs and failure reports.
func (s *Subscription) Name() string { return s.name }

// Cancel detaches the subscription from its stream.
func (s *Subscription) Cancel() { s.cancelled.Store(true) }

// Bus sequences domain events per aggregate. The subscriber registry is
// populated during process startup and sealed before the first publish;
// Subscribe after Seal is an error.
type Bus struct {
	mu     sync.RWMutex
	sealed bool
	subs   map[string][]*Subscription

	streamMu sync.Mutex
	streams  map[string]*stream

	failures chan DeliveryFailure
}

// stream serializes delivery for one aggregate id.
type stream struct {
	mu   sync.Mutex
	refs int
}

// New creates a bus with a buffered failure channel.
func New(failureBuffer int) *Bus {
	if failureBuffer <= 0 {
		failureBuffer = 64
	}
	return &Bus{
		subs:     make(map[string][]*Subscription),
		streams:  make(map[string]*stream),
		failures: make(chan DeliveryFailure, failureBuffer),
	}
}

// Subscribe registers a named handler for an event kind. Handlers for the
// same kind run in registration order.
func (b *Bus) Subscribe(kind, name string, h Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, errors.New("event bus registry is sealed")
	}

	sub := &Subscription{kind: kind, name: name, handler: h}
	b.subs[kind] = append(b.subs[kind], sub)
	return sub, nil
}

// Seal freezes the subscriber registry. Called once startup wiring is done.
func (b *Bus) Seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()
}

// Failures exposes the failure channel for operator reporting.
func (b *Bus) Failures() <-chan DeliveryFailure {
	return b.failures
}

// Publish delivers evt to every live subscriber of its kind, in registration
// order, holding the aggregate's stream so concurrent publishes for the same
// aggregate are seen in publish order. The returned error aggregates
// subscriber failures; the event itself is already committed by the caller.
func (b *Bus) Publish(ctx context.Context, evt domain.Event) error {
	st := b.acquireStream(evt.AggregateID)
	st.mu.Lock()
	defer func() {
		st.mu.Unlock()
		b.releaseStream(evt.AggregateID, st)
	}()

	b.mu.RLock()
	subs := b.subs[evt.Kind]
	b.mu.RUnlock()

	var failed []string
	for _, sub := range subs {
		if sub.cancelled.Load() {
			continue
		}
		if err := sub.handler(ctx, evt); err != nil {
			failed = append(failed, sub.name)
			b.report(DeliveryFailure{
				Event:      evt,
				Subscriber: sub.name,
				Err:        err,
				At:         time.Now().UTC(),
			})
		}
	}

	if len(failed) > 0 {
		return errors.Errorf("event %s delivery failed for subscribers %v", evt.Kind, failed)
	}
	return nil
}

func (b *Bus) report(f DeliveryFailure) {
	select {
	case b.failures <- f:
	default:
		log.Warn().
			Str("subscriber", f.Subscriber).
			Str("event_kind", f.Event.Kind).
			Msg("Failure channel full, dropping delivery failure report")
	}
	log.Error().
		Err(f.Err).
		Str("subscriber", f.Subscriber).
		Str("event_kind", f.Event.Kind).
		Str("aggregate_id", f.Event.AggregateID).
		Msg("Event delivery failed")
}

func (b *Bus) acquireStream(aggregateID string) *stream {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	st, ok := b.streams[aggregateID]
	if !ok {
		st = &stream{}
		b.streams[aggregateID] = st
	}
	st.refs++
	return st
}

func (b *Bus) releaseStream(aggregateID string, st *stream) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	st.refs--
	if st.refs == 0 {
		delete(b.streams, aggregateID)
	}
}
