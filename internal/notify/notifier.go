// Package notify dispatches employee notifications. It is only ever invoked
// from event subscribers, never directly by the ledger.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/messaging"
)

// Message is the notification payload handed to the dispatch queue.
type Message struct {
	Kind        string      `json:"kind"`
	AggregateID string      `json:"aggregate_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Data        interface{} `json:"data"`
}

// Notifier forwards domain events to the notification queue.
type Notifier struct {
	client  messaging.ServiceBusClient
	enabled bool
}

// New creates a notifier. A nil client disables dispatch, which keeps local
// runs working without a Service Bus namespace.
func New(client messaging.ServiceBusClient) *Notifier {
	return &Notifier{client: client, enabled: client != nil}
}

// Dispatch sends the notification for one event.
func (n *Notifier) Dispatch(ctx context.Context, evt domain.Event) error {
	if !n.enabled {
		log.Debug().Str("event_kind", evt.Kind).Msg("Notification dispatch disabled, skipping")
		return nil
	}

	msg := Message{
		Kind:        evt.Kind,
		AggregateID: evt.AggregateID,
		OccurredAt:  evt.OccurredAt,
		Data:        evt.Data,
	}
	if err := n.client.SendMessage(ctx, msg); err != nil {
		return err
	}

	log.Info().
		Str("event_kind", evt.Kind).
		Str("aggregate_id", evt.AggregateID).
		Msg("Notification dispatched")
	return nil
}
