// Package outbox moves committed events from the database onto the
// in-process bus. The happy path dispatches right after commit; the worker's
// reconciliation pass re-dispatches whatever a crash or subscriber failure
// left unprocessed.
package outbox

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/eventbus"
	"example.com/backstage/services/attendance/internal/models"
	"example.com/backstage/services/attendance/internal/repositories"
)

// Dispatcher publishes outbox events and settles their rows.
type Dispatcher struct {
	bus    *eventbus.Bus
	events *repositories.EventRepository
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(bus *eventbus.Bus, events *repositories.EventRepository) *Dispatcher {
	return &Dispatcher{bus: bus, events: events}
}

// DispatchCommitted publishes an event whose outbox row is already
// committed. Subscriber failures leave the row unprocessed for the
// reconciliation pass and are never surfaced to the write's caller.
func (d *Dispatcher) DispatchCommitted(ctx context.Context, evt domain.Event) {
	if err := d.bus.Publish(ctx, evt); err != nil {
		log.Warn().
			Err(err).
			Str("event_id", evt.ID).
			Str("event_kind", evt.Kind).
			Msg("Event delivery incomplete, reconciliation will retry")
		if markErr := d.events.MarkError(ctx, evt.ID, err); markErr != nil {
			log.Error().Err(markErr).Str("event_id", evt.ID).Msg("Failed to record delivery error")
		}
		return
	}
	if err := d.events.MarkProcessed(ctx, evt.ID); err != nil {
		log.Error().Err(err).Str("event_id", evt.ID).Msg("Failed to mark event as processed")
	}
}

// Emit persists a fresh event row and dispatches it. Used for events with no
// backing attendance write, e.g. contract.signed arriving at the boundary.
func (d *Dispatcher) Emit(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event payload")
	}
	row := &models.AttendanceEvent{
		EventID:     evt.ID,
		AggregateID: evt.AggregateID,
		EventType:   evt.Kind,
		Data:        data,
		Version:     evt.Version,
		OccurredAt:  evt.OccurredAt,
	}
	if err := d.events.Append(ctx, row); err != nil {
		return err
	}
	d.DispatchCommitted(ctx, evt)
	return nil
}

// Reconcile re-dispatches unprocessed outbox rows, oldest first. This is the
// fallback mechanism behind the worker's cron job; a row only clears once
// every subscriber accepts it.
func (d *Dispatcher) Reconcile(ctx context.Context, batchSize int) error {
	rows, err := d.events.GetUnprocessed(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	log.Info().Int("count", len(rows)).Msg("Re-dispatching unprocessed events")

	for _, row := range rows {
		evt, err := decode(row)
		if err != nil {
			log.Error().Err(err).Str("event_id", row.EventID).Msg("Failed to decode outbox event")
			if markErr := d.events.MarkError(ctx, row.EventID, err); markErr != nil {
				log.Error().Err(markErr).Str("event_id", row.EventID).Msg("Failed to record decode error")
			}
			continue
		}
		d.DispatchCommitted(ctx, evt)
	}
	return nil
}

// decode rebuilds the typed bus event from an outbox row.
func decode(row models.AttendanceEvent) (domain.Event, error) {
	evt := domain.Event{
		ID:          row.EventID,
		Kind:        row.EventType,
		AggregateID: row.AggregateID,
		Version:     row.Version,
		OccurredAt:  row.OccurredAt,
	}

	switch row.EventType {
	case domain.AttendanceClockedIn:
		var p domain.ClockedInPayload
		if err := json.Unmarshal(row.Data, &p); err != nil {
			return domain.Event{}, errors.Wrap(err, "failed to unmarshal clocked-in payload")
		}
		evt.Data = p
	case domain.AttendanceClockedOut:
		var p domain.ClockedOutPayload
		if err := json.Unmarshal(row.Data, &p); err != nil {
			return domain.Event{}, errors.Wrap(err, "failed to unmarshal clocked-out payload")
		}
		evt.Data = p
	case domain.AttendanceEdited:
		var p domain.EditedPayload
		if err := json.Unmarshal(row.Data, &p); err != nil {
			return domain.Event{}, errors.Wrap(err, "failed to unmarshal edited payload")
		}
		evt.Data = p
	case domain.ContractSigned:
		var p domain.ContractSignedPayload
		if err := json.Unmarshal(row.Data, &p); err != nil {
			return domain.Event{}, errors.Wrap(err, "failed to unmarshal contract-signed payload")
		}
		evt.Data = p
	case domain.PeriodFinalized:
		var p domain.PeriodFinalizedPayload
		if err := json.Unmarshal(row.Data, &p); err != nil {
			return domain.Event{}, errors.Wrap(err, "failed to unmarshal period-finalized payload")
		}
		evt.Data = p
	default:
		return domain.Event{}, errors.Errorf("unknown event type: %s", row.EventType)
	}

	return evt, nil
}
