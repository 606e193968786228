package orchestrator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/eventbus"
	"example.com/backstage/services/attendance/internal/models"
)

// RecordSource loads the record a chain works on.
type RecordSource interface {
	Get(ctx context.Context, recordID string) (*models.AttendanceRecord, error)
}

// ContractGetter loads the contract behind a contract.signed event.
type ContractGetter interface {
	GetByID(ctx context.Context, contractID string) (*models.ContractTerms, error)
}

// ScheduleGen is the base-schedule generation step and its compensation.
type ScheduleGen interface {
	GenerateBase(ctx context.Context, contract *models.ContractTerms, startDate time.Time) error
	Remove(ctx context.Context, contractID string) error
}

// Indexer projects records into the search index.
type Indexer interface {
	IndexRecord(ctx context.Context, rec *models.AttendanceRecord) error
	DeleteRecord(ctx context.Context, recordID string) error
}

// NotifySink dispatches the notification step.
type NotifySink interface {
	Dispatch(ctx context.Context, evt domain.Event) error
}

// Coordinator binds domain events to their side-effect chains. It is the
// only component that runs chains; subscribers are registered once during
// startup, before the bus registry is sealed.
type Coordinator struct {
	orch      *Orchestrator
	records   RecordSource
	contracts ContractGetter
	schedules ScheduleGen
	notifier  NotifySink
	indexer   Indexer
}

// NewCoordinator creates a coordinator. indexer may be nil when search is
// not configured; the indexing step is skipped then.
func NewCoordinator(orch *Orchestrator, records RecordSource, contracts ContractGetter, schedules ScheduleGen, notifier NotifySink, indexer Indexer) *Coordinator {
	return &Coordinator{
		orch:      orch,
		records:   records,
		contracts: contracts,
		schedules: schedules,
		notifier:  notifier,
		indexer:   indexer,
	}
}

// Register subscribes the chains. A handler error leaves the outbox row
// unprocessed, so the worker re-dispatches the whole chain later; the
// triggering write itself is already committed and stays intact.
func (c *Coordinator) Register(bus *eventbus.Bus) error {
	for _, kind := range []string{domain.AttendanceClockedOut, domain.AttendanceEdited} {
		if _, err := bus.Subscribe(kind, "attendance-chain", c.runAttendanceChain); err != nil {
			return err
		}
	}
	if _, err := bus.Subscribe(domain.ContractSigned, "contract-chain", c.runContractChain); err != nil {
		return err
	}
	return nil
}

// runAttendanceChain projects the closed record into search, then notifies.
func (c *Coordinator) runAttendanceChain(ctx context.Context, evt domain.Event) error {
	var steps []Step

	if c.indexer != nil {
		steps = append(steps, Step{
			Name: "index-record",
			Apply: func(ctx context.Context) error {
				rec, err := c.records.Get(ctx, evt.AggregateID)
				if err != nil {
					return err
				}
				return c.indexer.IndexRecord(ctx, rec)
			},
			Compensate: func(ctx context.Context) error {
				return c.indexer.DeleteRecord(ctx, evt.AggregateID)
			},
		})
	}

	steps = append(steps, Step{
		Name: "dispatch-notification",
		Apply: func(ctx context.Context) error {
			return c.notifier.Dispatch(ctx, evt)
		},
	})

	return c.orch.Run(ctx, &Chain{
		Name:        "attendance-side-effects",
		AggregateID: evt.AggregateID,
		Steps:       steps,
	})
}

// runContractChain generates the base schedule for a signed contract, then
// notifies. A failed notification compensates the generated slots.
func (c *Coordinator) runContractChain(ctx context.Context, evt domain.Event) error {
	payload, ok := evt.Data.(domain.ContractSignedPayload)
	if !ok {
		return errors.Errorf("unexpected payload type for %s", evt.Kind)
	}

	steps := []Step{
		{
			Name: "generate-base-schedule",
			Apply: func(ctx context.Context) error {
				contract, err := c.contracts.GetByID(ctx, payload.ContractID)
				if err != nil {
					return err
				}
				return c.schedules.GenerateBase(ctx, contract, payload.StartDate)
			},
			Compensate: func(ctx context.Context) error {
				return c.schedules.Remove(ctx, payload.ContractID)
			},
		},
		{
			Name: "dispatch-notification",
			Apply: func(ctx context.Context) error {
				return c.notifier.Dispatch(ctx, evt)
			},
		},
	}

	return c.orch.Run(ctx, &Chain{
		Name:        "contract-signed",
		AggregateID: payload.ContractID,
		Steps:       steps,
	})
}
