package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/eventbus"
	"example.com/backstage/services/attendance/internal/models"
)

type MockRecordSource struct {
	mock.Mock
}

func (m *MockRecordSource) Get(ctx context.Context, recordID string) (*models.AttendanceRecord, error) {
	args := m.Called(ctx, recordID)
	return args.Get(0).(*models.AttendanceRecord), args.Error(1)
}

type MockContractGetter struct {
	mock.Mock
}

func (m *MockContractGetter) GetByID(ctx context.Context, contractID string) (*models.ContractTerms, error) {
	args := m.Called(ctx, contractID)
	return args.Get(0).(*models.ContractTerms), args.Error(1)
}

type MockScheduleGen struct {
	mock.Mock
}

func (m *MockScheduleGen) GenerateBase(ctx context.Context, contract *models.ContractTerms, startDate time.Time) error {
	args := m.Called(ctx, contract, startDate)
	return args.Error(0)
}

func (m *MockScheduleGen) Remove(ctx context.Context, contractID string) error {
	args := m.Called(ctx, contractID)
	return args.Error(0)
}

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexRecord(ctx context.Context, rec *models.AttendanceRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockIndexer) DeleteRecord(ctx context.Context, recordID string) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

type MockNotifySink struct {
	mock.Mock
}

func (m *MockNotifySink) Dispatch(ctx context.Context, evt domain.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func clockedOutEvent() domain.Event {
	return domain.Event{
		ID:          "evt-1",
		Kind:        domain.AttendanceClockedOut,
		AggregateID: "emp-1:2026-03-02",
		Version:     2,
		OccurredAt:  time.Now().UTC(),
		Data: domain.ClockedOutPayload{
			EmployeeID: "emp-1",
			Date:       "2026-03-02",
		},
	}
}

func TestAttendanceChainIndexesAndNotifies(t *testing.T) {
	records := new(MockRecordSource)
	indexer := new(MockIndexer)
	notifier := new(MockNotifySink)

	rec := &models.AttendanceRecord{RecordID: "emp-1:2026-03-02"}
	records.On("Get", mock.Anything, "emp-1:2026-03-02").Return(rec, nil)
	indexer.On("IndexRecord", mock.Anything, rec).Return(nil)
	notifier.On("Dispatch", mock.Anything, mock.AnythingOfType("domain.Event")).Return(nil)

	c := NewCoordinator(New(nil), records, nil, nil, notifier, indexer)

	bus := eventbus.New(8)
	require.NoError(t, c.Register(bus))
	bus.Seal()

	require.NoError(t, bus.Publish(context.Background(), clockedOutEvent()))

	records.AssertExpectations(t)
	indexer.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestAttendanceChainCompensatesIndexOnNotifyFailure(t *testing.T) {
	records := new(MockRecordSource)
	indexer := new(MockIndexer)
	notifier := new(MockNotifySink)

	rec := &models.AttendanceRecord{RecordID: "emp-1:2026-03-02"}
	records.On("Get", mock.Anything, "emp-1:2026-03-02").Return(rec, nil)
	indexer.On("IndexRecord", mock.Anything, rec).Return(nil)
	notifier.On("Dispatch", mock.Anything, mock.AnythingOfType("domain.Event")).Return(errors.New("queue unavailable"))
	indexer.On("DeleteRecord", mock.Anything, "emp-1:2026-03-02").Return(nil)

	c := NewCoordinator(New(nil), records, nil, nil, notifier, indexer)

	bus := eventbus.New(8)
	require.NoError(t, c.Register(bus))
	bus.Seal()

	// The chain rolls back, which surfaces as a subscriber failure. The
	// triggering write is committed and not part of the rollback.
	err := bus.Publish(context.Background(), clockedOutEvent())
	require.Error(t, err)

	indexer.AssertCalled(t, "DeleteRecord", mock.Anything, "emp-1:2026-03-02")
}

func TestAttendanceChainWithoutIndexer(t *testing.T) {
	records := new(MockRecordSource)
	notifier := new(MockNotifySink)
	notifier.On("Dispatch", mock.Anything, mock.AnythingOfType("domain.Event")).Return(nil)

	c := NewCoordinator(New(nil), records, nil, nil, notifier, nil)

	bus := eventbus.New(8)
	require.NoError(t, c.Register(bus))
	bus.Seal()

	require.NoError(t, bus.Publish(context.Background(), clockedOutEvent()))
	notifier.AssertExpectations(t)
}

func TestContractChainGeneratesSchedule(t *testing.T) {
	contracts := new(MockContractGetter)
	schedules := new(MockScheduleGen)
	notifier := new(MockNotifySink)

	contract := &models.ContractTerms{ID: "contract-1", EmployeeID: "emp-1"}
	startDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	contracts.On("GetByID", mock.Anything, "contract-1").Return(contract, nil)
	schedules.On("GenerateBase", mock.Anything, contract, startDate).Return(nil)
	notifier.On("Dispatch", mock.Anything, mock.AnythingOfType("domain.Event")).Return(nil)

	c := NewCoordinator(New(nil), nil, contracts, schedules, notifier, nil)

	bus := eventbus.New(8)
	require.NoError(t, c.Register(bus))
	bus.Seal()

	evt := domain.Event{
		ID:          "evt-2",
		Kind:        domain.ContractSigned,
		AggregateID: "contract-1",
		OccurredAt:  time.Now().UTC(),
		Data: domain.ContractSignedPayload{
			ContractID: "contract-1",
			EmployeeID: "emp-1",
			StartDate:  startDate,
		},
	}
	require.NoError(t, bus.Publish(context.Background(), evt))

	contracts.AssertExpectations(t)
	schedules.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestContractChainCompensatesScheduleOnNotifyFailure(t *testing.T) {
	contracts := new(MockContractGetter)
	schedules := new(MockScheduleGen)
	notifier := new(MockNotifySink)

	contract := &models.ContractTerms{ID: "contract-1", EmployeeID: "emp-1"}
	startDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	contracts.On("GetByID", mock.Anything, "contract-1").Return(contract, nil)
	schedules.On("GenerateBase", mock.Anything, contract, startDate).Return(nil)
	notifier.On("Dispatch", mock.Anything, mock.AnythingOfType("domain.Event")).Return(errors.New("queue unavailable"))
	schedules.On("Remove", mock.Anything, "contract-1").Return(nil)

	c := NewCoordinator(New(nil), nil, contracts, schedules, notifier, nil)

	bus := eventbus.New(8)
	require.NoError(t, c.Register(bus))
	bus.Seal()

	evt := domain.Event{
		ID:          "evt-3",
		Kind:        domain.ContractSigned,
		AggregateID: "contract-1",
		OccurredAt:  time.Now().UTC(),
		Data: domain.ContractSignedPayload{
			ContractID: "contract-1",
			EmployeeID: "emp-1",
			StartDate:  startDate,
		},
	}
	require.Error(t, bus.Publish(context.Background(), evt))

	schedules.AssertCalled(t, "Remove", mock.Anything, "contract-1")
}
