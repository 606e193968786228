package payroll

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/models"
)

type fakeRecords struct {
	records []models.AttendanceRecord
	calls   int
}

func (f *fakeRecords) ListPeriod(ctx context.Context, employeeID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	f.calls++
	return f.records, nil
}

type memoryCache struct {
	store   map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, value interface{}) error {
	data, ok := c.store[key]
	if !ok {
		return errors.New("key not found in cache")
	}
	return json.Unmarshal(data, value)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = data
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	delete(c.store, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func closedRecord(id string, minutes int, base, overtime, night int64) models.AttendanceRecord {
	return models.AttendanceRecord{
		RecordID:    id,
		EmployeeID:  "emp-1",
		Status:      models.RecordClosed,
		WorkMinutes: minutes,
		BasePay:     base,
		OvertimePay: overtime,
		NightPay:    night,
		TotalPay:    base + overtime + night,
	}
}

func TestSummarizeSumsStoredComponents(t *testing.T) {
	records := &fakeRecords{records: []models.AttendanceRecord{
		closedRecord("emp-1:2026-03-02", 480, 80000, 0, 0),
		closedRecord("emp-1:2026-03-03", 540, 90000, 5000, 0),
	}}
	records.records[1].Status = models.RecordFinalized

	agg := NewAggregator(records, nil, 0)

	summary, err := agg.Summarize(context.Background(), "emp-1", "2026-03")
	require.NoError(t, err)

	require.Equal(t, 2, summary.Records)
	require.Equal(t, 1020, summary.WorkMinutes)
	require.Equal(t, int64(170000), summary.BasePay)
	require.Equal(t, int64(5000), summary.OvertimePay)
	require.Equal(t, int64(175000), summary.TotalPay)
}

func TestSummarizeSkipsOpenShifts(t *testing.T) {
	open := closedRecord("emp-1:2026-03-04", 120, 20000, 0, 0)
	open.Status = models.RecordOpen

	records := &fakeRecords{records: []models.AttendanceRecord{
		closedRecord("emp-1:2026-03-02", 480, 80000, 0, 0),
		open,
	}}

	agg := NewAggregator(records, nil, 0)

	summary, err := agg.Summarize(context.Background(), "emp-1", "2026-03")
	require.NoError(t, err)

	// Open shifts carry provisional wage fields and never enter a summary.
	require.Equal(t, 1, summary.Records)
	require.Equal(t, int64(80000), summary.TotalPay)
}

func TestSummarizeInvalidPeriod(t *testing.T) {
	agg := NewAggregator(&fakeRecords{}, nil, 0)

	_, err := agg.Summarize(context.Background(), "emp-1", "March 2026")
	require.Error(t, err)
	require.True(t, domain.IsValidation(err))
}

func TestSummarizeUsesCache(t *testing.T) {
	records := &fakeRecords{records: []models.AttendanceRecord{
		closedRecord("emp-1:2026-03-02", 480, 80000, 0, 0),
	}}
	cache := newMemoryCache()

	agg := NewAggregator(records, cache, 10*time.Minute)

	first, err := agg.Summarize(context.Background(), "emp-1", "2026-03")
	require.NoError(t, err)

	second, err := agg.Summarize(context.Background(), "emp-1", "2026-03")
	require.NoError(t, err)
	require.Equal(t, first, second)

	// The second call is served from cache.
	require.Equal(t, 1, records.calls)
}

func TestInvalidateOnDropsChangedPeriod(t *testing.T) {
	cache := newMemoryCache()
	agg := NewAggregator(&fakeRecords{}, cache, 10*time.Minute)

	err := agg.InvalidateOn(context.Background(), domain.Event{
		Kind:        domain.AttendanceClockedOut,
		AggregateID: "emp-1:2026-03-02",
		Data: domain.ClockedOutPayload{
			EmployeeID: "emp-1",
			Date:       "2026-03-02",
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"salary-summary:emp-1:2026-03"}, cache.deleted)
}

func TestInvalidateOnIgnoresUnrelatedEvents(t *testing.T) {
	cache := newMemoryCache()
	agg := NewAggregator(&fakeRecords{}, cache, 10*time.Minute)

	err := agg.InvalidateOn(context.Background(), domain.Event{
		Kind: domain.PeriodFinalized,
		Data: domain.PeriodFinalizedPayload{EmployeeID: "emp-1", Period: "2026-03"},
	})
	require.NoError(t, err)
	require.Empty(t, cache.deleted)
}
