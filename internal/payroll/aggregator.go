// Package payroll is the read-only view over already-derived wage fields.
// Summaries are regenerated by summing stored records, never patched, and
// this package has no write path into attendance data.
package payroll

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/cache"
	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/ledger"
	"example.com/backstage/services/attendance/internal/models"
)

// RecordSource is the read surface the aggregator scans.
type RecordSource interface {
	ListPeriod(ctx context.Context, employeeID string, from, to time.Time) ([]models.AttendanceRecord, error)
}

// SummaryCache is the optional cache in front of Summarize.
type SummaryCache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Summary is the aggregate wage view for one employee and period. It is
// derived and recomputable at any time; a discrepancy is resolved by
// correcting the underlying record and re-summarizing.
type Summary struct {
	EmployeeID       string `json:"employee_id"`
	Period           string `json:"period"`
	Records          int    `json:"records"`
	WorkMinutes      int    `json:"work_minutes"`
	BasePay          int64  `json:"base_pay"`
	OvertimePay      int64  `json:"overtime_pay"`
	NightPay         int64  `json:"night_pay"`
	HolidayPay       int64  `json:"holiday_pay"`
	WeeklyHolidayPay int64  `json:"weekly_holiday_pay"`
	TotalPay         int64  `json:"total_pay"`
}

// Aggregator sums stored wage components. It performs no recomputation of
// wages and never writes back.
type Aggregator struct {
	records  RecordSource
	cache    SummaryCache
	cacheTTL time.Duration
}

// NewAggregator creates an aggregator. cache may be nil.
func NewAggregator(records RecordSource, summaryCache SummaryCache, cacheTTL time.Duration) *Aggregator {
	return &Aggregator{records: records, cache: summaryCache, cacheTTL: cacheTTL}
}

// Summarize sums the wage components of the employee's closed and finalized
// records inside the period. Open shifts carry provisional wage fields and
// are excluded.
func (a *Aggregator) Summarize(ctx context.Context, employeeID, period string) (*Summary, error) {
	key := cache.SummaryKey(employeeID, period)
	if a.cache != nil {
		var cached Summary
		if err := a.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	from, to, err := ledger.PeriodRange(period)
	if err != nil {
		return nil, err
	}

	recs, err := a.records.ListPeriod(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}

	summary := &Summary{EmployeeID: employeeID, Period: period}
	for _, rec := range recs {
		if rec.Status == models.RecordOpen {
			continue
		}
		summary.Records++
		summary.WorkMinutes += rec.WorkMinutes
		summary.BasePay += rec.BasePay
		summary.OvertimePay += rec.OvertimePay
		summary.NightPay += rec.NightPay
		summary.HolidayPay += rec.HolidayPay
		summary.WeeklyHolidayPay += rec.WeeklyHolidayPay
		summary.TotalPay += rec.TotalPay
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, summary, a.cacheTTL); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Summary not cached")
		}
	}
	return summary, nil
}

// InvalidateOn is the bus subscriber dropping cached summaries whose
// underlying records changed.
func (a *Aggregator) InvalidateOn(ctx context.Context, evt domain.Event) error {
	if a.cache == nil {
		return nil
	}

	var employeeID, date string
	switch p := evt.Data.(type) {
	case domain.ClockedInPayload:
		employeeID, date = p.EmployeeID, p.Date
	case domain.ClockedOutPayload:
		employeeID, date = p.EmployeeID, p.Date
	case domain.EditedPayload:
		employeeID, date = p.EmployeeID, p.Date
	default:
		return nil
	}
	if len(date) < 7 {
		return nil
	}

	return a.cache.Delete(ctx, cache.SummaryKey(employeeID, date[:7]))
}
