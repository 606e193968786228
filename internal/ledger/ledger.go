// Package ledger owns the attendance record store. Its three operations are
// the sole write path into attendance records, each wrapped by the guard's
// retry discipline, and wage fields are only ever written from calculator
// output.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/clock"
	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/models"
	"example.com/backstage/services/attendance/internal/wage"
)

// RecordStore is the persistence surface the ledger writes through.
type RecordStore interface {
	Get(ctx context.Context, recordID string) (*models.AttendanceRecord, error)
	Insert(ctx context.Context, rec *models.AttendanceRecord, evt *models.AttendanceEvent) error
	UpdateCAS(ctx context.Context, rec *models.AttendanceRecord, expectedVersion int, audit *models.AttendanceAudit, evt *models.AttendanceEvent) error
	FinalizePeriod(ctx context.Context, employeeID string, from, to time.Time) (int64, error)
}

// ContractSource resolves the contract in effect for an employee on a date.
type ContractSource interface {
	ActiveTerms(ctx context.Context, employeeID string, date time.Time) (*models.ContractTerms, error)
}

// CalendarSource reads the designated-holiday calendar.
type CalendarSource interface {
	Between(ctx context.Context, from, to time.Time) ([]models.Holiday, error)
}

// EventDispatcher hands a committed outbox event to the in-process bus and
// settles the row. Dispatch failures stay inside the event pipeline; they
// are never surfaced as write failures.
type EventDispatcher interface {
	DispatchCommitted(ctx context.Context, evt domain.Event)
	Emit(ctx context.Context, evt domain.Event) error
}

// Config carries the ledger's tunable constants. Defaults come from the
// service configuration, not language defaults.
type Config struct {
	// Tolerance bounds how far a submitted instant may drift from the
	// trusted clock in either direction.
	Tolerance time.Duration
	// MinReasonLen is the minimum length of an edit reason.
	MinReasonLen int

	NightStartMin        int
	NightEndMin          int
	OvertimeThresholdMin int
	OvertimePremiumPct   int64
	NightPremiumPct      int64
	HolidayPremiumPct    int64
	WeeklyHolidayPct     int64
	MonthlyBaseHours     int64
}

// Ledger coordinates validation, wage derivation, the conditional write and
// event dispatch for attendance operations.
type Ledger struct {
	records    RecordStore
	contracts  ContractSource
	holidays   CalendarSource
	dispatcher EventDispatcher
	guard      Guard
	clock      clock.Clock
	cfg        Config
}

// New creates a ledger.
func New(records RecordStore, contracts ContractSource, holidays CalendarSource, dispatcher EventDispatcher, guard Guard, clk clock.Clock, cfg Config) *Ledger {
	return &Ledger{
		records:    records,
		contracts:  contracts,
		holidays:   holidays,
		dispatcher: dispatcher,
		guard:      guard,
		clock:      clk,
		cfg:        cfg,
	}
}

// ClockIn creates or overwrites the record slot for (employee, date) with a
// fresh clock-in and provisional wage fields. The deterministic key makes a
// double clock-in collide on the same slot instead of appending a new row.
func (l *Ledger) ClockIn(ctx context.Context, employeeID, companyID string, date, instant time.Time) (*models.AttendanceRecord, error) {
	if err := l.checkTolerance(instant); err != nil {
		return nil, err
	}

	recordID := domain.RecordKey(employeeID, date)
	pending := wage.Pending()

	var result *models.AttendanceRecord
	var committed *pendingEvent

	err := l.guard.Do(ctx, recordID, func(ctx context.Context) error {
		existing, err := l.records.Get(ctx, recordID)
		if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
			return err
		}

		payload := domain.ClockedInPayload{
			EmployeeID: employeeID,
			CompanyID:  companyID,
			Date:       date.Format("2006-01-02"),
			ClockIn:    instant,
		}

		if existing == nil {
			rec := &models.AttendanceRecord{
				RecordID:   recordID,
				EmployeeID: employeeID,
				CompanyID:  companyID,
				WorkDate:   date,
				ClockIn:    instant,
				WageStatus: pending.Status,
				Status:     models.RecordOpen,
				Version:    1,
			}
			evt, row, err := newOutboxEvent(domain.AttendanceClockedIn, recordID, rec.Version, payload)
			if err != nil {
				return err
			}
			if err := l.records.Insert(ctx, rec, row); err != nil {
				return err
			}
			result, committed = rec, &pendingEvent{evt: evt}
			return nil
		}

		if existing.Status != models.RecordOpen {
			return domain.ErrAlreadyClockedOut
		}

		// Same-day re-clock-in supersedes the previous one; the old
		// instant survives in the audit trail.
		rec := *existing
		rec.ClockIn = instant
		rec.WageStatus = pending.Status
		rec.Version = existing.Version + 1

		audit := newAudit(&rec, existing, employeeID, "clock-in superseded by a newer submission")
		evt, row, err := newOutboxEvent(domain.AttendanceClockedIn, recordID, rec.Version, payload)
		if err != nil {
			return err
		}
		if err := l.records.UpdateCAS(ctx, &rec, existing.Version, audit, row); err != nil {
			return err
		}
		result, committed = &rec, &pendingEvent{evt: evt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.dispatcher.DispatchCommitted(ctx, committed.evt)

	log.Info().
		Str("record_id", recordID).
		Str("employee_id", employeeID).
		Int("version", result.Version).
		Msg("Clock-in recorded")
	return result, nil
}

// ClockOut closes the open shift behind recordID, deriving and durably
// storing the wage breakdown atomically with the attendance write.
func (l *Ledger) ClockOut(ctx context.Context, recordID string, instant time.Time) (*models.AttendanceRecord, error) {
	if err := l.checkTolerance(instant); err != nil {
		return nil, err
	}

	var result *models.AttendanceRecord
	var committed *pendingEvent

	err := l.guard.Do(ctx, recordID, func(ctx context.Context) error {
		existing, err := l.records.Get(ctx, recordID)
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.ErrNoOpenShift
		}
		if err != nil {
			return err
		}
		if existing.Status != models.RecordOpen || existing.ClockOut != nil {
			return domain.ErrAlreadyClockedOut
		}
		if instant.Before(existing.ClockIn) {
			return domain.NewValidationError("instant", "clock-out precedes clock-in")
		}

		breakdown, err := l.derive(ctx, existing.EmployeeID, existing.WorkDate, existing.ClockIn, instant)
		if err != nil {
			return err
		}

		rec := *existing
		out := instant
		rec.ClockOut = &out
		rec.Status = models.RecordClosed
		rec.Version = existing.Version + 1
		applyBreakdown(&rec, breakdown)

		payload := domain.ClockedOutPayload{
			EmployeeID:  rec.EmployeeID,
			Date:        rec.WorkDate.Format("2006-01-02"),
			ClockOut:    instant,
			WorkMinutes: rec.WorkMinutes,
			TotalPay:    rec.TotalPay,
		}
		evt, row, err := newOutboxEvent(domain.AttendanceClockedOut, recordID, rec.Version, payload)
		if err != nil {
			return err
		}
		if err := l.records.UpdateCAS(ctx, &rec, existing.Version, nil, row); err != nil {
			return err
		}
		result, committed = &rec, &pendingEvent{evt: evt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.dispatcher.DispatchCommitted(ctx, committed.evt)

	log.Info().
		Str("record_id", recordID).
		Int("work_minutes", result.WorkMinutes).
		Int64("total_pay", result.TotalPay).
		Msg("Clock-out recorded")
	return result, nil
}

// RequestEdit replaces the record's interval, re-derives the wage breakdown
// against the new interval and appends an audit entry. History is never
// mutated in place: the version increments and the previous interval stays
// in the trail.
func (l *Ledger) RequestEdit(ctx context.Context, recordID string, newClockIn, newClockOut time.Time, editedBy, reason string) (*models.AttendanceRecord, error) {
	if len(reason) < l.cfg.MinReasonLen {
		return nil, domain.NewValidationError("reason", "reason is shorter than the required minimum")
	}
	if newClockOut.Before(newClockIn) {
		return nil, domain.NewValidationError("new_clock_out", "clock-out precedes clock-in")
	}

	var result *models.AttendanceRecord
	var committed *pendingEvent

	err := l.guard.Do(ctx, recordID, func(ctx context.Context) error {
		existing, err := l.records.Get(ctx, recordID)
		if err != nil {
			return err
		}
		if existing.Status == models.RecordFinalized {
			return domain.ErrPeriodFinalized
		}

		breakdown, err := l.derive(ctx, existing.EmployeeID, existing.WorkDate, newClockIn, newClockOut)
		if err != nil {
			return err
		}

		rec := *existing
		out := newClockOut
		rec.ClockIn = newClockIn
		rec.ClockOut = &out
		rec.Status = models.RecordClosed
		rec.Version = existing.Version + 1
		applyBreakdown(&rec, breakdown)

		audit := newAudit(&rec, existing, editedBy, reason)
		payload := domain.EditedPayload{
			EmployeeID: rec.EmployeeID,
			Date:       rec.WorkDate.Format("2006-01-02"),
			EditedBy:   editedBy,
			Reason:     reason,
			ClockIn:    newClockIn,
			ClockOut:   newClockOut,
		}
		evt, row, err := newOutboxEvent(domain.AttendanceEdited, recordID, rec.Version, payload)
		if err != nil {
			return err
		}
		if err := l.records.UpdateCAS(ctx, &rec, existing.Version, audit, row); err != nil {
			return err
		}
		result, committed = &rec, &pendingEvent{evt: evt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.dispatcher.DispatchCommitted(ctx, committed.evt)

	log.Info().
		Str("record_id", recordID).
		Str("edited_by", editedBy).
		Int("version", result.Version).
		Msg("Attendance edit recorded")
	return result, nil
}

// FinalizePeriod closes a payroll period for an employee. Finalized records
// refuse further edits.
func (l *Ledger) FinalizePeriod(ctx context.Context, employeeID, period string) (int64, error) {
	from, to, err := PeriodRange(period)
	if err != nil {
		return 0, err
	}

	n, err := l.records.FinalizePeriod(ctx, employeeID, from, to)
	if err != nil {
		return 0, err
	}

	evt, _, err := newOutboxEvent(domain.PeriodFinalized, employeeID, 0, domain.PeriodFinalizedPayload{
		EmployeeID: employeeID,
		Period:     period,
		Records:    int(n),
	})
	if err != nil {
		return n, err
	}
	if err := l.dispatcher.Emit(ctx, evt); err != nil {
		log.Warn().Err(err).Str("employee_id", employeeID).Msg("Period finalization event not fully delivered")
	}

	log.Info().Str("employee_id", employeeID).Str("period", period).Int64("records", n).Msg("Payroll period finalized")
	return n, nil
}

// derive resolves contract and calendar context and runs the calculator.
// Calculator errors propagate synchronously to the caller.
func (l *Ledger) derive(ctx context.Context, employeeID string, workDate time.Time, in, out time.Time) (wage.Breakdown, error) {
	contract, err := l.contracts.ActiveTerms(ctx, employeeID, workDate)
	if err != nil {
		return wage.Breakdown{}, err
	}

	// A shift crossing midnight needs the next day's calendar context too.
	days, err := l.holidays.Between(ctx, workDate, workDate.AddDate(0, 0, 1))
	if err != nil {
		return wage.Breakdown{}, err
	}

	cal := wage.Calendar{
		NightStartMin: l.cfg.NightStartMin,
		NightEndMin:   l.cfg.NightEndMin,
		Days:          make(map[string]wage.DayContext, len(days)),
	}
	for _, d := range days {
		cal.Days[d.Date.Format("2006-01-02")] = wage.DayContext{
			Holiday:       !d.Weekly,
			WeeklyHoliday: d.Weekly,
		}
	}

	terms := wage.Terms{
		WageType:             wage.WageType(contract.WageType),
		HourlyRate:           contract.HourlyRate,
		MonthlyRate:          contract.MonthlyRate,
		MonthlyBaseHours:     l.cfg.MonthlyBaseHours,
		OvertimeEnabled:      contract.OvertimeEnabled,
		NightEnabled:         contract.NightEnabled,
		HolidayEnabled:       contract.HolidayEnabled,
		OvertimeThresholdMin: l.cfg.OvertimeThresholdMin,
		OvertimePremiumPct:   l.cfg.OvertimePremiumPct,
		NightPremiumPct:      l.cfg.NightPremiumPct,
		HolidayPremiumPct:    l.cfg.HolidayPremiumPct,
		WeeklyHolidayPct:     l.cfg.WeeklyHolidayPct,
	}

	return wage.Calculate(in, out, terms, cal)
}

// checkTolerance validates a submitted instant against the trusted clock.
func (l *Ledger) checkTolerance(instant time.Time) error {
	drift := instant.Sub(l.clock.Now())
	if drift < 0 {
		drift = -drift
	}
	if drift > l.cfg.Tolerance {
		return domain.NewValidationError("instant", "submitted instant outside the allowed tolerance window")
	}
	return nil
}

// PeriodRange resolves a YYYY-MM payroll period to its first and last day.
func PeriodRange(period string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, time.Time{}, domain.NewValidationError("period", "period must be formatted YYYY-MM")
	}
	to := from.AddDate(0, 1, -1)
	return from, to, nil
}

type pendingEvent struct {
	evt domain.Event
}

// applyBreakdown is the only place wage columns are written.
func applyBreakdown(rec *models.AttendanceRecord, b wage.Breakdown) {
	rec.WageStatus = b.Status
	rec.WorkMinutes = b.WorkMinutes
	rec.BasePay = b.BasePay
	rec.OvertimePay = b.OvertimePay
	rec.NightPay = b.NightPay
	rec.HolidayPay = b.HolidayPay
	rec.WeeklyHolidayPay = b.WeeklyHolidayPay
	rec.TotalPay = b.TotalPay
}

func newAudit(next *models.AttendanceRecord, prev *models.AttendanceRecord, changedBy, reason string) *models.AttendanceAudit {
	return &models.AttendanceAudit{
		ID:          uuid.New().String(),
		RecordID:    next.RecordID,
		Version:     next.Version,
		ChangedBy:   changedBy,
		Reason:      reason,
		OldClockIn:  &prev.ClockIn,
		OldClockOut: prev.ClockOut,
		NewClockIn:  &next.ClockIn,
		NewClockOut: next.ClockOut,
	}
}

// newOutboxEvent builds the bus event and its outbox row with a shared id.
func newOutboxEvent(kind, aggregateID string, version int, payload interface{}) (domain.Event, *models.AttendanceEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, nil, errors.Wrap(err, "failed to marshal event payload")
	}

	evt := domain.Event{
		ID:          uuid.New().String(),
		Kind:        kind,
		AggregateID: aggregateID,
		Version:     version,
		OccurredAt:  time.Now().UTC(),
		Data:        payload,
	}
	row := &models.AttendanceEvent{
		EventID:     evt.ID,
		AggregateID: aggregateID,
		EventType:   kind,
		Data:        data,
		Version:     version,
		OccurredAt:  evt.OccurredAt,
	}
	return evt, row, nil
}
