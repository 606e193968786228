package repositories

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/models"
)

// AttendanceRepository owns the attendance record store. All writes are
// conditional: inserts collide on the deterministic record key, updates are
// compare-and-swap on the version column. Outbox rows ride in the same
// transaction as the record write.
type AttendanceRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *gorm.DB, readOnlyDB *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db, readOnlyDB: readOnlyDB}
}

// Get loads a record by its deterministic key from the write database, which
// sees the latest committed version.
func (r *AttendanceRepository) Get(ctx context.Context, recordID string) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := r.db.WithContext(ctx).Where("record_id = ?", recordID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load attendance record")
	}
	return &rec, nil
}

// GetWithAudits loads a record and its audit trail, oldest entry first.
func (r *AttendanceRepository) GetWithAudits(ctx context.Context, recordID string) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Audits", func(db *gorm.DB) *gorm.DB { return db.Order("version ASC") }).
		Where("record_id = ?", recordID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load attendance record with audits")
	}
	return &rec, nil
}

// Insert creates version 1 of a record together with its outbox event.
// A collision on the record key surfaces as domain.ErrDuplicateKey so the
// guard can fall back to the compare-and-swap path.
func (r *AttendanceRepository) Insert(ctx context.Context, rec *models.AttendanceRecord, evt *models.AttendanceEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateKey
			}
			return errors.Wrap(err, "failed to insert attendance record")
		}
		if evt != nil {
			if err := tx.Create(evt).Error; err != nil {
				return errors.Wrap(err, "failed to insert outbox event")
			}
		}
		return nil
	})
}

// UpdateCAS writes a new record state conditioned on the version the caller
// read. Zero rows affected means a concurrent writer won the race and the
// attempt must be retried from the read; that is domain.ErrVersionMismatch.
// The audit entry and outbox event commit atomically with the record.
func (r *AttendanceRepository) UpdateCAS(ctx context.Context, rec *models.AttendanceRecord, expectedVersion int, audit *models.AttendanceAudit, evt *models.AttendanceEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AttendanceRecord{}).
			Where("record_id = ? AND version = ?", rec.RecordID, expectedVersion).
			Updates(map[string]interface{}{
				"clock_in":           rec.ClockIn,
				"clock_out":          rec.ClockOut,
				"wage_status":        rec.WageStatus,
				"work_minutes":       rec.WorkMinutes,
				"base_pay":           rec.BasePay,
				"overtime_pay":       rec.OvertimePay,
				"night_pay":          rec.NightPay,
				"holiday_pay":        rec.HolidayPay,
				"weekly_holiday_pay": rec.WeeklyHolidayPay,
				"total_pay":          rec.TotalPay,
				"status":             rec.Status,
				"version":            rec.Version,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "failed to update attendance record")
		}
		if res.RowsAffected == 0 {
			return domain.ErrVersionMismatch
		}
		if audit != nil {
			if err := tx.Create(audit).Error; err != nil {
				return errors.Wrap(err, "failed to append audit entry")
			}
		}
		if evt != nil {
			if err := tx.Create(evt).Error; err != nil {
				return errors.Wrap(err, "failed to insert outbox event")
			}
		}
		return nil
	})
}

// ListPeriod returns an employee's records inside [from, to], oldest first,
// from the read-only database.
func (r *AttendanceRepository) ListPeriod(ctx context.Context, employeeID string, from, to time.Time) ([]models.AttendanceRecord, error) {
	var recs []models.AttendanceRecord
	err := r.readOnlyDB.WithContext(ctx).
		Where("employee_id = ? AND work_date >= ? AND work_date <= ?", employeeID, from, to).
		Order("work_date ASC").
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list attendance records")
	}
	return recs, nil
}

// FinalizePeriod marks every closed record of the employee inside the period
// as finalized and returns how many rows changed. Finalized records refuse
// further writes at the ledger level.
func (r *AttendanceRepository) FinalizePeriod(ctx context.Context, employeeID string, from, to time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AttendanceRecord{}).
		Where("employee_id = ? AND work_date >= ? AND work_date <= ? AND status = ?",
			employeeID, from, to, models.RecordClosed).
		Updates(map[string]interface{}{
			"status":  models.RecordFinalized,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "failed to finalize period")
	}
	return res.RowsAffected, nil
}

// EventRepository provides the outbox operations the worker needs.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append writes an outbox row outside a record transaction. Used for events
// with no backing attendance write, e.g. contract.signed.
func (r *EventRepository) Append(ctx context.Context, evt *models.AttendanceEvent) error {
	if err := r.db.WithContext(ctx).Create(evt).Error; err != nil {
		return errors.Wrap(err, "failed to append outbox event")
	}
	return nil
}

// GetUnprocessed returns unprocessed outbox rows, oldest first.
func (r *EventRepository) GetUnprocessed(ctx context.Context, limit int) ([]models.AttendanceEvent, error) {
	var evts []models.AttendanceEvent
	err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("occurred_at ASC").
		Limit(limit).
		Find(&evts).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get unprocessed events")
	}
	return evts, nil
}

// MarkProcessed flags an outbox row as fully delivered.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.AttendanceEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{"processed": true, "error": nil}).
		Error
	return errors.Wrap(err, "failed to mark event as processed")
}

// MarkError records the delivery error on an outbox row, leaving it
// unprocessed for the next reconciliation pass.
func (r *EventRepository) MarkError(ctx context.Context, eventID string, deliveryErr error) error {
	msg := deliveryErr.Error()
	err := r.db.WithContext(ctx).
		Model(&models.AttendanceEvent{}).
		Where("event_id = ?", eventID).
		Update("error", &msg).
		Error
	return errors.Wrap(err, "failed to record event error")
}

// ContractRepository reads employment contracts. This service never writes
// contract rows; the employment system owns them.
type ContractRepository struct {
	readOnlyDB *gorm.DB
}

// NewContractRepository creates a new contract repository.
func NewContractRepository(readOnlyDB *gorm.DB) *ContractRepository {
	return &ContractRepository{readOnlyDB: readOnlyDB}
}

// ActiveTerms returns the contract in effect for the employee on a date.
func (r *ContractRepository) ActiveTerms(ctx context.Context, employeeID string, date time.Time) (*models.ContractTerms, error) {
	var terms models.ContractTerms
	err := r.readOnlyDB.WithContext(ctx).
		Where("employee_id = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)",
			employeeID, date, date).
		Order("effective_from DESC").
		First(&terms).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Errorf("no active contract for employee %s on %s", employeeID, date.Format("2006-01-02"))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load contract terms")
	}
	return &terms, nil
}

// GetByID loads one contract row.
func (r *ContractRepository) GetByID(ctx context.Context, contractID string) (*models.ContractTerms, error) {
	var terms models.ContractTerms
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", contractID).First(&terms).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load contract by id")
	}
	return &terms, nil
}

// HolidayRepository reads the designated-holiday calendar.
type HolidayRepository struct {
	readOnlyDB *gorm.DB
}

// NewHolidayRepository creates a new holiday repository.
func NewHolidayRepository(readOnlyDB *gorm.DB) *HolidayRepository {
	return &HolidayRepository{readOnlyDB: readOnlyDB}
}

// Between returns holiday rows with dates inside [from, to].
func (r *HolidayRepository) Between(ctx context.Context, from, to time.Time) ([]models.Holiday, error) {
	var days []models.Holiday
	err := r.readOnlyDB.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to).
		Find(&days).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to load holiday calendar")
	}
	return days, nil
}

// ScheduleRepository owns the base schedule slots generated by the
// contract-signed chain.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// CreateBatch inserts the generated slots in one transaction.
func (r *ScheduleRepository) CreateBatch(ctx context.Context, slots []models.WorkSchedule) error {
	if len(slots) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&slots).Error; err != nil {
		return errors.Wrap(err, "failed to create schedule slots")
	}
	return nil
}

// DeleteByContract removes every slot a contract's generation step created.
// This is the compensating action for the generation step.
func (r *ScheduleRepository) DeleteByContract(ctx context.Context, contractID string) error {
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Delete(&models.WorkSchedule{}).
		Error
	return errors.Wrap(err, "failed to delete schedule slots")
}
