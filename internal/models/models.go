package models

import (
	"time"

	"gorm.io/gorm"
)

// Attendance record statuses.
const (
	RecordOpen      = "OPEN"
	RecordClosed    = "CLOSED"
	RecordFinalized = "FINALIZED"
)

// AttendanceRecord is the authoritative attendance row. The primary key is
// the deterministic record key employeeID:YYYY-MM-DD, so duplicate writes
// for the same employee and date collide instead of accumulating. Wage
// columns are only ever written from calculator output.
type AttendanceRecord struct {
	RecordID   string    `gorm:"primaryKey" json:"record_id"`
	EmployeeID string    `gorm:"index;not null" json:"employee_id"`
	CompanyID  string    `gorm:"index" json:"company_id"`
	WorkDate   time.Time `gorm:"type:date;index;not null" json:"work_date"`

	ClockIn  time.Time  `json:"clock_in"`
	ClockOut *time.Time `json:"clock_out"`

	WageStatus       string `gorm:"not null" json:"wage_status"`
	WorkMinutes      int    `json:"work_minutes"`
	BasePay          int64  `json:"base_pay"`
	OvertimePay      int64  `json:"overtime_pay"`
	NightPay         int64  `json:"night_pay"`
	HolidayPay       int64  `json:"holiday_pay"`
	WeeklyHolidayPay int64  `json:"weekly_holiday_pay"`
	TotalPay         int64  `json:"total_pay"`

	Status  string `gorm:"not null;index" json:"status"`
	Version int    `gorm:"not null" json:"version"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Audits []AttendanceAudit `gorm:"foreignKey:RecordID;references:RecordID" json:"audits,omitempty"`
}

// AttendanceAudit is one entry of a record's append-only audit trail.
type AttendanceAudit struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	RecordID    string     `gorm:"index;not null" json:"record_id"`
	Version     int        `gorm:"not null" json:"version"`
	ChangedBy   string     `gorm:"not null" json:"changed_by"`
	Reason      string     `gorm:"not null" json:"reason"`
	OldClockIn  *time.Time `json:"old_clock_in"`
	OldClockOut *time.Time `json:"old_clock_out"`
	NewClockIn  *time.Time `json:"new_clock_in"`
	NewClockOut *time.Time `json:"new_clock_out"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// AttendanceEvent is the outbox row for a domain event. Rows are written in
// the same transaction as the record write and marked processed once every
// subscriber has seen the event; the worker re-dispatches the rest.
type AttendanceEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"uniqueIndex" json:"event_id"`
	AggregateID string    `gorm:"index" json:"aggregate_id"`
	EventType   string    `gorm:"not null" json:"event_type"`
	Data        []byte    `json:"data"`
	Version     int       `json:"version"`
	OccurredAt  time.Time `json:"occurred_at"`
	Processed   bool      `gorm:"index" json:"processed"`
	Error       *string   `json:"error"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ContractTerms is the employment contract as this service reads it. The
// employment system owns these rows; changes apply only to records created
// afterwards, never retroactively.
type ContractTerms struct {
	ID          string `gorm:"primaryKey" json:"id"`
	EmployeeID  string `gorm:"index;not null" json:"employee_id"`
	CompanyID   string `gorm:"index" json:"company_id"`
	WageType    string `gorm:"not null" json:"wage_type"`
	HourlyRate  int64  `json:"hourly_rate"`
	MonthlyRate int64  `json:"monthly_rate"`

	OvertimeEnabled bool `json:"overtime_enabled"`
	NightEnabled    bool `json:"night_enabled"`
	HolidayEnabled  bool `json:"holiday_enabled"`

	EffectiveFrom time.Time  `gorm:"type:date;not null" json:"effective_from"`
	EffectiveTo   *time.Time `gorm:"type:date" json:"effective_to"`
	SignedAt      *time.Time `json:"signed_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Holiday is a designated-holiday calendar row, read-only to this service.
type Holiday struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	Date   time.Time `gorm:"type:date;uniqueIndex;not null" json:"date"`
	Name   string    `json:"name"`
	Weekly bool      `json:"weekly"`
}

// WorkSchedule is a base schedule slot generated by the contract-signed
// chain. The generation step owns these rows and its compensation removes
// them again.
type WorkSchedule struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	EmployeeID string    `gorm:"index;not null" json:"employee_id"`
	CompanyID  string    `gorm:"index" json:"company_id"`
	ContractID string    `gorm:"index;not null" json:"contract_id"`
	WorkDate   time.Time `gorm:"type:date;not null" json:"work_date"`
	StartMin   int       `json:"start_min"`
	EndMin     int       `json:"end_min"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SetupModels runs the schema migrations for the write database.
func SetupModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&AttendanceRecord{},
		&AttendanceAudit{},
		&AttendanceEvent{},
		&ContractTerms{},
		&Holiday{},
		&WorkSchedule{},
	)
}
