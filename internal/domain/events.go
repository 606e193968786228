package domain

import (
	"fmt"
	"time"
)

// Event kinds published on the in-process bus. Ordering is guaranteed only
// within the same AggregateID stream.
const (
	AttendanceClockedIn  = "attendance.clocked_in"
	AttendanceClockedOut = "attendance.clocked_out"
	AttendanceEdited     = "attendance.edited"
	PeriodFinalized      = "payroll.period_finalized"
	ContractSigned       = "contract.signed"
)

// Event is an immutable domain event. Data is the typed payload for the kind;
// it is marshaled as-is into the outbox row.
type Event struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	AggregateID string      `json:"aggregate_id"`
	Version     int         `json:"version"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Data        interface{} `json:"data"`
}

// RecordKey derives the deterministic storage key for an attendance record.
// Two concurrent requests for the same employee and date always collide on
// this key instead of accumulating separate rows.
func RecordKey(employeeID string, date time.Time) string {
	return fmt.Sprintf("%s:%s", employeeID, date.Format("2006-01-02"))
}

// ClockedInPayload is the data carried by attendance.clocked_in events.
type ClockedInPayload struct {
	EmployeeID string    `json:"employee_id"`
	CompanyID  string    `json:"company_id"`
	Date       string    `json:"date"`
	ClockIn    time.Time `json:"clock_in"`
}

// ClockedOutPayload is the data carried by attendance.clocked_out events.
type ClockedOutPayload struct {
	EmployeeID  string    `json:"employee_id"`
	Date        string    `json:"date"`
	ClockOut    time.Time `json:"clock_out"`
	WorkMinutes int       `json:"work_minutes"`
	TotalPay    int64     `json:"total_pay"`
}

// EditedPayload is the data carried by attendance.edited events.
type EditedPayload struct {
	EmployeeID string    `json:"employee_id"`
	Date       string    `json:"date"`
	EditedBy   string    `json:"edited_by"`
	Reason     string    `json:"reason"`
	ClockIn    time.Time `json:"clock_in"`
	ClockOut   time.Time `json:"clock_out"`
}

// ContractSignedPayload is the data carried by contract.signed events.
type ContractSignedPayload struct {
	ContractID string    `json:"contract_id"`
	EmployeeID string    `json:"employee_id"`
	CompanyID  string    `json:"company_id"`
	SignedAt   time.Time `json:"signed_at"`
	StartDate  time.Time `json:"start_date"`
}

// PeriodFinalizedPayload is the data carried by payroll.period_finalized events.
type PeriodFinalizedPayload struct {
	EmployeeID string `json:"employee_id"`
	Period     string `json:"period"`
	Records    int    `json:"records"`
}
