package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/ledger"
	"example.com/backstage/services/attendance/internal/models"
	"example.com/backstage/services/attendance/internal/tracing"
)

var validate = validator.New()

// RecordReader loads a record together with its audit trail.
type RecordReader interface {
	GetWithAudits(ctx context.Context, recordID string) (*models.AttendanceRecord, error)
}

// AttendanceHandler handles attendance-related HTTP requests
type AttendanceHandler struct {
	ledger  *ledger.Ledger
	records RecordReader
	tracer  tracing.Tracer
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(l *ledger.Ledger, records RecordReader, tracer tracing.Tracer) *AttendanceHandler {
	return &AttendanceHandler{ledger: l, records: records, tracer: tracer}
}

// ClockInRequest represents an incoming clock-in submission
type ClockInRequest struct {
	EmployeeID string    `json:"employee_id" binding:"required" validate:"required"`
	CompanyID  string    `json:"company_id" binding:"required" validate:"required"`
	Date       string    `json:"date" binding:"required" validate:"datetime=2006-01-02"`
	Instant    time.Time `json:"instant" binding:"required"`
}

// ClockOutRequest represents an incoming clock-out submission
type ClockOutRequest struct {
	EmployeeID string    `json:"employee_id" binding:"required" validate:"required"`
	Date       string    `json:"date" binding:"required" validate:"datetime=2006-01-02"`
	Instant    time.Time `json:"instant" binding:"required"`
}

// EditRequest represents a correction of a stored attendance interval
type EditRequest struct {
	EmployeeID  string    `json:"employee_id" binding:"required" validate:"required"`
	Date        string    `json:"date" binding:"required" validate:"datetime=2006-01-02"`
	NewClockIn  time.Time `json:"new_clock_in" binding:"required"`
	NewClockOut time.Time `json:"new_clock_out" binding:"required"`
	EditedBy    string    `json:"edited_by" binding:"required" validate:"required"`
	Reason      string    `json:"reason" binding:"required"`
}

// RecordResponse is the record view returned by the write endpoints
type RecordResponse struct {
	RecordID    string     `json:"record_id"`
	EmployeeID  string     `json:"employee_id"`
	ClockIn     time.Time  `json:"clock_in"`
	ClockOut    *time.Time `json:"clock_out,omitempty"`
	WageStatus  string     `json:"wage_status"`
	WorkMinutes int        `json:"work_minutes"`
	TotalPay    int64      `json:"total_pay"`
	Status      string     `json:"status"`
	Version     int        `json:"version"`
}

// HandleClockIn handles a clock-in submission
func (h *AttendanceHandler) HandleClockIn(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-clock-in")
	defer h.tracer.EndTransaction(txn)

	var req ClockInRequest
	if err := bind(c, &req); err != nil {
		h.tracer.RecordError(txn, err)
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	rec, err := h.ledger.ClockIn(c, req.EmployeeID, req.CompanyID, date, req.Instant)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRecordResponse(rec))
}

// HandleClockOut handles a clock-out submission
func (h *AttendanceHandler) HandleClockOut(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-clock-out")
	defer h.tracer.EndTransaction(txn)

	var req ClockOutRequest
	if err := bind(c, &req); err != nil {
		h.tracer.RecordError(txn, err)
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	rec, err := h.ledger.ClockOut(c, domain.RecordKey(req.EmployeeID, date), req.Instant)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// HandleEditRequest handles an attendance correction
func (h *AttendanceHandler) HandleEditRequest(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-edit-request")
	defer h.tracer.EndTransaction(txn)

	var req EditRequest
	if err := bind(c, &req); err != nil {
		h.tracer.RecordError(txn, err)
		return
	}

	date, _ := time.Parse("2006-01-02", req.Date)
	rec, err := h.ledger.RequestEdit(c, domain.RecordKey(req.EmployeeID, date),
		req.NewClockIn, req.NewClockOut, req.EditedBy, req.Reason)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// HandleGetRecord returns one record with its full audit trail.
func (h *AttendanceHandler) HandleGetRecord(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-record")
	defer h.tracer.EndTransaction(txn)

	employeeID := c.Query("employee_id")
	dateStr := c.Query("date")
	date, err := time.Parse("2006-01-02", dateStr)
	if employeeID == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "employee_id and date (YYYY-MM-DD) query parameters are required"})
		return
	}

	rec, err := h.records.GetWithAudits(c, domain.RecordKey(employeeID, date))
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// RegisterRoutes registers the handler's routes
func (h *AttendanceHandler) RegisterRoutes(router *gin.Engine) {
	attendance := router.Group("/api/v1/attendance")
	{
		attendance.POST("/clock-in", h.HandleClockIn)
		attendance.POST("/clock-out", h.HandleClockOut)
		attendance.POST("/edit-request", h.HandleEditRequest)
		attendance.GET("/record", h.HandleGetRecord)
	}
}

func toRecordResponse(rec *models.AttendanceRecord) RecordResponse {
	return RecordResponse{
		RecordID:    rec.RecordID,
		EmployeeID:  rec.EmployeeID,
		ClockIn:     rec.ClockIn,
		ClockOut:    rec.ClockOut,
		WageStatus:  rec.WageStatus,
		WorkMinutes: rec.WorkMinutes,
		TotalPay:    rec.TotalPay,
		Status:      rec.Status,
		Version:     rec.Version,
	}
}

// bind parses and validates the request body, writing the 400 response
// itself when either step fails.
func bind(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return err
	}
	if err := validate.Struct(req); err != nil {
		log.Error().Err(err).Msg("Request validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return err
	}
	return nil
}

// writeError maps domain errors to HTTP status codes. Conflicts and
// logical-state rejections are 409; the caller can re-read and resubmit.
func writeError(c *gin.Context, err error) {
	var status int
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoOpenShift), errors.Is(err, domain.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrWriteConflict),
		errors.Is(err, domain.ErrAlreadyClockedOut),
		errors.Is(err, domain.ErrPeriodFinalized),
		errors.Is(err, domain.ErrDuplicateKey):
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
