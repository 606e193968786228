package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/attendance/internal/ledger"
	"example.com/backstage/services/attendance/internal/payroll"
	"example.com/backstage/services/attendance/internal/tracing"
)

// PayrollHandler handles the read-side summary and period finalization
type PayrollHandler struct {
	aggregator *payroll.Aggregator
	ledger     *ledger.Ledger
	tracer     tracing.Tracer
}

// NewPayrollHandler creates a new payroll handler
func NewPayrollHandler(aggregator *payroll.Aggregator, l *ledger.Ledger, tracer tracing.Tracer) *PayrollHandler {
	return &PayrollHandler{aggregator: aggregator, ledger: l, tracer: tracer}
}

// FinalizeRequest closes a payroll period for one employee
type FinalizeRequest struct {
	EmployeeID string `json:"employee_id" binding:"required" validate:"required"`
	Period     string `json:"period" binding:"required" validate:"datetime=2006-01"`
}

// HandleSalarySummary returns the aggregate wage view for one employee and
// period. The summary is derived from stored records; nothing is recomputed.
func (h *PayrollHandler) HandleSalarySummary(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-salary-summary")
	defer h.tracer.EndTransaction(txn)

	employeeID := c.Query("employee_id")
	period := c.Query("period")
	if employeeID == "" || period == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "employee_id and period query parameters are required"})
		return
	}

	summary, err := h.aggregator.Summarize(c, employeeID, period)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// HandleFinalize closes a payroll period. Finalized records refuse edits.
func (h *PayrollHandler) HandleFinalize(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-payroll-finalize")
	defer h.tracer.EndTransaction(txn)

	var req FinalizeRequest
	if err := bind(c, &req); err != nil {
		h.tracer.RecordError(txn, err)
		return
	}

	n, err := h.ledger.FinalizePeriod(c, req.EmployeeID, req.Period)
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"employee_id": req.EmployeeID,
		"period":      req.Period,
		"finalized":   n,
	})
}

// RegisterRoutes registers the handler's routes
func (h *PayrollHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/v1/attendance/salary-summary", h.HandleSalarySummary)
	router.POST("/api/v1/payroll/finalize", h.HandleFinalize)
}
