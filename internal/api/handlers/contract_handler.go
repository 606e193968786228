package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/backstage/services/attendance/internal/domain"
	"example.com/backstage/services/attendance/internal/models"
	"example.com/backstage/services/attendance/internal/tracing"
)

// ContractSource verifies the signed contract exists before the event is
// accepted. Contract rows are owned by the employment system.
type ContractSource interface {
	GetByID(ctx context.Context, contractID string) (*models.ContractTerms, error)
}

// EventSink persists and dispatches a boundary event.
type EventSink interface {
	Emit(ctx context.Context, evt domain.Event) error
}

// ContractHandler accepts contract-signed notifications from the employment
// system and turns them into domain events.
type ContractHandler struct {
	contracts ContractSource
	events    EventSink
	tracer    tracing.Tracer
}

// NewContractHandler creates a new contract handler
func NewContractHandler(contracts ContractSource, events EventSink, tracer tracing.Tracer) *ContractHandler {
	return &ContractHandler{contracts: contracts, events: events, tracer: tracer}
}

// ContractSignedRequest represents a contract-signed notification
type ContractSignedRequest struct {
	ContractID string    `json:"contract_id" binding:"required" validate:"required"`
	SignedAt   time.Time `json:"signed_at" binding:"required"`
	StartDate  string    `json:"start_date" binding:"required" validate:"datetime=2006-01-02"`
}

// HandleContractSigned records the signature and kicks off the side-effect
// chain that generates the base schedule.
func (h *ContractHandler) HandleContractSigned(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-contract-signed")
	defer h.tracer.EndTransaction(txn)

	var req ContractSignedRequest
	if err := bind(c, &req); err != nil {
		h.tracer.RecordError(txn, err)
		return
	}

	contract, err := h.contracts.GetByID(c, req.ContractID)
	if err != nil {
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "contract not found"})
		return
	}

	startDate, _ := time.Parse("2006-01-02", req.StartDate)
	evt := domain.Event{
		ID:          uuid.New().String(),
		Kind:        domain.ContractSigned,
		AggregateID: contract.ID,
		OccurredAt:  time.Now().UTC(),
		Data: domain.ContractSignedPayload{
			ContractID: contract.ID,
			EmployeeID: contract.EmployeeID,
			CompanyID:  contract.CompanyID,
			SignedAt:   req.SignedAt,
			StartDate:  startDate,
		},
	}

	if err := h.events.Emit(c, evt); err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"contract_id": contract.ID,
		"event_id":    evt.ID,
	})
}

// RegisterRoutes registers the handler's routes
func (h *ContractHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/v1/contracts/signed", h.HandleContractSigned)
}
