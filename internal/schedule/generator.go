// Package schedule generates the base work schedule a signed contract
// implies. Generation runs as a chain step; its compensation removes the
// generated slots again.
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/internal/models"
)

// SlotStore is the persistence surface for generated slots.
type SlotStore interface {
	CreateBatch(ctx context.Context, slots []models.WorkSchedule) error
	DeleteByContract(ctx context.Context, contractID string) error
}

// Generator builds base schedule slots from a contract.
type Generator struct {
	slots SlotStore
	// HorizonDays is how far ahead of the contract start the base
	// schedule reaches.
	HorizonDays int
	StartMin    int
	EndMin      int
}

// NewGenerator creates a generator with the configured default shift window.
func NewGenerator(slots SlotStore, horizonDays, startMin, endMin int) *Generator {
	return &Generator{slots: slots, HorizonDays: horizonDays, StartMin: startMin, EndMin: endMin}
}

// GenerateBase creates weekday slots from the contract start date. Weekends
// are left to the scheduling UI; the base schedule only covers the default
// working pattern.
func (g *Generator) GenerateBase(ctx context.Context, contract *models.ContractTerms, startDate time.Time) error {
	// Regeneration after a chain retry replaces, never duplicates.
	if err := g.slots.DeleteByContract(ctx, contract.ID); err != nil {
		return err
	}

	var slots []models.WorkSchedule
	for i := 0; i < g.HorizonDays; i++ {
		day := startDate.AddDate(0, 0, i)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		slots = append(slots, models.WorkSchedule{
			ID:         uuid.New().String(),
			EmployeeID: contract.EmployeeID,
			CompanyID:  contract.CompanyID,
			ContractID: contract.ID,
			WorkDate:   day,
			StartMin:   g.StartMin,
			EndMin:     g.EndMin,
		})
	}

	if err := g.slots.CreateBatch(ctx, slots); err != nil {
		return err
	}

	log.Info().
		Str("contract_id", contract.ID).
		Str("employee_id", contract.EmployeeID).
		Int("slots", len(slots)).
		Msg("Base schedule generated")
	return nil
}

// Remove deletes every slot generated for a contract. This is the
// compensating action of GenerateBase.
func (g *Generator) Remove(ctx context.Context, contractID string) error {
	return g.slots.DeleteByContract(ctx, contractID)
}
