package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
)

// maxRedemptionsPerUnit is fixed: a unit is shared by exactly one pair.
const maxRedemptionsPerUnit = 2

// UnitService records redeemable units produced by the payment-completion
// webhook. The engine never invents units; this is purely the input boundary.
type UnitService struct {
	units repository.UnitRepository
}

func NewUnitService(units repository.UnitRepository) *UnitService {
	return &UnitService{units: units}
}

// Ingest persists an externally-produced unit. Webhook redelivery is
// expected; an already-recorded unit is returned as-is.
func (s *UnitService) Ingest(unitID string, sessionsPerWeek, targetWeeks int) (*model.RedeemableUnit, error) {
	if sessionsPerWeek < 1 {
		sessionsPerWeek = 3
	}
	if targetWeeks < 1 {
		targetWeeks = 4
	}

	now := time.Now()
	unit := &model.RedeemableUnit{
		ID:                unitID,
		MaxRedemptions:    maxRedemptionsPerUnit,
		RedemptionCount:   0,
		RedeemedByUserIDs: model.UserIDList{},
		Status:            model.UnitStatusPurchased,
		SessionsPerWeek:   sessionsPerWeek,
		TargetWeeks:       targetWeeks,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.units.Create(unit)
	if errors.Is(err, repository.ErrDuplicateUnit) {
		slog.Info("unit already recorded, webhook redelivery", "unit_id", unitID)
		return s.units.ByID(unitID)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("redeemable unit recorded", "unit_id", unitID, "sessions_per_week", sessionsPerWeek, "target_weeks", targetWeeks)
	return unit, nil
}

func (s *UnitService) ByID(unitID string) (*model.RedeemableUnit, error) {
	return s.units.ByID(unitID)
}
