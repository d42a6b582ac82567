package handler

import (
	"errors"
	"net/http"

	"github.com/pairfit/pairfit/internal/ctxkeys"
	"github.com/pairfit/pairfit/internal/repository"
	"github.com/pairfit/pairfit/internal/service"
)

type RedemptionHandler struct {
	redemptionService *service.RedemptionService
	unitService       *service.UnitService
}

func NewRedemptionHandler(redemptionService *service.RedemptionService, unitService *service.UnitService) *RedemptionHandler {
	return &RedemptionHandler{
		redemptionService: redemptionService,
		unitService:       unitService,
	}
}

// Redeem handles POST /api/units/{id}/redeem for the authenticated user.
// Safe to retry: a repeated call returns the existing goal.
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())
	unitID := r.PathValue("id")

	result, err := h.redemptionService.Redeem(r.Context(), unitID, userID)
	switch {
	case errors.Is(err, repository.ErrUnitNotFound):
		respondError(w, http.StatusNotFound, "coupon not found")
		return
	case errors.Is(err, service.ErrCapacityExceeded):
		respondError(w, http.StatusConflict, "coupon has already been redeemed by two partners")
		return
	case errors.Is(err, service.ErrRedemptionConflict):
		respondError(w, http.StatusServiceUnavailable, "coupon is busy, retry")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to redeem coupon")
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}

	respondJSON(w, status, map[string]any{
		"goal":              newGoalView(result.Goal),
		"is_first_redeemer": result.IsFirstRedeemer,
		"replayed":          result.Replayed,
	})
}

// ShowUnit handles GET /api/units/{id}.
func (h *RedemptionHandler) ShowUnit(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("id")

	unit, err := h.unitService.ByID(unitID)
	if errors.Is(err, repository.ErrUnitNotFound) {
		respondError(w, http.StatusNotFound, "coupon not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load coupon")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":                unit.ID,
		"max_redemptions":   unit.MaxRedemptions,
		"redemption_count":  unit.RedemptionCount,
		"status":            unit.Status,
		"sessions_per_week": unit.SessionsPerWeek,
		"target_weeks":      unit.TargetWeeks,
	})
}
