package handler

import (
	"errors"
	"net/http"

	"github.com/pairfit/pairfit/internal/ctxkeys"
	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
	"github.com/pairfit/pairfit/internal/service"
)

type GoalHandler struct {
	weeklyService *service.WeeklyService
}

func NewGoalHandler(weeklyService *service.WeeklyService) *GoalHandler {
	return &GoalHandler{weeklyService: weeklyService}
}

// weekStatusView mirrors the per-week completion pair consumers render as
// "waiting for partner".
type weekStatusView struct {
	CurrentWeek      int  `json:"current_week"`
	OwnerCompleted   bool `json:"owner_completed"`
	PartnerCompleted bool `json:"partner_completed"`
}

type goalView struct {
	ID                   string         `json:"id"`
	OwnerUserID          string         `json:"owner_user_id"`
	RedeemableUnitID     string         `json:"redeemable_unit_id"`
	PartnerUserID        *string        `json:"partner_user_id"`
	PartnerGoalID        *string        `json:"partner_goal_id"`
	SessionsPerWeek      int            `json:"sessions_per_week"`
	WeeklyCount          int            `json:"weekly_count"`
	CurrentWeek          int            `json:"current_week"`
	CurrentCount         int            `json:"current_count"`
	TargetWeeks          int            `json:"target_weeks"`
	WeekCompletionStatus weekStatusView `json:"week_completion_status"`
	WaitingForPartner    bool           `json:"waiting_for_partner"`
	IsUnlocked           bool           `json:"is_unlocked"`
	IsCompleted          bool           `json:"is_completed"`
}

func newGoalView(goal *model.Goal) goalView {
	return goalView{
		ID:               goal.ID,
		OwnerUserID:      goal.OwnerUserID,
		RedeemableUnitID: goal.RedeemableUnitID,
		PartnerUserID:    goal.PartnerUserID,
		PartnerGoalID:    goal.PartnerGoalID,
		SessionsPerWeek:  goal.SessionsPerWeek,
		WeeklyCount:      goal.WeeklyCount,
		CurrentWeek:      goal.CurrentWeek,
		CurrentCount:     goal.CurrentCount,
		TargetWeeks:      goal.TargetWeeks,
		WeekCompletionStatus: weekStatusView{
			CurrentWeek:      goal.CurrentWeek,
			OwnerCompleted:   goal.WeekOwnerDone,
			PartnerCompleted: goal.WeekPartnerDone,
		},
		WaitingForPartner: goal.WaitingForPartner(),
		IsUnlocked:        goal.IsUnlocked,
		IsCompleted:       goal.IsCompleted,
	}
}

// ShowGoal handles GET /api/goals/{id}. Readable by the goal's owner and the
// linked partner; the read runs the reconciliation pass first.
func (h *GoalHandler) ShowGoal(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())
	goalID := r.PathValue("id")

	goal, err := h.weeklyService.Goal(r.Context(), goalID)
	if errors.Is(err, repository.ErrGoalNotFound) {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load goal")
		return
	}

	isOwner := goal.OwnerUserID == userID
	isPartner := goal.PartnerUserID != nil && *goal.PartnerUserID == userID
	if !isOwner && !isPartner {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}

	respondJSON(w, http.StatusOK, newGoalView(goal))
}

// ListGoals handles GET /api/goals.
func (h *GoalHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())

	goals, err := h.weeklyService.Goals(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load goals")
		return
	}

	views := make([]goalView, 0, len(goals))
	for _, goal := range goals {
		views = append(views, newGoalView(goal))
	}

	respondJSON(w, http.StatusOK, map[string]any{"goals": views})
}

// LogSession handles POST /api/goals/{id}/sessions.
func (h *GoalHandler) LogSession(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())
	goalID := r.PathValue("id")

	result, err := h.weeklyService.LogSession(r.Context(), userID, goalID)
	if errors.Is(err, repository.ErrGoalNotFound) {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}
	if errors.Is(err, repository.ErrGoalVersionConflict) {
		respondError(w, http.StatusServiceUnavailable, "goal is busy, retry")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to log session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"goal":     newGoalView(result.Goal),
		"state":    result.State,
		"unlocked": result.Unlocked,
	})
}
