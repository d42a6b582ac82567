package handler

import (
	"errors"
	"net/http"

	"github.com/pairfit/pairfit/internal/ctxkeys"
	"github.com/pairfit/pairfit/internal/repository"
)

type NotificationHandler struct {
	notifications repository.NotificationRepository
}

func NewNotificationHandler(notifications repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// ListNotifications handles GET /api/notifications.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())

	notifications, err := h.notifications.ByUser(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}

	views := make([]map[string]any, 0, len(notifications))
	for _, n := range notifications {
		views = append(views, map[string]any{
			"id":              n.ID,
			"kind":            n.Kind,
			"goal_id":         n.GoalID,
			"partner_goal_id": n.PartnerGoalID,
			"partner_user_id": n.PartnerUserID,
			"unit_id":         n.UnitID,
			"is_read":         n.IsRead,
			"created_at":      n.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"notifications": views})
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())
	notificationID := r.PathValue("id")

	err := h.notifications.MarkRead(userID, notificationID)
	if errors.Is(err, repository.ErrNotificationNotFound) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}
