package repository

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/pairfit/pairfit/internal/model"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

type NotificationRepository interface {
	CreateUnlockEvent(event *model.UnlockEvent) (bool, error)
	HasUnlockEvent(unitID string) (bool, error)
	Create(n *model.Notification) error
	ByUser(userID string) ([]*model.Notification, error)
	MarkRead(userID, notificationID string) error
}

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// CreateUnlockEvent records the unlock transition for a unit. The unit ID is
// the primary key, so exactly one insert wins no matter how many overlapping
// completion paths attempt it. Returns true only for the winning insert.
func (r *notificationRepository) CreateUnlockEvent(event *model.UnlockEvent) (bool, error) {
	query := `INSERT INTO unlock_events (unit_id, goal_id, partner_goal_id, created_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (unit_id) DO NOTHING`

	result, err := r.db.Exec(query, event.UnitID, event.GoalID, event.PartnerGoalID, event.CreatedAt)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// HasUnlockEvent reports whether the unit's unlock event has been recorded.
func (r *notificationRepository) HasUnlockEvent(unitID string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM unlock_events WHERE unit_id = $1`

	err := r.db.Get(&count, query, unitID)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *notificationRepository) Create(n *model.Notification) error {
	query := `INSERT INTO notifications (id, user_id, kind, goal_id, partner_goal_id, partner_user_id, unit_id, is_read, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(query,
		n.ID,
		n.UserID,
		n.Kind,
		n.GoalID,
		n.PartnerGoalID,
		n.PartnerUserID,
		n.UnitID,
		n.IsRead,
		n.CreatedAt,
	)

	return err
}

func (r *notificationRepository) ByUser(userID string) ([]*model.Notification, error) {
	var notifications []*model.Notification
	query := `SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&notifications, query, userID)
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(userID, notificationID string) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`

	result, err := r.db.Exec(query, notificationID, userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotificationNotFound
	}

	return nil
}
