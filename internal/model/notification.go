package model

import (
	"time"
)

const (
	NotificationKindUnlock = "reward_unlocked"
)

// UnlockEvent is the one-time signal produced when both linked goals reach
// full completion. The unit ID is the primary key, which is what makes the
// transition fire exactly once per pair.
type UnlockEvent struct {
	UnitID        string    `db:"unit_id"`
	GoalID        string    `db:"goal_id"`
	PartnerGoalID string    `db:"partner_goal_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// Notification is a durable in-app notification row. It doubles as the
// fallback delivery channel when email/push delivery transiently fails.
type Notification struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Kind          string    `db:"kind"`
	GoalID        string    `db:"goal_id"`
	PartnerGoalID string    `db:"partner_goal_id"`
	PartnerUserID string    `db:"partner_user_id"`
	UnitID        string    `db:"unit_id"`
	IsRead        bool      `db:"is_read"`
	CreatedAt     time.Time `db:"created_at"`
}
