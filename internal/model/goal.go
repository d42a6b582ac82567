package model

import (
	"time"
)

// Goal is one partner's side of a shared challenge. The owner's device is the
// only writer of WeeklyCount and WeekOwnerCompleted; WeekPartnerCompleted is
// written by the partner's synchronization step. Cross-document fields
// (PartnerGoalID, WeekPartnerCompleted) tolerate transient inconsistency and
// are healed on the next read.
type Goal struct {
	ID               string    `db:"id"`
	OwnerUserID      string    `db:"owner_user_id"`
	RedeemableUnitID string    `db:"redeemable_unit_id"`
	PartnerUserID    *string   `db:"partner_user_id"`
	PartnerGoalID    *string   `db:"partner_goal_id"`
	SessionsPerWeek  int       `db:"sessions_per_week"`
	WeeklyCount      int       `db:"weekly_count"`
	CurrentWeek      int       `db:"current_week"`
	CurrentCount     int       `db:"current_count"`
	TargetWeeks      int       `db:"target_weeks"`
	WeekOwnerDone    bool      `db:"week_owner_completed"`
	WeekPartnerDone  bool      `db:"week_partner_completed"`
	IsUnlocked       bool      `db:"is_unlocked"`
	IsCompleted      bool      `db:"is_completed"`
	Version          int64     `db:"version"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Linked reports whether this goal carries a partner reference.
func (g *Goal) Linked() bool {
	return g.PartnerGoalID != nil && *g.PartnerGoalID != ""
}

// WeekComplete reports whether the current week is mutually complete, which is
// the only condition under which the goal may roll over.
func (g *Goal) WeekComplete() bool {
	return g.WeekOwnerDone && g.WeekPartnerDone
}

// WaitingForPartner reports whether the owner finished the week but the
// partner has not yet.
func (g *Goal) WaitingForPartner() bool {
	return g.WeekOwnerDone && !g.WeekPartnerDone
}
