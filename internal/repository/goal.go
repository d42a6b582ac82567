package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pairfit/pairfit/internal/model"
)

var (
	ErrGoalNotFound        = errors.New("goal not found")
	ErrGoalVersionConflict = errors.New("goal modified concurrently")
)

type GoalRepository interface {
	Create(goal *model.Goal) error
	ByID(goalID string) (*model.Goal, error)
	ByUnitAndOwner(unitID, ownerUserID string) (*model.Goal, error)
	ByUnit(unitID string) ([]*model.Goal, error)
	ByOwner(ownerUserID string) ([]*model.Goal, error)
	Update(goal *model.Goal) error
	SetPartnerLink(goalID, partnerUserID, partnerGoalID string) error
	SetPartnerCompleted(goalID string, week int) error
	SetUnlocked(goalID string) error
}

type goalRepository struct {
	db *sqlx.DB
}

func NewGoalRepository(db *sqlx.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Create(goal *model.Goal) error {
	query := `INSERT INTO goals (id, owner_user_id, redeemable_unit_id, partner_user_id, partner_goal_id,
	              sessions_per_week, weekly_count, current_week, current_count, target_weeks,
	              week_owner_completed, week_partner_completed, is_unlocked, is_completed, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.Exec(query,
		goal.ID,
		goal.OwnerUserID,
		goal.RedeemableUnitID,
		goal.PartnerUserID,
		goal.PartnerGoalID,
		goal.SessionsPerWeek,
		goal.WeeklyCount,
		goal.CurrentWeek,
		goal.CurrentCount,
		goal.TargetWeeks,
		goal.WeekOwnerDone,
		goal.WeekPartnerDone,
		goal.IsUnlocked,
		goal.IsCompleted,
		goal.Version,
		goal.CreatedAt,
		goal.UpdatedAt,
	)

	return err
}

func (r *goalRepository) ByID(goalID string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := `SELECT * FROM goals WHERE id = $1`

	err := r.db.Get(goal, query, goalID)
	if err == sql.ErrNoRows {
		return nil, ErrGoalNotFound
	}

	return goal, err
}

func (r *goalRepository) ByUnitAndOwner(unitID, ownerUserID string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := `SELECT * FROM goals WHERE redeemable_unit_id = $1 AND owner_user_id = $2`

	err := r.db.Get(goal, query, unitID, ownerUserID)
	if err == sql.ErrNoRows {
		return nil, ErrGoalNotFound
	}

	return goal, err
}

func (r *goalRepository) ByUnit(unitID string) ([]*model.Goal, error) {
	var goals []*model.Goal
	query := `SELECT * FROM goals WHERE redeemable_unit_id = $1 ORDER BY created_at ASC`

	err := r.db.Select(&goals, query, unitID)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

func (r *goalRepository) ByOwner(ownerUserID string) ([]*model.Goal, error) {
	var goals []*model.Goal
	query := `SELECT * FROM goals WHERE owner_user_id = $1 ORDER BY created_at DESC`

	err := r.db.Select(&goals, query, ownerUserID)
	if err != nil {
		return nil, err
	}

	return goals, nil
}

// Update writes the goal's mutable fields guarded by the version the caller
// read. Zero rows affected means a concurrent writer (the partner's sync step
// or another device) advanced the document; the caller re-reads and retries.
func (r *goalRepository) Update(goal *model.Goal) error {
	query := `UPDATE goals
	          SET partner_user_id = $1, partner_goal_id = $2, weekly_count = $3, current_week = $4,
	              current_count = $5, week_owner_completed = $6, week_partner_completed = $7,
	              is_unlocked = $8, is_completed = $9, version = version + 1, updated_at = $10
	          WHERE id = $11 AND version = $12`

	result, err := r.db.Exec(query,
		goal.PartnerUserID,
		goal.PartnerGoalID,
		goal.WeeklyCount,
		goal.CurrentWeek,
		goal.CurrentCount,
		goal.WeekOwnerDone,
		goal.WeekPartnerDone,
		goal.IsUnlocked,
		goal.IsCompleted,
		time.Now(),
		goal.ID,
		goal.Version,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrGoalVersionConflict
	}

	goal.Version++
	return nil
}

// SetPartnerLink sets the partner reference fields unconditionally. Writing
// the same values twice is safe, which is what makes the two-step link write
// and its repair pass idempotent.
func (r *goalRepository) SetPartnerLink(goalID, partnerUserID, partnerGoalID string) error {
	query := `UPDATE goals
	          SET partner_user_id = $1, partner_goal_id = $2, version = version + 1, updated_at = $3
	          WHERE id = $4`

	result, err := r.db.Exec(query, partnerUserID, partnerGoalID, time.Now(), goalID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrGoalNotFound
	}

	return nil
}

// SetPartnerCompleted marks the partner-completed flag on a goal for the given
// week. The week guard makes a late or replayed cross-write a no-op instead of
// corrupting a week the goal has already rolled past.
func (r *goalRepository) SetPartnerCompleted(goalID string, week int) error {
	query := `UPDATE goals
	          SET week_partner_completed = TRUE, version = version + 1, updated_at = $1
	          WHERE id = $2 AND current_week = $3 AND is_completed = FALSE`

	_, err := r.db.Exec(query, time.Now(), goalID, week)
	return err
}

// SetUnlocked flips the unlocked flag. Unconditional and idempotent: both
// sides of a pair are marked unlocked regardless of which one won the
// unlock-event insert.
func (r *goalRepository) SetUnlocked(goalID string) error {
	query := `UPDATE goals
	          SET is_unlocked = TRUE, version = version + 1, updated_at = $1
	          WHERE id = $2 AND is_unlocked = FALSE`

	_, err := r.db.Exec(query, time.Now(), goalID)
	return err
}
