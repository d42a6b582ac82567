package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pairfit/pairfit/internal/model"
)

var (
	ErrUnitNotFound        = errors.New("redeemable unit not found")
	ErrUnitVersionConflict = errors.New("redeemable unit modified concurrently")
	ErrDuplicateUnit       = errors.New("redeemable unit already exists")
)

type UnitRepository interface {
	Create(unit *model.RedeemableUnit) error
	ByID(id string) (*model.RedeemableUnit, error)
	CompareAndSwap(unit *model.RedeemableUnit) error
}

type unitRepository struct {
	db *sqlx.DB
}

func NewUnitRepository(db *sqlx.DB) UnitRepository {
	return &unitRepository{db: db}
}

func (r *unitRepository) Create(unit *model.RedeemableUnit) error {
	query := `INSERT INTO redeemable_units (id, max_redemptions, redemption_count, redeemed_by_user_ids, status, sessions_per_week, target_weeks, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(query,
		unit.ID,
		unit.MaxRedemptions,
		unit.RedemptionCount,
		unit.RedeemedByUserIDs,
		unit.Status,
		unit.SessionsPerWeek,
		unit.TargetWeeks,
		unit.Version,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		// Check for unique constraint violation (works for both SQLite and PostgreSQL)
		errStr := err.Error()
		if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value") {
			return ErrDuplicateUnit
		}
		return err
	}

	return nil
}

func (r *unitRepository) ByID(id string) (*model.RedeemableUnit, error) {
	unit := &model.RedeemableUnit{}
	query := `SELECT * FROM redeemable_units WHERE id = $1`

	err := r.db.Get(unit, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrUnitNotFound
	}

	return unit, err
}

// CompareAndSwap writes the unit's mutable fields guarded by the version the
// caller read. Zero rows affected means another writer got there first; the
// caller must re-read and retry. On success the in-memory version is advanced
// to match the stored row.
func (r *unitRepository) CompareAndSwap(unit *model.RedeemableUnit) error {
	query := `UPDATE redeemable_units
	          SET redemption_count = $1, redeemed_by_user_ids = $2, status = $3, version = version + 1, updated_at = $4
	          WHERE id = $5 AND version = $6`

	result, err := r.db.Exec(query,
		unit.RedemptionCount,
		unit.RedeemedByUserIDs,
		unit.Status,
		time.Now(),
		unit.ID,
		unit.Version,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUnitVersionConflict
	}

	unit.Version++
	return nil
}
