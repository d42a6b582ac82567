package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
)

var (
	// ErrCapacityExceeded is terminal: the coupon already has its maximum
	// number of redemptions and the caller is not one of them.
	ErrCapacityExceeded = errors.New("coupon already fully redeemed")
	// ErrRedemptionConflict surfaces only after the compare-and-swap retry
	// budget is exhausted. The caller may safely retry the whole call.
	ErrRedemptionConflict = errors.New("redemption conflicted with concurrent attempts")
)

type RedemptionResult struct {
	Goal            *model.Goal
	IsFirstRedeemer bool
	// Replayed is true when the user had already redeemed this unit and the
	// call returned the existing goal instead of claiming a slot.
	Replayed bool
}

// RedemptionService claims redemption slots on a capacity-limited unit. The
// unit's counter is the one piece of state needing strict mutual exclusion;
// it is guarded by the unit document's version via compare-and-swap, retried
// with exponential backoff under contention. The goal document is created
// after the claim, outside the unit write, and a crash in between is repaired
// by the idempotent replay path.
type RedemptionService struct {
	units       repository.UnitRepository
	goals       repository.GoalRepository
	links       *LinkService
	maxRetries  int
	backoffBase time.Duration
}

func NewRedemptionService(units repository.UnitRepository, goals repository.GoalRepository, links *LinkService, maxRetries int, backoffBase time.Duration) *RedemptionService {
	return &RedemptionService{
		units:       units,
		goals:       goals,
		links:       links,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
	}
}

// Redeem claims a redemption slot on the unit for the user and returns the
// user's goal. Idempotent per (unit, user): a retried call returns the same
// goal without touching the counter.
func (s *RedemptionService) Redeem(ctx context.Context, unitID, userID string) (*RedemptionResult, error) {
	var unit *model.RedeemableUnit
	var replayed bool

	claim := func() error {
		var err error
		unit, err = s.units.ByID(unitID)
		if err != nil {
			return backoff.Permanent(err)
		}

		if unit.HasRedeemed(userID) {
			replayed = true
			return nil
		}

		if unit.RedemptionCount >= unit.MaxRedemptions {
			return backoff.Permanent(ErrCapacityExceeded)
		}

		unit.RedemptionCount++
		unit.RedeemedByUserIDs = append(unit.RedeemedByUserIDs, userID)
		if unit.RedemptionCount >= unit.MaxRedemptions {
			unit.Status = model.UnitStatusFullyRedeemed
		} else {
			unit.Status = model.UnitStatusPartiallyRedeemed
		}

		err = s.units.CompareAndSwap(unit)
		if errors.Is(err, repository.ErrUnitVersionConflict) {
			return err // retryable
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.backoffBase
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(s.maxRetries)), ctx)

	err := backoff.Retry(claim, policy)
	if err != nil {
		if errors.Is(err, repository.ErrUnitVersionConflict) {
			return nil, ErrRedemptionConflict
		}
		return nil, err
	}

	isFirst := unit.FirstRedeemerID() == userID

	if replayed {
		return s.replay(unitID, userID, unit, isFirst)
	}

	goal, err := s.createGoal(unit, userID)
	if err != nil {
		return nil, err
	}

	slog.Info("unit redeemed", "unit_id", unitID, "user_id", userID, "goal_id", goal.ID,
		"redemption_count", unit.RedemptionCount, "first_redeemer", isFirst)

	if !isFirst {
		goal = s.linkToSibling(unitID, goal, unit.FirstRedeemerID())
	}

	return &RedemptionResult{Goal: goal, IsFirstRedeemer: isFirst}, nil
}

// replay serves an idempotent re-redemption. The counter is untouched; the
// existing goal is returned. If the previous attempt crashed after claiming
// the slot but before creating the goal, the goal is created now, which is
// what makes the crash recoverable with the same call.
func (s *RedemptionService) replay(unitID, userID string, unit *model.RedeemableUnit, isFirst bool) (*RedemptionResult, error) {
	goal, err := s.goals.ByUnitAndOwner(unitID, userID)
	if errors.Is(err, repository.ErrGoalNotFound) {
		goal, err = s.createGoal(unit, userID)
		if err != nil {
			return nil, err
		}
		slog.Info("recreated goal for claimed redemption", "unit_id", unitID, "user_id", userID, "goal_id", goal.ID)
	} else if err != nil {
		return nil, err
	}

	if !isFirst && !goal.Linked() {
		goal = s.linkToSibling(unitID, goal, unit.FirstRedeemerID())
	}

	return &RedemptionResult{Goal: goal, IsFirstRedeemer: isFirst, Replayed: true}, nil
}

func (s *RedemptionService) createGoal(unit *model.RedeemableUnit, userID string) (*model.Goal, error) {
	now := time.Now()
	goal := &model.Goal{
		ID:               uuid.New().String(),
		OwnerUserID:      userID,
		RedeemableUnitID: unit.ID,
		SessionsPerWeek:  unit.SessionsPerWeek,
		WeeklyCount:      0,
		CurrentWeek:      1,
		CurrentCount:     0,
		TargetWeeks:      unit.TargetWeeks,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.goals.Create(goal)
	if err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	return goal, nil
}

// linkToSibling runs the bidirectional link write for a second redeemer. A
// link failure never fails the redemption: the goal is individually valid
// while unlinked and the read path heals the link as soon as both sides
// exist.
func (s *RedemptionService) linkToSibling(unitID string, goal *model.Goal, firstRedeemerID string) *model.Goal {
	linked, err := s.links.LinkIfSecond(unitID, goal, firstRedeemerID)
	if errors.Is(err, ErrPartnerNotReady) {
		slog.Warn("partner goal not ready, leaving unlinked", "unit_id", unitID, "goal_id", goal.ID)
		return goal
	}
	if err != nil {
		slog.Error("partner link failed, leaving unlinked", "unit_id", unitID, "goal_id", goal.ID, "error", err)
		return goal
	}
	return linked
}
