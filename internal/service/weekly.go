package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
)

// maxSyncRetries bounds compare-and-swap retries on a goal document. Goal
// contention is at most two writers (owner's devices plus the partner's sync
// step), so a small budget is plenty.
const maxSyncRetries = 5

type SessionState string

const (
	// SessionLogged: the session counted, the week is not yet complete.
	SessionLogged SessionState = "logged"
	// SessionWaitingPartner: owner finished the week, partner has not.
	SessionWaitingPartner SessionState = "week_complete_waiting_partner"
	// SessionRolledOver: both finished, the goal advanced to the next week.
	SessionRolledOver SessionState = "rolled_over"
	// SessionGoalCompleted: the final week rolled over; the goal is done.
	SessionGoalCompleted SessionState = "goal_completed"
	// SessionWeekAtCap: no-op, the week was already complete.
	SessionWeekAtCap SessionState = "week_already_complete"
	// SessionGoalAlreadyDone: no-op, the whole goal was already complete.
	SessionGoalAlreadyDone SessionState = "goal_already_completed"
)

type SessionResult struct {
	Goal     *model.Goal
	State    SessionState
	Unlocked bool
}

// WeeklyService runs the weekly completion state machine for a goal pair.
// Each side only ever rolls over its own document, and only once it observes
// both completion flags true for the current week. The partner-completed flag
// arrives via a cross-document write from the partner's session log; if that
// write is lost, the flag is re-derived from the partner's document on the
// next read.
type WeeklyService struct {
	goals  repository.GoalRepository
	links  *LinkService
	unlock *UnlockService
}

func NewWeeklyService(goals repository.GoalRepository, links *LinkService, unlock *UnlockService) *WeeklyService {
	return &WeeklyService{
		goals:  goals,
		links:  links,
		unlock: unlock,
	}
}

// Goal is the read path. Every caller-visible read goes through the full
// reconciliation pass: link repair, partner-flag repair, pending rollover,
// pending unlock. Callers never observe a half-linked or half-rolled state.
func (s *WeeklyService) Goal(ctx context.Context, goalID string) (*model.Goal, error) {
	goal, err := s.goals.ByID(goalID)
	if err != nil {
		return nil, err
	}

	return s.sync(ctx, goal)
}

// Goals lists a user's goals through the reconciliation pass.
func (s *WeeklyService) Goals(ctx context.Context, ownerUserID string) ([]*model.Goal, error) {
	goals, err := s.goals.ByOwner(ownerUserID)
	if err != nil {
		return nil, err
	}

	synced := make([]*model.Goal, 0, len(goals))
	for _, goal := range goals {
		g, err := s.sync(ctx, goal)
		if err != nil {
			return nil, err
		}
		synced = append(synced, g)
	}

	return synced, nil
}

// LogSession records one completed session for the goal's owner. Once the
// weekly target is hit, the owner-completed flag is set locally and the
// partner-completed flag is pushed onto the partner's document, then the goal
// rolls over if the week is mutually complete.
func (s *WeeklyService) LogSession(ctx context.Context, ownerUserID, goalID string) (*SessionResult, error) {
	for attempt := 0; attempt < maxSyncRetries; attempt++ {
		goal, err := s.Goal(ctx, goalID)
		if err != nil {
			return nil, err
		}
		if goal.OwnerUserID != ownerUserID {
			return nil, repository.ErrGoalNotFound
		}

		if goal.IsCompleted {
			return &SessionResult{Goal: goal, State: SessionGoalAlreadyDone, Unlocked: goal.IsUnlocked}, nil
		}
		if goal.WeekOwnerDone {
			return &SessionResult{Goal: goal, State: SessionWeekAtCap}, nil
		}

		weekBefore := goal.CurrentWeek

		goal.WeeklyCount++
		becameDone := goal.WeeklyCount >= goal.SessionsPerWeek
		if becameDone {
			goal.WeekOwnerDone = true
		}

		err = s.goals.Update(goal)
		if errors.Is(err, repository.ErrGoalVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if !becameDone {
			return &SessionResult{Goal: goal, State: SessionLogged}, nil
		}

		// Cross-document write: tell the partner's goal that its partner
		// finished this week. Guarded by the partner's current week, so a
		// stale write is a no-op; a lost write is re-derived on the
		// partner's next read.
		if goal.Linked() {
			err = s.goals.SetPartnerCompleted(*goal.PartnerGoalID, goal.CurrentWeek)
			if err != nil {
				return nil, err
			}
		}

		goal, err = s.sync(ctx, goal)
		if err != nil {
			return nil, err
		}

		result := &SessionResult{Goal: goal, Unlocked: goal.IsUnlocked}
		switch {
		case goal.IsCompleted:
			result.State = SessionGoalCompleted
		case goal.CurrentWeek > weekBefore:
			result.State = SessionRolledOver
		default:
			result.State = SessionWaitingPartner
		}
		return result, nil
	}

	return nil, repository.ErrGoalVersionConflict
}

// sync is the reconciliation pass shared by every read and write path. The
// flag derivation and rollover alternate until stable: rolling into a new
// week can expose a partner completion for that week (the partner may already
// be ahead), which in turn can enable another rollover.
func (s *WeeklyService) sync(ctx context.Context, goal *model.Goal) (*model.Goal, error) {
	goal, err := s.links.HealLink(goal)
	if err != nil {
		return nil, err
	}

	for i := 0; i <= goal.TargetWeeks; i++ {
		goal, err = s.healPartnerFlag(goal)
		if err != nil {
			return nil, err
		}

		var rolled bool
		goal, rolled, err = s.applyRollover(ctx, goal)
		if err != nil {
			return nil, err
		}
		if !rolled {
			return goal, nil
		}
	}

	return goal, nil
}

// healPartnerFlag re-derives a missing partner-completed flag from the
// partner's own document. The flag is true if the partner finished this
// goal's current week: either their owner-completed flag is up for the same
// week, or they have already rolled past it, or they finished the whole
// challenge.
func (s *WeeklyService) healPartnerFlag(goal *model.Goal) (*model.Goal, error) {
	if goal.IsCompleted || goal.WeekPartnerDone || !goal.Linked() {
		return goal, nil
	}

	partner, err := s.goals.ByID(*goal.PartnerGoalID)
	if errors.Is(err, repository.ErrGoalNotFound) {
		return goal, nil
	}
	if err != nil {
		return nil, err
	}

	partnerDone := partner.IsCompleted ||
		partner.CurrentWeek > goal.CurrentWeek ||
		(partner.CurrentWeek == goal.CurrentWeek && partner.WeekOwnerDone)
	if !partnerDone {
		return goal, nil
	}

	err = s.goals.SetPartnerCompleted(goal.ID, goal.CurrentWeek)
	if err != nil {
		return nil, err
	}
	slog.Debug("repaired partner completion flag", "goal_id", goal.ID, "week", goal.CurrentWeek)

	return s.goals.ByID(goal.ID)
}

// applyRollover advances the goal by at most one week if its current week is
// mutually complete, marks completion at the target week count, and hands a
// completed pair to the unlock path. Runs on the goal's own document only.
// Returns whether the goal rolled into a new, incomplete week.
func (s *WeeklyService) applyRollover(ctx context.Context, goal *model.Goal) (*model.Goal, bool, error) {
	for attempt := 0; attempt < maxSyncRetries; attempt++ {
		if goal.IsCompleted {
			goal, err := s.ensureUnlocked(ctx, goal)
			return goal, false, err
		}
		if !goal.WeekComplete() {
			return goal, false, nil
		}

		goal.CurrentCount++
		goal.CurrentWeek++
		goal.WeeklyCount = 0
		goal.WeekOwnerDone = false
		goal.WeekPartnerDone = false
		if goal.CurrentCount >= goal.TargetWeeks {
			goal.IsCompleted = true
		}

		err := s.goals.Update(goal)
		if errors.Is(err, repository.ErrGoalVersionConflict) {
			goal, err = s.goals.ByID(goal.ID)
			if err != nil {
				return nil, false, err
			}
			continue
		}
		if err != nil {
			return nil, false, err
		}

		slog.Info("goal rolled over", "goal_id", goal.ID, "week", goal.CurrentWeek, "completed_weeks", goal.CurrentCount, "goal_completed", goal.IsCompleted)

		if goal.IsCompleted {
			goal, err := s.ensureUnlocked(ctx, goal)
			return goal, false, err
		}
		return goal, true, nil
	}

	return nil, false, repository.ErrGoalVersionConflict
}

// ensureUnlocked runs the unlock transition for a completed goal. The guard
// is the durable event row, not the goal's own flag: an interrupted
// transition may have written either half first, and both halves replay
// safely until the event and the flags agree. Safe to call repeatedly.
func (s *WeeklyService) ensureUnlocked(ctx context.Context, goal *model.Goal) (*model.Goal, error) {
	emitted, err := s.unlock.Emitted(goal.RedeemableUnitID)
	if err != nil {
		return nil, err
	}
	if emitted && goal.IsUnlocked {
		return goal, nil
	}

	_, err = s.unlock.MaybeUnlock(ctx, goal)
	if err != nil {
		return nil, err
	}

	return s.goals.ByID(goal.ID)
}
