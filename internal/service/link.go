package service

import (
	"errors"
	"log/slog"

	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
)

var (
	// ErrPartnerNotReady means the first redeemer's goal does not exist yet.
	// A recoverable wait-state: the caller retries after a short delay. The
	// unlinked goal is still fully usable on its own in the meantime.
	ErrPartnerNotReady = errors.New("partner goal not created yet")
)

// LinkService establishes and repairs the bidirectional link between the two
// goals sharing a redeemable unit. The link is written as two sequential
// single-document updates, so a crash between them leaves a half-linked pair.
// That state is transient: HealLink re-runs the missing half on any read.
type LinkService struct {
	goals repository.GoalRepository
}

func NewLinkService(goals repository.GoalRepository) *LinkService {
	return &LinkService{goals: goals}
}

// LinkIfSecond attaches newGoal to the first redeemer's goal for the same
// unit. Fixed write order: the new goal first, then the sibling. Each write is
// individually atomic and idempotent, so any prefix of the sequence can be
// safely replayed.
func (s *LinkService) LinkIfSecond(unitID string, newGoal *model.Goal, firstRedeemerID string) (*model.Goal, error) {
	sibling, err := s.goals.ByUnitAndOwner(unitID, firstRedeemerID)
	if errors.Is(err, repository.ErrGoalNotFound) {
		return nil, ErrPartnerNotReady
	}
	if err != nil {
		return nil, err
	}

	// Step 1: point the new goal at the sibling.
	err = s.goals.SetPartnerLink(newGoal.ID, sibling.OwnerUserID, sibling.ID)
	if err != nil {
		return nil, err
	}

	// Step 2: point the sibling back. A crash before this line leaves the
	// half-linked state HealLink repairs.
	err = s.goals.SetPartnerLink(sibling.ID, newGoal.OwnerUserID, newGoal.ID)
	if err != nil {
		return nil, err
	}

	return s.goals.ByID(newGoal.ID)
}

// HealLink verifies link symmetry for a goal on the read path and repairs any
// half-linked state before the goal is returned to a caller. Inconsistency is
// never surfaced; the repaired goal is re-read and returned.
func (s *LinkService) HealLink(goal *model.Goal) (*model.Goal, error) {
	if goal.Linked() {
		partner, err := s.goals.ByID(*goal.PartnerGoalID)
		if errors.Is(err, repository.ErrGoalNotFound) {
			slog.Warn("goal references missing partner", "goal_id", goal.ID, "partner_goal_id", *goal.PartnerGoalID)
			return goal, nil
		}
		if err != nil {
			return nil, err
		}

		if partner.PartnerGoalID == nil || *partner.PartnerGoalID != goal.ID {
			// Step 2 of the link write never landed. Re-run it.
			err = s.goals.SetPartnerLink(partner.ID, goal.OwnerUserID, goal.ID)
			if err != nil {
				return nil, err
			}
			slog.Info("repaired half-linked partner goal", "goal_id", partner.ID, "points_to", goal.ID)
		}
		return goal, nil
	}

	// Unlinked side: adopt a sibling that already points at us.
	siblings, err := s.goals.ByUnit(goal.RedeemableUnitID)
	if err != nil {
		return nil, err
	}
	for _, sibling := range siblings {
		if sibling.ID == goal.ID {
			continue
		}
		if sibling.PartnerGoalID != nil && *sibling.PartnerGoalID == goal.ID {
			err = s.goals.SetPartnerLink(goal.ID, sibling.OwnerUserID, sibling.ID)
			if err != nil {
				return nil, err
			}
			slog.Info("repaired half-linked goal", "goal_id", goal.ID, "points_to", sibling.ID)
			return s.goals.ByID(goal.ID)
		}
	}

	return goal, nil
}
