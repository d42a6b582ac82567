package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
)

// UnlockNotification is the per-user unlock event handed to delivery sinks.
// Redelivery is safe: consumers dedupe on UnitID.
type UnlockNotification struct {
	UserID        string
	GoalID        string
	PartnerGoalID string
	PartnerUserID string
	UnitID        string
}

// NotificationSink delivers an unlock notification over one channel.
type NotificationSink interface {
	Notify(ctx context.Context, n *UnlockNotification) error
}

// UnlockService detects the moment both partners' goals are completed and
// emits the unlock event exactly once per unit. Delivery is a fan-out: every
// configured sink is attempted for every notification, so a misconfigured
// email channel cannot suppress the durable in-app record.
type UnlockService struct {
	goals         repository.GoalRepository
	notifications repository.NotificationRepository
	sinks         []NotificationSink
}

func NewUnlockService(goals repository.GoalRepository, notifications repository.NotificationRepository, sinks ...NotificationSink) *UnlockService {
	return &UnlockService{
		goals:         goals,
		notifications: notifications,
		sinks:         sinks,
	}
}

// MaybeUnlock fires the unlock transition if both sides of the pair report
// completed. The partner goal is re-read so the decision is never made on a
// stale local copy. Returns true when this call won the unlock-event insert.
func (s *UnlockService) MaybeUnlock(ctx context.Context, goal *model.Goal) (bool, error) {
	if !goal.IsCompleted || !goal.Linked() {
		return false, nil
	}

	partner, err := s.goals.ByID(*goal.PartnerGoalID)
	if err != nil {
		return false, err
	}
	if !partner.IsCompleted {
		return false, nil
	}

	// Both confirmed. The event row is the durable record of the transition
	// and goes in first: a crash before the flag writes leaves a state the
	// next read replays, since the flag writes below are idempotent.
	inserted, err := s.notifications.CreateUnlockEvent(&model.UnlockEvent{
		UnitID:        goal.RedeemableUnitID,
		GoalID:        goal.ID,
		PartnerGoalID: partner.ID,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return false, err
	}

	err = s.goals.SetUnlocked(goal.ID)
	if err != nil {
		return false, err
	}
	err = s.goals.SetUnlocked(partner.ID)
	if err != nil {
		return false, err
	}

	if !inserted {
		// Another path already emitted the event for this unit.
		return false, nil
	}

	slog.Info("reward unlocked", "unit_id", goal.RedeemableUnitID, "goal_id", goal.ID, "partner_goal_id", partner.ID)

	for _, n := range []*UnlockNotification{
		{
			UserID:        goal.OwnerUserID,
			GoalID:        goal.ID,
			PartnerGoalID: partner.ID,
			PartnerUserID: partner.OwnerUserID,
			UnitID:        goal.RedeemableUnitID,
		},
		{
			UserID:        partner.OwnerUserID,
			GoalID:        partner.ID,
			PartnerGoalID: goal.ID,
			PartnerUserID: goal.OwnerUserID,
			UnitID:        goal.RedeemableUnitID,
		},
	} {
		s.fanOut(ctx, n)
	}

	return true, nil
}

// Emitted reports whether the unlock event for the unit has already been
// recorded. Completed-goal reads key on this rather than the goal flags, so
// a transition interrupted at any point is re-driven.
func (s *UnlockService) Emitted(unitID string) (bool, error) {
	return s.notifications.HasUnlockEvent(unitID)
}

// fanOut attempts every sink. Sink failures are logged, never propagated: the
// unlock event row already exists, so a delivery subsystem can re-drive any
// channel later.
func (s *UnlockService) fanOut(ctx context.Context, n *UnlockNotification) {
	for _, sink := range s.sinks {
		err := sink.Notify(ctx, n)
		if err != nil {
			slog.Warn("unlock notification sink failed", "user_id", n.UserID, "unit_id", n.UnitID, "error", err)
		}
	}
}

// InAppSink records the unlock as a durable in-app notification row. This is
// the fallback channel that must succeed even when outbound delivery cannot.
type InAppSink struct {
	notifications repository.NotificationRepository
}

func NewInAppSink(notifications repository.NotificationRepository) *InAppSink {
	return &InAppSink{notifications: notifications}
}

func (s *InAppSink) Notify(_ context.Context, n *UnlockNotification) error {
	return s.notifications.Create(&model.Notification{
		ID:            uuid.New().String(),
		UserID:        n.UserID,
		Kind:          model.NotificationKindUnlock,
		GoalID:        n.GoalID,
		PartnerGoalID: n.PartnerGoalID,
		PartnerUserID: n.PartnerUserID,
		UnitID:        n.UnitID,
		IsRead:        false,
		CreatedAt:     time.Now(),
	})
}

// EmailSink delivers the unlock over email. User records are resolved here;
// a missing user or unconfigured email service only fails this sink.
type EmailSink struct {
	users repository.UserRepository
	email *EmailService
}

func NewEmailSink(users repository.UserRepository, email *EmailService) *EmailSink {
	return &EmailSink{users: users, email: email}
}

func (s *EmailSink) Notify(_ context.Context, n *UnlockNotification) error {
	user, err := s.users.ByID(n.UserID)
	if err != nil {
		return err
	}

	partnerName := ""
	partner, err := s.users.ByID(n.PartnerUserID)
	if err == nil {
		partnerName = partner.Name
	}

	return s.email.SendRewardUnlockedEmail(user.Email, user.Name, partnerName)
}
