package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pairfit/pairfit/internal/service"
)

// failingSink always errors, standing in for a broken outbound channel.
type failingSink struct {
	calls int
}

func (s *failingSink) Notify(context.Context, *service.UnlockNotification) error {
	s.calls++
	return errors.New("smtp down")
}

type recordingSink struct {
	got []*service.UnlockNotification
}

func (s *recordingSink) Notify(_ context.Context, n *service.UnlockNotification) error {
	s.got = append(s.got, n)
	return nil
}

func completePair(t *testing.T, f *fixture, unitID string) (goalA, goalB string) {
	t.Helper()
	f.createUser(t, "alice")
	f.createUser(t, "bob")
	f.createUnit(t, unitID, 1, 1)

	ctx := context.Background()
	resA, err := f.redemption.Redeem(ctx, unitID, "alice")
	if err != nil {
		t.Fatalf("redeem alice: %v", err)
	}
	resB, err := f.redemption.Redeem(ctx, unitID, "bob")
	if err != nil {
		t.Fatalf("redeem bob: %v", err)
	}

	for _, id := range []string{resA.Goal.ID, resB.Goal.ID} {
		goal, err := f.goals.ByID(id)
		if err != nil {
			t.Fatalf("load goal: %v", err)
		}
		goal.IsCompleted = true
		goal.WeekOwnerDone = true
		goal.WeekPartnerDone = true
		if err := f.goals.Update(goal); err != nil {
			t.Fatalf("mark goal completed: %v", err)
		}
	}
	return resA.Goal.ID, resB.Goal.ID
}

func TestMaybeUnlockNotifiesBothPartners(t *testing.T) {
	f := newFixture(t)
	rec := &recordingSink{}
	unlock := service.NewUnlockService(f.goals, f.notifications, rec)

	goalA, goalB := completePair(t, f, "unit-1")

	goal, err := f.goals.ByID(goalA)
	if err != nil {
		t.Fatalf("load goal: %v", err)
	}
	won, err := unlock.MaybeUnlock(context.Background(), goal)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !won {
		t.Fatal("expected first unlock call to win")
	}

	if len(rec.got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rec.got))
	}
	byUser := map[string]*service.UnlockNotification{}
	for _, n := range rec.got {
		byUser[n.UserID] = n
	}
	if n := byUser["alice"]; n == nil || n.GoalID != goalA || n.PartnerGoalID != goalB || n.PartnerUserID != "bob" {
		t.Errorf("alice notification wrong: %+v", n)
	}
	if n := byUser["bob"]; n == nil || n.GoalID != goalB || n.PartnerGoalID != goalA || n.PartnerUserID != "alice" {
		t.Errorf("bob notification wrong: %+v", n)
	}

	for _, id := range []string{goalA, goalB} {
		g, err := f.goals.ByID(id)
		if err != nil {
			t.Fatalf("reload goal: %v", err)
		}
		if !g.IsUnlocked {
			t.Errorf("goal %s not marked unlocked", id)
		}
	}
}

func TestMaybeUnlockSecondCallerLoses(t *testing.T) {
	f := newFixture(t)
	rec := &recordingSink{}
	unlock := service.NewUnlockService(f.goals, f.notifications, rec)

	goalA, goalB := completePair(t, f, "unit-1")

	ctx := context.Background()
	a, _ := f.goals.ByID(goalA)
	b, _ := f.goals.ByID(goalB)

	won, err := unlock.MaybeUnlock(ctx, a)
	if err != nil || !won {
		t.Fatalf("first call: won=%v err=%v", won, err)
	}
	won, err = unlock.MaybeUnlock(ctx, b)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if won {
		t.Error("second caller must not win the unlock event")
	}
	if len(rec.got) != 2 {
		t.Errorf("expected no extra notifications, got %d total", len(rec.got))
	}
}

func TestMaybeUnlockSkipsIncompletePair(t *testing.T) {
	f := newFixture(t)
	rec := &recordingSink{}
	unlock := service.NewUnlockService(f.goals, f.notifications, rec)

	f.createUser(t, "alice")
	f.createUser(t, "bob")
	f.createUnit(t, "unit-1", 1, 1)
	ctx := context.Background()
	resA, err := f.redemption.Redeem(ctx, "unit-1", "alice")
	if err != nil {
		t.Fatalf("redeem alice: %v", err)
	}
	if _, err := f.redemption.Redeem(ctx, "unit-1", "bob"); err != nil {
		t.Fatalf("redeem bob: %v", err)
	}

	// Only alice's side is completed.
	goal, _ := f.goals.ByID(resA.Goal.ID)
	goal.IsCompleted = true
	if err := f.goals.Update(goal); err != nil {
		t.Fatalf("update: %v", err)
	}

	won, err := unlock.MaybeUnlock(ctx, goal)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if won || len(rec.got) != 0 {
		t.Errorf("unlock must wait for both sides: won=%v notifications=%d", won, len(rec.got))
	}
}

func TestSinkFailureDoesNotBlockOtherSinks(t *testing.T) {
	f := newFixture(t)
	failing := &failingSink{}
	rec := &recordingSink{}
	// Failing sink runs first; the recording sink must still be attempted.
	unlock := service.NewUnlockService(f.goals, f.notifications, failing, rec)

	goalA, _ := completePair(t, f, "unit-1")

	goal, _ := f.goals.ByID(goalA)
	won, err := unlock.MaybeUnlock(context.Background(), goal)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !won {
		t.Fatal("sink failures must not fail the unlock")
	}
	if failing.calls != 2 {
		t.Errorf("failing sink attempts = %d, want 2", failing.calls)
	}
	if len(rec.got) != 2 {
		t.Errorf("recording sink deliveries = %d, want 2", len(rec.got))
	}
}
