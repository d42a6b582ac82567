package repository_test

import (
	"errors"
	"testing"
	"time"

	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
	"github.com/pairfit/pairfit/internal/testdb"
)

func newGoal(id, owner, unitID string) *model.Goal {
	now := time.Now()
	return &model.Goal{
		ID:               id,
		OwnerUserID:      owner,
		RedeemableUnitID: unitID,
		SessionsPerWeek:  3,
		CurrentWeek:      1,
		TargetWeeks:      4,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestGoalCreateAndLookups(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewGoalRepository(db)

	g1 := newGoal("g1", "user-a", "unit-1")
	g2 := newGoal("g2", "user-b", "unit-1")
	if err := repo.Create(g1); err != nil {
		t.Fatalf("create g1: %v", err)
	}
	if err := repo.Create(g2); err != nil {
		t.Fatalf("create g2: %v", err)
	}

	got, err := repo.ByUnitAndOwner("unit-1", "user-b")
	if err != nil {
		t.Fatalf("byUnitAndOwner: %v", err)
	}
	if got.ID != "g2" {
		t.Errorf("expected g2, got %s", got.ID)
	}

	all, err := repo.ByUnit("unit-1")
	if err != nil {
		t.Fatalf("byUnit: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 goals for unit, got %d", len(all))
	}

	_, err = repo.ByID("missing")
	if !errors.Is(err, repository.ErrGoalNotFound) {
		t.Fatalf("expected ErrGoalNotFound, got %v", err)
	}
}

func TestGoalUpdateVersionConflict(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewGoalRepository(db)

	if err := repo.Create(newGoal("g1", "user-a", "unit-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := repo.ByID("g1")
	second, _ := repo.ByID("g1")

	first.WeeklyCount = 1
	if err := repo.Update(first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second.WeeklyCount = 2
	err := repo.Update(second)
	if !errors.Is(err, repository.ErrGoalVersionConflict) {
		t.Fatalf("expected ErrGoalVersionConflict, got %v", err)
	}

	got, _ := repo.ByID("g1")
	if got.WeeklyCount != 1 {
		t.Errorf("lost update: weekly count %d", got.WeeklyCount)
	}
}

func TestGoalSetPartnerLinkIdempotent(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewGoalRepository(db)

	if err := repo.Create(newGoal("g1", "user-a", "unit-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.SetPartnerLink("g1", "user-b", "g2"); err != nil {
			t.Fatalf("setPartnerLink #%d: %v", i+1, err)
		}
	}

	got, _ := repo.ByID("g1")
	if got.PartnerUserID == nil || *got.PartnerUserID != "user-b" {
		t.Errorf("expected partner user user-b, got %v", got.PartnerUserID)
	}
	if got.PartnerGoalID == nil || *got.PartnerGoalID != "g2" {
		t.Errorf("expected partner goal g2, got %v", got.PartnerGoalID)
	}
}

func TestGoalSetPartnerCompletedWeekGuard(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewGoalRepository(db)

	if err := repo.Create(newGoal("g1", "user-a", "unit-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Stale week: no-op, no error.
	if err := repo.SetPartnerCompleted("g1", 99); err != nil {
		t.Fatalf("stale setPartnerCompleted: %v", err)
	}
	got, _ := repo.ByID("g1")
	if got.WeekPartnerDone {
		t.Error("stale week write should not set the flag")
	}

	// Matching week: flag set.
	if err := repo.SetPartnerCompleted("g1", 1); err != nil {
		t.Fatalf("setPartnerCompleted: %v", err)
	}
	got, _ = repo.ByID("g1")
	if !got.WeekPartnerDone {
		t.Error("expected partner flag set for current week")
	}
}

func TestGoalSetUnlocked(t *testing.T) {
	db := testdb.New(t)
	repo := repository.NewGoalRepository(db)

	if err := repo.Create(newGoal("g1", "user-a", "unit-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.SetUnlocked("g1"); err != nil {
			t.Fatalf("setUnlocked #%d: %v", i+1, err)
		}
	}

	got, _ := repo.ByID("g1")
	if !got.IsUnlocked {
		t.Error("expected goal unlocked")
	}
}
