package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
	"github.com/pairfit/pairfit/internal/service"
)

// contendedUnitRepo always loses the compare-and-swap, standing in for a unit
// under permanent write contention.
type contendedUnitRepo struct {
	repository.UnitRepository
	casAttempts int
}

func (r *contendedUnitRepo) CompareAndSwap(*model.RedeemableUnit) error {
	r.casAttempts++
	return repository.ErrUnitVersionConflict
}

func TestRedeemPairThenThirdPartyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUnit(t, "unit-1", 3, 4)

	// First redeemer: goal created, unlinked.
	resA, err := f.redemption.Redeem(ctx, "unit-1", "user-a")
	if err != nil {
		t.Fatalf("redeem A: %v", err)
	}
	if !resA.IsFirstRedeemer {
		t.Error("A should be first redeemer")
	}
	if resA.Goal.Linked() {
		t.Error("A's goal should be unlinked before B redeems")
	}

	unit, _ := f.units.ByID("unit-1")
	if unit.RedemptionCount != 1 || unit.Status != model.UnitStatusPartiallyRedeemed {
		t.Errorf("after A: count %d status %s", unit.RedemptionCount, unit.Status)
	}

	// Second redeemer: goals linked symmetrically.
	resB, err := f.redemption.Redeem(ctx, "unit-1", "user-b")
	if err != nil {
		t.Fatalf("redeem B: %v", err)
	}
	if resB.IsFirstRedeemer {
		t.Error("B should not be first redeemer")
	}

	g1, _ := f.goals.ByID(resA.Goal.ID)
	g2, _ := f.goals.ByID(resB.Goal.ID)
	if g1.PartnerGoalID == nil || *g1.PartnerGoalID != g2.ID {
		t.Errorf("G1 partner link broken: %v", g1.PartnerGoalID)
	}
	if g2.PartnerGoalID == nil || *g2.PartnerGoalID != g1.ID {
		t.Errorf("G2 partner link broken: %v", g2.PartnerGoalID)
	}

	unit, _ = f.units.ByID("unit-1")
	if unit.RedemptionCount != 2 || unit.Status != model.UnitStatusFullyRedeemed {
		t.Errorf("after B: count %d status %s", unit.RedemptionCount, unit.Status)
	}

	// Third party: terminal capacity error.
	_, err = f.redemption.Redeem(ctx, "unit-1", "user-c")
	if !errors.Is(err, service.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestRedeemIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUnit(t, "unit-1", 3, 4)

	first, err := f.redemption.Redeem(ctx, "unit-1", "user-a")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	second, err := f.redemption.Redeem(ctx, "unit-1", "user-a")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed {
		t.Error("expected replay flag")
	}
	if second.Goal.ID != first.Goal.ID {
		t.Errorf("replay returned different goal: %s vs %s", second.Goal.ID, first.Goal.ID)
	}
	if !second.IsFirstRedeemer {
		t.Error("replay should preserve first-redeemer position")
	}

	unit, _ := f.units.ByID("unit-1")
	if unit.RedemptionCount != 1 {
		t.Errorf("replay must not increment counter, got %d", unit.RedemptionCount)
	}
}

func TestRedeemReplayRecreatesGoalAfterCrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUnit(t, "unit-1", 3, 4)

	res, err := f.redemption.Redeem(ctx, "unit-1", "user-a")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	// Simulate a crash after the unit claim but before goal creation by
	// deleting the goal row.
	_, err = f.db.Exec(`DELETE FROM goals WHERE id = $1`, res.Goal.ID)
	if err != nil {
		t.Fatalf("delete goal: %v", err)
	}

	replay, err := f.redemption.Redeem(ctx, "unit-1", "user-a")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed {
		t.Error("expected replay flag")
	}
	if replay.Goal == nil || replay.Goal.OwnerUserID != "user-a" {
		t.Fatal("replay should have recreated the goal")
	}

	unit, _ := f.units.ByID("unit-1")
	if unit.RedemptionCount != 1 {
		t.Errorf("recovery must not double-count, got %d", unit.RedemptionCount)
	}
}

func TestRedeemRetryBudgetExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUnit(t, "unit-1", 3, 4)

	const maxRetries = 3
	units := &contendedUnitRepo{UnitRepository: f.units}
	redemption := service.NewRedemptionService(units, f.goals, f.link, maxRetries, time.Microsecond)

	_, err := redemption.Redeem(ctx, "unit-1", "user-a")
	if !errors.Is(err, service.ErrRedemptionConflict) {
		t.Fatalf("expected ErrRedemptionConflict, got %v", err)
	}
	if units.casAttempts != maxRetries+1 {
		t.Errorf("expected %d claim attempts, got %d", maxRetries+1, units.casAttempts)
	}

	// An exhausted claim must leave no goal behind.
	_, err = f.goals.ByUnitAndOwner("unit-1", "user-a")
	if !errors.Is(err, repository.ErrGoalNotFound) {
		t.Fatalf("expected no goal after failed claim, got %v", err)
	}
}

func TestRedeemConcurrentCapacityInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUnit(t, "unit-1", 3, 4)

	const contenders = 4
	var wg sync.WaitGroup
	errs := make([]error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i)
			_, errs[i] = f.redemption.Redeem(ctx, "unit-1", userID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for i, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, service.ErrCapacityExceeded):
		case errors.Is(err, service.ErrRedemptionConflict):
		default:
			t.Errorf("contender %d unexpected error: %v", i, err)
		}
	}

	unit, err := f.units.ByID("unit-1")
	if err != nil {
		t.Fatalf("byID: %v", err)
	}
	if unit.RedemptionCount > unit.MaxRedemptions {
		t.Errorf("capacity invariant violated: %d redemptions", unit.RedemptionCount)
	}
	if unit.RedemptionCount != len(unit.RedeemedByUserIDs) {
		t.Errorf("counter %d does not match set size %d", unit.RedemptionCount, len(unit.RedeemedByUserIDs))
	}
	if successes != unit.RedemptionCount {
		t.Errorf("%d successful redeems but counter is %d", successes, unit.RedemptionCount)
	}
}
