package service_test

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pairfit/pairfit/internal/model"
	"github.com/pairfit/pairfit/internal/repository"
	"github.com/pairfit/pairfit/internal/service"
	"github.com/pairfit/pairfit/internal/testdb"
)

type fixture struct {
	db            *sqlx.DB
	units         repository.UnitRepository
	goals         repository.GoalRepository
	notifications repository.NotificationRepository
	users         repository.UserRepository

	unitService *service.UnitService
	link        *service.LinkService
	unlock      *service.UnlockService
	weekly      *service.WeeklyService
	redemption  *service.RedemptionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testdb.New(t)

	units := repository.NewUnitRepository(db)
	goals := repository.NewGoalRepository(db)
	notifications := repository.NewNotificationRepository(db)
	users := repository.NewUserRepository(db)

	email := service.NewEmailService("", "noreply@pairfit.test", "http://pairfit.test", "PairFit", true)
	link := service.NewLinkService(goals)
	unlock := service.NewUnlockService(goals, notifications,
		service.NewInAppSink(notifications),
		service.NewEmailSink(users, email),
	)
	weekly := service.NewWeeklyService(goals, link, unlock)
	redemption := service.NewRedemptionService(units, goals, link, 20, time.Millisecond)

	return &fixture{
		db:            db,
		units:         units,
		goals:         goals,
		notifications: notifications,
		users:         users,
		unitService:   service.NewUnitService(units),
		link:          link,
		unlock:        unlock,
		weekly:        weekly,
		redemption:    redemption,
	}
}

func (f *fixture) createUser(t *testing.T, id string) {
	t.Helper()
	err := f.users.Create(&model.User{
		ID:        id,
		Email:     id + "@pairfit.test",
		Name:      id,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

func (f *fixture) createUnit(t *testing.T, id string, sessionsPerWeek, targetWeeks int) *model.RedeemableUnit {
	t.Helper()
	unit, err := f.unitService.Ingest(id, sessionsPerWeek, targetWeeks)
	if err != nil {
		t.Fatalf("ingest unit %s: %v", id, err)
	}
	return unit
}
