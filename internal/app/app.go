package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pairfit/pairfit/internal/config"
	"github.com/pairfit/pairfit/internal/db"
	"github.com/pairfit/pairfit/internal/repository"
	"github.com/pairfit/pairfit/internal/service"
)

type App struct {
	Cfg               *config.Config
	DB                *sqlx.DB
	UnitService       *service.UnitService
	RedemptionService *service.RedemptionService
	LinkService       *service.LinkService
	WeeklyService     *service.WeeklyService
	UnlockService     *service.UnlockService
	EmailService      *service.EmailService
	NotificationRepo  repository.NotificationRepository
	UserRepo          repository.UserRepository
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	unitRepository := repository.NewUnitRepository(database)
	goalRepository := repository.NewGoalRepository(database)
	notificationRepository := repository.NewNotificationRepository(database)
	userRepository := repository.NewUserRepository(database)

	// Services
	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	unitService := service.NewUnitService(unitRepository)
	linkService := service.NewLinkService(goalRepository)
	unlockService := service.NewUnlockService(
		goalRepository,
		notificationRepository,
		service.NewInAppSink(notificationRepository),
		service.NewEmailSink(userRepository, emailService),
	)
	weeklyService := service.NewWeeklyService(goalRepository, linkService, unlockService)
	redemptionService := service.NewRedemptionService(
		unitRepository,
		goalRepository,
		linkService,
		cfg.RedeemMaxRetries,
		cfg.RedeemBackoffBase,
	)

	return &App{
		Cfg:               cfg,
		DB:                database,
		UnitService:       unitService,
		RedemptionService: redemptionService,
		LinkService:       linkService,
		WeeklyService:     weeklyService,
		UnlockService:     unlockService,
		EmailService:      emailService,
		NotificationRepo:  notificationRepository,
		UserRepo:          userRepository,
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
