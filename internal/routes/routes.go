package routes

import (
	"net/http"

	"github.com/pairfit/pairfit/internal/app"
	"github.com/pairfit/pairfit/internal/handler"
	"github.com/pairfit/pairfit/internal/middleware"
)

func SetupRoutes(a *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(a.DB)
	redemption := handler.NewRedemptionHandler(a.RedemptionService, a.UnitService)
	goal := handler.NewGoalHandler(a.WeeklyService)
	notification := handler.NewNotificationHandler(a.NotificationRepo)
	webhook := handler.NewWebhookHandler(a.UnitService, a.Cfg.PaymentWebhookSecret)

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", health.Health)

	// Input boundary: payment-completion events (rate limited)
	webhookLimiter := middleware.RateLimitWebhook()
	mux.HandleFunc("POST /webhooks/payment", webhookLimiter(webhook.HandlePayment))

	// Units
	mux.HandleFunc("GET /api/units/{id}", middleware.RequireAuth(redemption.ShowUnit))
	mux.HandleFunc("POST /api/units/{id}/redeem", middleware.RequireAuth(redemption.Redeem))

	// Goals
	mux.HandleFunc("GET /api/goals", middleware.RequireAuth(goal.ListGoals))
	mux.HandleFunc("GET /api/goals/{id}", middleware.RequireAuth(goal.ShowGoal))
	mux.HandleFunc("POST /api/goals/{id}/sessions", middleware.RequireAuth(goal.LogSession))

	// Notifications (in-app sink read path)
	mux.HandleFunc("GET /api/notifications", middleware.RequireAuth(notification.ListNotifications))
	mux.HandleFunc("POST /api/notifications/{id}/read", middleware.RequireAuth(notification.MarkRead))

	return middleware.Chain(mux,
		middleware.RequestLogging,
		middleware.Auth(a.Cfg.JWTSecret),
	)
}
