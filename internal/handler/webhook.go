package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pairfit/pairfit/internal/service"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// WebhookHandler is the input boundary: the payment processor signals a
// completed gift purchase and this endpoint records the resulting redeemable
// unit. The engine never creates units on its own.
type WebhookHandler struct {
	unitService   *service.UnitService
	webhookSecret string
}

func NewWebhookHandler(unitService *service.UnitService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		unitService:   unitService,
		webhookSecret: webhookSecret,
	}
}

// HandlePayment handles POST /webhooks/payment.
func (h *WebhookHandler) HandlePayment(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	err = h.verifySignature(payload, r.Header)
	if err != nil {
		slog.Warn("payment webhook signature rejected", "error", err)
		respondError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			UnitID          string `json:"unit_id"`
			SessionsPerWeek int    `json:"sessions_per_week"`
			TargetWeeks     int    `json:"target_weeks"`
		} `json:"data"`
	}

	err = json.Unmarshal(payload, &event)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	slog.Info("payment webhook received", "event_type", event.Type)

	switch event.Type {
	case "gift.purchased":
		if event.Data.UnitID == "" {
			respondError(w, http.StatusBadRequest, "unit_id is required")
			return
		}

		unit, err := h.unitService.Ingest(event.Data.UnitID, event.Data.SessionsPerWeek, event.Data.TargetWeeks)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to record unit")
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{"unit_id": unit.ID, "status": unit.Status})
	default:
		slog.Warn("payment webhook unknown event type", "event_type", event.Type)
		respondJSON(w, http.StatusOK, map[string]any{"ignored": true})
	}
}

func (h *WebhookHandler) verifySignature(payload []byte, headers http.Header) error {
	if h.webhookSecret == "" {
		slog.Warn("no payment webhook secret configured, skipping signature verification")
		return nil
	}

	wh, err := standardwebhooks.NewWebhookRaw([]byte(h.webhookSecret))
	if err != nil {
		return fmt.Errorf("failed to create webhook verifier: %w", err)
	}

	err = wh.Verify(payload, headers)
	if err != nil {
		return fmt.Errorf("invalid webhook signature: %w", err)
	}

	return nil
}
