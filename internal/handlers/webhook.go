package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/socialdeskapp/socialdesk/internal/cache"
	"github.com/socialdeskapp/socialdesk/internal/channels"
)

// ChannelWebhook receives signed order and payment events from the
// messaging channels. Events are idempotent by event id.
func (h *Handlers) ChannelWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	payload, err := channels.ReadWebhookPayload(r, h.config.ChannelWebhookSecret)
	if err != nil {
		logger.Error("failed to read channel webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	var envelope struct {
		EventID string `json:"eventId"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.EventID == "" {
		logger.Error("missing channel event id")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}

	cacheKey := cache.WebhookKey("channel", envelope.EventID)
	if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		logger.Info("webhook already processed", "event_id", envelope.EventID)
		w.WriteHeader(http.StatusOK)
		return
	}

	processErr := h.channelRouter.Handle(ctx, payload)

	if processErr == nil {
		if err := h.cacheProvider.Set(ctx, cacheKey, "processed", 24*time.Hour); err != nil {
			logger.Error("failed to mark webhook as processed in cache", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	logger.Error("failed to process channel webhook", "error", processErr, "event_id", envelope.EventID)
	http.Error(w, "Processing failed", http.StatusInternalServerError)
}
