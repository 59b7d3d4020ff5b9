// Package handlers provides the HTTP surface of the SocialDesk API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/socialdeskapp/socialdesk/internal/auth"
	"github.com/socialdeskapp/socialdesk/internal/cache"
	"github.com/socialdeskapp/socialdesk/internal/channels"
	"github.com/socialdeskapp/socialdesk/internal/config"
	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/logging"
	"github.com/socialdeskapp/socialdesk/internal/services"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

// Handlers provides HTTP request handlers for the SocialDesk API.
type Handlers struct {
	config        *config.Config
	db            *pgxpool.Pool
	orderService  *services.OrderService
	connector     *channels.Connector
	channelRouter *ChannelEventRouter
	cacheProvider cache.Provider
	tokens        *auth.TokenManager
	logger        *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	DB            *pgxpool.Pool
	OrderService  *services.OrderService
	Connector     *channels.Connector
	ChannelRouter *ChannelEventRouter
	CacheProvider cache.Provider
	Tokens        *auth.TokenManager
	Logger        *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.Connector == nil {
		return nil, fmt.Errorf("handlers dependencies: connector is required")
	}
	if deps.ChannelRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: channelRouter is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("handlers dependencies: tokens is required")
	}

	return &Handlers{
		config:        deps.Config,
		db:            deps.DB,
		orderService:  deps.OrderService,
		connector:     deps.Connector,
		channelRouter: deps.ChannelRouter,
		cacheProvider: deps.CacheProvider,
		tokens:        deps.Tokens,
		logger:        logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	h.respondJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondDomainError maps domain errors onto HTTP statuses. Unrecognized
// errors become opaque 500s so internals do not leak to clients.
func (h *Handlers) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.loggerFromContext(r.Context())

	var invalid *lifecycle.InvalidStateError
	var illegal *lifecycle.IllegalTransitionError
	var conflict *lifecycle.ConflictError

	switch {
	case errors.As(err, &invalid):
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: invalid.Error(), Code: "INVALID_STATE"})
	case errors.As(err, &illegal):
		h.respondJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Error: illegal.Error(), Code: "ILLEGAL_TRANSITION"})
	case errors.As(err, &conflict):
		h.respondJSON(w, r, http.StatusConflict, errorResponse{Error: conflict.Error(), Code: "CONFLICT"})
	case errors.Is(err, pgx.ErrNoRows):
		h.respondJSON(w, r, http.StatusNotFound, errorResponse{Error: "order not found", Code: "NOT_FOUND"})
	case errors.Is(err, services.ErrRefundNotAllowed):
		h.respondJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "REFUND_NOT_ALLOWED"})
	case errors.Is(err, services.ErrNoPaymentIntent):
		h.respondJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "NO_PAYMENT_INTENT"})
	default:
		logger.Error("request failed", "error", err)
		h.respondJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"})
	}
}
