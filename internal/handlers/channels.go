package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/socialdeskapp/socialdesk/internal/cache"
	"github.com/socialdeskapp/socialdesk/internal/channels"
	"github.com/socialdeskapp/socialdesk/internal/models"
)

// oauthStateTTL bounds how long a started connect flow stays completable.
const oauthStateTTL = 10 * time.Minute

// StartChannelConnect begins the OAuth flow for a messaging channel and
// returns the authorization URL for the client to open. The generated state
// is held until the callback and is valid for one completion.
func (h *Handlers) StartChannelConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := models.Channel(mux.Vars(r)["channel"])

	result, err := h.connector.StartConnect(ctx, channel)
	if err != nil {
		if errors.Is(err, channels.ErrConnectUnavailable) {
			h.respondJSON(w, r, http.StatusServiceUnavailable, errorResponse{
				Error: "channel connections are not configured",
				Code:  "CONNECT_UNAVAILABLE",
			})
			return
		}
		h.respondDomainError(w, r, err)
		return
	}

	if err := h.cacheProvider.Set(ctx, cache.OAuthStateKey(result.State), string(channel), oauthStateTTL); err != nil {
		h.loggerFromContext(ctx).Error("failed to store oauth state", "error", err)
		h.respondJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"})
		return
	}

	h.respondJSON(w, r, http.StatusOK, map[string]string{
		"authorizationUrl": result.AuthorizationURL,
		"state":            result.State,
	})
}

// ChannelConnectCallback completes the OAuth flow. The state must match one
// issued by StartChannelConnect; the channel it was issued for is bound to
// the state, not trusted from the request.
func (h *Handlers) ChannelConnectCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")

	if state == "" {
		h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: "missing oauth state", Code: "BAD_REQUEST"})
		return
	}

	stored, err := h.cacheProvider.Get(ctx, cache.OAuthStateKey(state))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			h.loggerFromContext(ctx).Warn("oauth callback with unknown state")
			h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: "unknown or expired oauth state", Code: "BAD_REQUEST"})
			return
		}
		h.respondDomainError(w, r, err)
		return
	}

	// One completion per issued state.
	if err := h.cacheProvider.Delete(ctx, cache.OAuthStateKey(state)); err != nil {
		h.loggerFromContext(ctx).Warn("failed to clear oauth state", "error", err)
	}

	if err := h.connector.CompleteConnect(ctx, models.Channel(stored), code); err != nil {
		if errors.Is(err, channels.ErrInvalidCode) {
			h.respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: "missing authorization code", Code: "BAD_REQUEST"})
			return
		}
		h.respondDomainError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, map[string]string{"status": "connected"})
}

func (h *Handlers) ChannelStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.connector.StatusList(r.Context())
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, map[string]any{"channels": statuses})
}

func (h *Handlers) DisconnectChannel(w http.ResponseWriter, r *http.Request) {
	channel := models.Channel(mux.Vars(r)["channel"])

	if err := h.connector.Disconnect(r.Context(), channel); err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	h.respondJSON(w, r, http.StatusOK, map[string]string{"status": "disconnected"})
}
