package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/socialdeskapp/socialdesk/internal/models"
)

type actorContextKey struct{}

// RequireAuth authenticates the bearer token and puts the operator actor in
// the request context.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.respondJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "missing bearer token", Code: "UNAUTHORIZED"})
			return
		}

		actor, err := h.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			h.loggerFromContext(r.Context()).Warn("rejected bearer token", "error", err)
			h.respondJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "invalid token", Code: "UNAUTHORIZED"})
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromContext(ctx context.Context) models.Actor {
	if actor, ok := ctx.Value(actorContextKey{}).(models.Actor); ok {
		return actor
	}
	return models.SystemActor()
}
