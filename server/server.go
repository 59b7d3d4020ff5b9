// Package server owns the HTTP server and routing table.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/socialdeskapp/socialdesk/internal/config"
	"github.com/socialdeskapp/socialdesk/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/channel", h.ChannelWebhook).Methods("POST").Name("webhooks.channel")

	// JSON API - requires a bearer token
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.RequireAuth)
	api.HandleFunc("/orders", h.ListOrders).Methods("GET").Name("api.orders.list")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("api.orders.get")
	api.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods("POST").Name("api.orders.status")
	api.HandleFunc("/orders/{id}/payment", h.UpdatePaymentStatus).Methods("POST").Name("api.orders.payment")
	api.HandleFunc("/orders/{id}/refund", h.RefundOrder).Methods("POST").Name("api.orders.refund")
	api.HandleFunc("/channels", h.ChannelStatuses).Methods("GET").Name("api.channels.list")
	api.HandleFunc("/channels/{channel}/connect", h.StartChannelConnect).Methods("POST").Name("api.channels.connect")
	api.HandleFunc("/channels/{channel}", h.DisconnectChannel).Methods("DELETE").Name("api.channels.disconnect")

	// OAuth providers redirect here; no bearer token on the callback
	r.HandleFunc("/channels/callback", h.ChannelConnectCallback).Methods("GET").Name("channels.callback")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	return r
}
