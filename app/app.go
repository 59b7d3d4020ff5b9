// Package app wires configuration, stores, and services into a runnable unit.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/socialdeskapp/socialdesk/internal/auth"
	"github.com/socialdeskapp/socialdesk/internal/cache"
	"github.com/socialdeskapp/socialdesk/internal/channels"
	"github.com/socialdeskapp/socialdesk/internal/config"
	"github.com/socialdeskapp/socialdesk/internal/crypto"
	"github.com/socialdeskapp/socialdesk/internal/db"
	"github.com/socialdeskapp/socialdesk/internal/email"
	"github.com/socialdeskapp/socialdesk/internal/handlers"
	"github.com/socialdeskapp/socialdesk/internal/logging"
	"github.com/socialdeskapp/socialdesk/internal/payments"
	"github.com/socialdeskapp/socialdesk/internal/seed"
	"github.com/socialdeskapp/socialdesk/internal/services"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: cfg.SentryTracesSampleRate,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	channelStore, err := db.NewChannelStore(database, encryptor)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize channel store: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.AuthTokenSecret, cfg.AuthTokenTTL)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token manager: %w", err)
	}

	connector, err := channels.NewConnector(cfg, channelStore, logger.With("component", "channel_connector"))
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize channel connector: %w", err)
	}

	var refunds services.RefundProvider
	if cfg.StripeSecretKey != "" {
		refunds = payments.NewClient(cfg.StripeSecretKey)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.ResendAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}

	orderService := services.NewOrderService(
		orderStore,
		refunds,
		emailProvider,
		logger.With("component", "order_service"),
	)
	channelRouter := handlers.NewChannelEventRouter(orderService, logger.With("component", "channel_router"))

	h, err := handlers.New(handlers.Dependencies{
		Config:        cfg,
		DB:            database,
		OrderService:  orderService,
		Connector:     connector,
		ChannelRouter: channelRouter,
		CacheProvider: cacheProvider,
		Tokens:        tokens,
		Logger:        logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if cfg.SeedFile != "" {
		orders, err := seed.Load(cfg.SeedFile)
		if err != nil {
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to load seed file: %w", err)
		}
		if err := seed.Apply(startupCtx, orderStore, orders, logger); err != nil {
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to apply seed data: %w", err)
		}
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	sentry.Flush(2 * time.Second)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if cfg.SentryDSN != "" {
		sentryHandler := sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError},
		}.NewSentryHandler(context.Background())
		handler = logging.MultiHandler(handler, sentryHandler)
	}

	return slog.New(handler)
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
