package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vasiliy-maslov/storefront-payments/internal/config"
	"github.com/vasiliy-maslov/storefront-payments/internal/db"
	"github.com/vasiliy-maslov/storefront-payments/internal/handler"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
	"github.com/vasiliy-maslov/storefront-payments/internal/notification"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
	"github.com/vasiliy-maslov/storefront-payments/internal/payment"
	"github.com/vasiliy-maslov/storefront-payments/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Storefront API stopped with error")
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogger(cfg.App)
	decimal.MarshalJSONWithoutQuotes = true

	log.Info().Str("env", cfg.App.Env).Str("store", cfg.Store.Driver).Msg("Storefront API starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway := payment.NewMercadoPagoClient(payment.Config{
		BaseURL:             cfg.MercadoPago.BaseURL,
		AccessToken:         cfg.MercadoPago.AccessToken,
		Currency:            cfg.MercadoPago.Currency,
		StatementDescriptor: cfg.MercadoPago.StatementDescriptor,
		FrontendURL:         cfg.App.FrontendURL,
		BackendURL:          cfg.App.BackendURL,
		Timeout:             cfg.MercadoPago.Timeout,
	})

	var sender notification.Sender = notification.LogSender{}
	if cfg.Email.ResendAPIKey != "" {
		sender = notification.NewResendSender(cfg.Email.ResendBaseURL, cfg.Email.ResendAPIKey, cfg.Email.From)
	} else {
		log.Warn().Msg("RESEND_API_KEY not set, notification mail will only be logged")
	}
	dispatcher := notification.NewDispatcher(sender, notification.Config{
		Workers:        cfg.Notifications.Workers,
		QueueSize:      cfg.Notifications.QueueSize,
		MaxAttempts:    cfg.Notifications.MaxAttempts,
		BaseBackoff:    cfg.Notifications.BaseBackoff,
		AttemptTimeout: cfg.Notifications.AttemptTimeout,
		AdminEmail:     cfg.Email.AdminEmail,
	})

	svc := lifecycle.NewService(repo, gateway, dispatcher, lifecycle.Config{
		ReconcileTimeout:   cfg.Lifecycle.ReconcileTimeout,
		MaxConflictRetries: cfg.Lifecycle.MaxConflictRetries,
		MaxNumberAttempts:  cfg.Lifecycle.MaxNumberAttempts,
	})

	routerCfg := transport.RouterConfig{
		Name:           cfg.App.Name,
		Version:        cfg.App.Version,
		RequestTimeout: cfg.App.RequestTimeout,
		WebhookSecret:  cfg.MercadoPago.WebhookSecret,
	}
	if cfg.Admin.Enabled() {
		routerCfg.Admin = handler.NewAdminAuthenticator(cfg.Admin.PasswordHash, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	} else {
		log.Warn().Msg("Admin routes disabled: ADMIN_PASSWORD_HASH and ADMIN_JWT_SECRET not set")
	}
	if cfg.MercadoPago.WebhookSecret == "" {
		log.Warn().Msg("MP_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(svc, routerCfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.App.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// The dispatcher outlives the server so requests still in flight during
	// shutdown can enqueue.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		stopDispatch()
		if err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Storefront API stopped gracefully")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (order.Repository, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn().Msg("Using in-memory order store, orders are lost on restart")
		return order.NewMemoryRepository(), func() {}, nil
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.ApplyMigrations(pg.Pool); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return order.NewRepository(pg.Pool), pg.Close, nil
}

func setupLogger(app config.AppConfig) {
	level, err := zerolog.ParseLevel(app.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if app.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.With().Str("service", app.Name).Logger()
}
