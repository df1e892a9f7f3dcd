// Package main is the entrypoint for the Pairlink API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pairlink/pairlink/internal/auth"
	"github.com/pairlink/pairlink/internal/config"
	"github.com/pairlink/pairlink/internal/entitlement"
	"github.com/pairlink/pairlink/internal/handler"
	"github.com/pairlink/pairlink/internal/identity"
	"github.com/pairlink/pairlink/internal/metrics"
	"github.com/pairlink/pairlink/internal/middleware"
	"github.com/pairlink/pairlink/internal/pairing"
	"github.com/pairlink/pairlink/internal/reconcile"
	"github.com/pairlink/pairlink/internal/repository"
	"github.com/pairlink/pairlink/internal/server"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize account store
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize identity store
	identityStore, err := identity.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer identityStore.Close()
	logger.Info("connected to Redis")

	// Initialize services
	metricsRecorder := metrics.NewNoop()
	pairingService := pairing.NewService(repo, identityStore, logger, metricsRecorder)
	saga := entitlement.NewSaga(pairingService, identityStore, logger, metricsRecorder)
	reconciler := reconcile.NewReconciler(identityStore, pairingService, logger, metricsRecorder, reconcile.Config{
		PageSize:      cfg.IdentityPageSize,
		Workers:       cfg.ReconcileWorkers,
		InactiveAfter: cfg.InactiveAfter,
	})

	// Initialize handlers
	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, identityStore)
	pairingHandler := handler.NewPairingHandler(pairingService, saga, logger)
	webhookHandler := handler.NewPaymentWebhookHandler(saga, cfg.PaymentWebhookSecret, logger)
	reconcileHandler := handler.NewReconcileHandler(reconciler, logger)

	verifier := auth.NewVerifier(cfg.AuthTokenSecret)

	// Setup router
	r := setupRouter(h, healthHandler, pairingHandler, webhookHandler, reconcileHandler, verifier, logger)

	// Create server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Start the reconciliation scheduler alongside the server
	if cfg.ReconcileEnabled {
		scheduler := reconcile.NewScheduler(reconciler, cfg.ReconcileInterval, logger)
		go func() {
			if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("reconciliation scheduler stopped", "error", err)
			}
		}()
		srv.OnShutdown("reconcile-scheduler", scheduler.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	pairingHandler *handler.PairingHandler,
	webhookHandler *handler.PaymentWebhookHandler,
	reconcileHandler *handler.ReconcileHandler,
	verifier *auth.Verifier,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Root info endpoint
	r.Get("/", h.Hello)

	// Payment provider webhook: no bearer auth, authenticated by
	// HMAC signature over the raw body instead.
	r.Post("/webhooks/payment", webhookHandler.HandleEvent)

	// API v1 routes (require authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logger))

		r.Route("/partner", func(r chi.Router) {
			r.Post("/requests", pairingHandler.SendRequest)
			r.Delete("/requests/outgoing", pairingHandler.CancelRequest)
			r.Post("/requests/accept", pairingHandler.AcceptRequest)
			r.Post("/requests/reject", pairingHandler.RejectRequest)
			r.Post("/link", pairingHandler.Link)
			r.Delete("/", pairingHandler.RemovePartner)
		})

		r.Delete("/account", pairingHandler.DeleteAccount)

		r.Post("/admin/reconcile/{job}", reconcileHandler.Run)
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
