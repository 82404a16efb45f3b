package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"

	"github.com/parishdesk/parishdesk/internal/announcements"
	"github.com/parishdesk/parishdesk/internal/app"
	"github.com/parishdesk/parishdesk/internal/auth"
	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/navigation"
	"github.com/parishdesk/parishdesk/internal/notifications"
	"github.com/parishdesk/parishdesk/internal/observability"
	"github.com/parishdesk/parishdesk/internal/platform/cache"
	"github.com/parishdesk/parishdesk/internal/platform/db"
	"github.com/parishdesk/parishdesk/internal/profiles"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/internal/users"
	"github.com/parishdesk/parishdesk/internal/view"
	"github.com/parishdesk/parishdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	flags, err := navigation.LoadFlags(cfg.FeatureFlagsFile)
	if err != nil {
		logger.Error("load feature flags", slog.Any("error", err))
		os.Exit(1)
	}

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "parishdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	notificationRepo := notifications.NewRepository(dbpool)
	hub := notifications.NewHub(ctx, notifications.HubConfig{
		Stores:   notificationRepo,
		Clock:    clock,
		Interval: cfg.NotifyPollInterval,
		Limit:    cfg.NotifyCacheLimit,
		Logger:   logger.With(slog.String("component", "notifications")),
		Observer: metrics,
	})
	defer hub.Close()

	profileRepo := profiles.NewRepository(dbpool)
	tracker := gate.NewTracker(gate.TrackerConfig{
		Profiles:   profileRepo,
		Logger:     logger.With(slog.String("component", "gate")),
		Clock:      clock,
		ProfileTTL: cfg.ProfileTTL,
		IdleTTL:    cfg.NotifyIdleTTL,
		Observers:  []gate.Observer{hub.Bind, metrics.ObserveGate},
	})
	go tracker.Run(ctx)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	params := app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Hub:            hub,
		Flags:          flags,
		Clock:          clock,
		Metrics:        metrics,
	}
	params.Gate = gate.Middleware{Tracker: tracker, Logger: logger, Denied: app.Forbidden(params)}
	decorate := app.Decorator(params)

	authService := auth.NewService(auth.NewRepository(dbpool), notificationRepo, logger)
	params.AuthHandler = auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, tracker, decorate)
	params.NotificationsHandler = notifications.NewHandler(hub, clock, logger).WithPage(app.Notifications(params))
	params.AnnouncementsHandler = announcements.NewHandler(logger, templates, csrfManager, jobClient, decorate)
	params.UsersHandler = users.NewHandler(logger, users.NewService(users.NewRepository(dbpool), profileRepo, notificationRepo, logger), templates, csrfManager, decorate)
	params.JobHandler = jobs.NewHandler(inspector, logger)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(params),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("demo_mode", cfg.DemoMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
