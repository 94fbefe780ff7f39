package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eternisai/groupspend-sync/internal/api"
	"github.com/eternisai/groupspend-sync/internal/background"
	"github.com/eternisai/groupspend-sync/internal/config"
	"github.com/eternisai/groupspend-sync/internal/events"
	"github.com/eternisai/groupspend-sync/internal/logger"
	"github.com/eternisai/groupspend-sync/internal/metrics"
	"github.com/eternisai/groupspend-sync/internal/notifications"
	"github.com/eternisai/groupspend-sync/internal/session"
	"github.com/eternisai/groupspend-sync/internal/status"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Error("failed to register metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, closeStore, err := newStore(cfg)
	if err != nil {
		log.Error("failed to open session store",
			slog.String("backend", cfg.SessionBackend),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	// The session manager talks to the backend with explicit tokens; everything
	// else goes through the refresh-and-retry transport it backs.
	rawClient := api.NewClient(cfg.APIBaseURL, &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: api.NewLoggingTransport(nil, log),
	}, log)

	sessions := session.NewManager(store, rawClient, log, session.WithRefreshTimeout(cfg.HTTPTimeout))

	authedClient := api.NewClient(cfg.APIBaseURL, &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: api.NewAuthTransport(api.NewLoggingTransport(nil, log), sessions, log),
	}, log)

	alerts := notifications.NewService(cfg.AlertTTL, log, notifications.NewLogSink(log))

	syncManager := background.NewSyncManager(authedClient, authedClient, sessions, alerts, log, background.Config{
		InviteInterval:       cfg.InvitePollInterval,
		NotificationInterval: cfg.NotificationPollInterval,
		ShutdownTimeout:      cfg.ShutdownTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncManager.Start(ctx)

	var feed *events.Feed
	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL, log)
		if err != nil {
			log.Warn("push feed disabled, polling only", slog.String("error", err.Error()))
		} else {
			feed = events.NewFeed(nc, cfg.NatsSubjectPrefix, syncManager, log)
			sessions.Subscribe(feed.Follow)
		}
	}

	if err := sessions.Initialize(ctx); err != nil {
		log.Warn("session initialization failed", slog.String("error", err.Error()))
	}

	if !sessions.Session().Authenticated() && cfg.LoginEmail != "" && cfg.LoginPassword != "" {
		if err := sessions.LoginWithPassword(ctx, cfg.LoginEmail, cfg.LoginPassword); err != nil {
			log.Warn("auto-login failed", slog.String("email", cfg.LoginEmail), slog.String("error", err.Error()))
		}
	}
	feed.Follow(sessions.Session())
	log.Info("session ready", slog.String("status", sessions.Session().Status.String()))

	handler := status.NewHandler(sessions, authedClient, syncManager, alerts)
	if pinger, ok := store.(status.Pinger); ok {
		handler.AddHealthCheck("session_store", pinger)
	}
	router := status.NewRouter(handler, log, status.RouterConfig{
		AllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
	})

	srv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("status server listening", slog.String("addr", cfg.StatusAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start status server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if err := feed.Stop(); err != nil {
		log.Warn("push feed drain failed", slog.String("error", err.Error()))
	}

	if err := syncManager.Shutdown(); err != nil {
		log.Warn("sync manager shutdown incomplete", slog.String("error", err.Error()))
	}
	alerts.Reset()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("status server forced to shutdown", slog.String("error", err.Error()))
	}

	log.Info("exited")
}

func newStore(cfg *config.Config) (session.Store, func(), error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		store, err := session.NewRedisStore(cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.SessionBackendMemory:
		return session.NewMemoryStore(), func() {}, nil
	default:
		return session.NewFileStore(cfg.SessionFile), func() {}, nil
	}
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
