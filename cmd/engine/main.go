package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/livhair/schedule-engine/internal/api/router"
	"github.com/livhair/schedule-engine/internal/clinicapi"
	appconfig "github.com/livhair/schedule-engine/internal/config"
	"github.com/livhair/schedule-engine/internal/http/handlers"
	"github.com/livhair/schedule-engine/internal/observability/metrics"
	"github.com/livhair/schedule-engine/internal/realtime"
	"github.com/livhair/schedule-engine/internal/session"
	"github.com/livhair/schedule-engine/internal/store"
	"github.com/livhair/schedule-engine/internal/view"
	"github.com/livhair/schedule-engine/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting schedule engine",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.ClinicAPIURL,
	)

	// Initialize upstream client, record cache and metrics
	client := clinicapi.NewClient(cfg.ClinicAPIURL, cfg.ClinicAPIToken, logger)
	engineMetrics := metrics.NewEngineMetrics(nil)

	controller := view.NewController(client, store.New(),
		view.WithLogger(logger),
		view.WithMetrics(engineMetrics),
		view.WithLoginPath(cfg.LoginPath),
	)

	// First load. A failure here is survivable: the engine serves the empty
	// schedule with a status message until a refresh succeeds.
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := controller.Refresh(startCtx); err != nil {
		logger.Error("initial refresh failed", "error", err)
	}
	cancelStart()

	// Session context and the activity ring live in Redis when configured
	var sessions *session.Store
	var activity *session.ActivityLog
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis unreachable, session features disabled",
				"addr", cfg.RedisAddr,
				"error", err,
			)
		} else {
			sessions = session.NewStore(redisClient)
			activity = session.NewActivityLog(redisClient)
		}
	}

	// Realtime update feed
	var feed *realtime.Channel
	if cfg.RealtimeEnabled {
		header := http.Header{}
		if cfg.ClinicAPIToken != "" {
			header.Set("Authorization", "Bearer "+cfg.ClinicAPIToken)
		}
		feed = realtime.NewChannel(cfg.WSURL(),
			realtime.WithLogger(logger),
			realtime.WithRequestHeader(header),
			realtime.WithSyncHandler(func(events []realtime.ActivityEvent) {
				ctx := context.Background()
				if err := activity.ReplaceAll(ctx, events); err != nil {
					logger.Warn("activity backfill failed", "error", err)
				}
				controller.ApplySync(ctx, events)
			}),
			realtime.WithEventHandler(func(event realtime.ActivityEvent) {
				ctx := context.Background()
				if err := activity.Append(ctx, event); err != nil {
					logger.Warn("activity append failed", "error", err)
				}
				if err := controller.ApplyEvent(ctx, event); err != nil {
					logger.Warn("live update not applied", "error", err)
				}
			}),
			realtime.WithStateHandler(func(s realtime.State) {
				engineMetrics.ObserveConnectionState(string(s))
			}),
		)
		feed.Connect()
	}

	// Periodic full refresh as a safety net behind the feed
	stopRefresh := make(chan struct{})
	if cfg.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					if err := controller.Refresh(ctx); err != nil {
						logger.Warn("periodic refresh failed", "error", err)
					}
					cancel()
				case <-stopRefresh:
					return
				}
			}
		}()
	}

	// Initialize handlers. The feed is passed through an interface variable
	// so a disabled channel stays a true nil.
	var connectionFeed handlers.Feed
	if feed != nil {
		connectionFeed = feed
	}
	scheduleHandler := handlers.NewScheduleHandler(controller, connectionFeed, client, logger)
	sessionHandler := handlers.NewSessionHandler(sessions, activity, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Schedule:           scheduleHandler,
		Session:            sessionHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	close(stopRefresh)
	if feed != nil {
		feed.Close()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
