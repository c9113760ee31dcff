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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"library-presence-backend/config"
	"library-presence-backend/internal/api"
	"library-presence-backend/internal/db"
	"library-presence-backend/internal/geofence"
	"library-presence-backend/internal/metrics"
	"library-presence-backend/internal/refresh"
	"library-presence-backend/internal/session"
	"library-presence-backend/internal/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "presenced").Logger()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}
	logger = newLogger(cfg.Log)
	logger.Info().Str("path", configPath).Msg("configuration loaded successfully")

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var recorder metrics.Recorder = metrics.Nop{}
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.New(registry)
	}

	fence := geofence.Fence{
		Center:       geofence.Coordinate{Lat: cfg.Geofence.Latitude, Lon: cfg.Geofence.Longitude},
		RadiusMeters: cfg.Geofence.RadiusMeters,
	}
	provider, feed := newProvider(cfg.Location, logger)
	tracker := geofence.NewTracker(fence, provider, geofence.Options{
		HighAccuracy: cfg.Location.HighAccuracy,
		MaxSampleAge: cfg.Location.MaxSampleAge,
		Timeout:      cfg.Location.Timeout,
	}, logger, recorder)

	responses := api.NewCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)
	board := session.NewMessageBoard(time.Duration(cfg.Server.MessageTTLSeconds) * time.Second)

	var refresher *refresh.Refresher
	controller := session.NewController(session.Deps{
		Events:   appStore,
		Prefs:    appStore,
		Tracker:  tracker,
		Notifier: board,
		Recorder: recorder,
		Logger:   logger,
		OnChange: func() {
			responses.Flush()
			refresher.Trigger()
		},
	})
	refresher = refresh.New(appStore, cfg.Refresh.Interval, cfg.Refresh.LeaderboardSize, controller.UserCode, recorder, logger)
	// Views cached between a write and its recompute would otherwise outlive
	// the recompute by a full TTL.
	refresher.OnRefresh(func(refresh.Snapshot) { responses.Flush() })
	go refresher.Run(ctx)

	handler := api.NewHandler(controller, refresher, board, feed, responses, logger)
	opts := api.RouterOptions{
		RateLimit: rate.Limit(cfg.Server.RateLimitPerSec),
		Burst:     cfg.Server.RateLimitBurst,
		CacheTTL:  time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		Recorder:  recorder,
		Logger:    logger,
	}
	if registry != nil {
		opts.Gatherer = registry
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, responses, opts),
	}

	// Start the server in a goroutine
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server ListenAndServe")
		}
	}()

	// The feed probe waits for posted samples, so restore only once the
	// server accepts requests.
	go func() {
		if err := controller.Restore(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to restore session")
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutdown signal received, stopping services")

	cancel()
	refresher.Stop()
	tracker.Disable()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("HTTP server Shutdown")
	}

	logger.Info().Msg("server gracefully stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "presenced").Logger()
}

// newProvider builds the configured location source. The returned feed is
// nil unless positions are posted to the API.
func newProvider(cfg config.LocationConfig, logger zerolog.Logger) (geofence.Provider, api.LocationFeed) {
	if cfg.Source == "poll" {
		return geofence.NewPollProvider(cfg.Poll, logger), nil
	}
	feed := geofence.NewFeedProvider(cfg.Enabled)
	return feed, feed
}
