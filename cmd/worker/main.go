package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"courtside/ingestion/internal/cache"
	"courtside/ingestion/internal/client"
	"courtside/ingestion/internal/config"
	"courtside/ingestion/internal/ingest"
	"courtside/ingestion/internal/metrics"
	"courtside/ingestion/internal/orchestrator"
	"courtside/ingestion/internal/retry"
	"courtside/ingestion/internal/tracker"
	"courtside/ingestion/internal/warehouse"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	setupLogger()

	log.Info().Msg("Starting Courtside ingestion worker")

	cfg := config.MustLoad()
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Str("timezone", cfg.OperatingTimezone).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	policy := retry.NewPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	upstream := client.NewClient(cfg.StatsBaseURL, cfg.StatsAPIKey, cfg.UpstreamTimeout, policy)
	log.Info().Msg("Upstream client initialized")

	wh, err := warehouse.New(ctx, warehouse.Config{
		Host:          cfg.DatabaseHost,
		Port:          strconv.Itoa(cfg.DatabasePort),
		User:          cfg.DatabaseUser,
		Password:      cfg.DatabasePassword,
		Database:      cfg.DatabaseName,
		SSLMode:       cfg.DatabaseSSLMode,
		SnapshotTable: cfg.SnapshotTable,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to warehouse")
	}
	defer wh.Close()
	log.Info().Msg("Warehouse connection established")

	var scheduleCache *cache.Cache
	scheduleCache, err = cache.New(ctx, cache.Config{
		Host:        cfg.RedisHost,
		Port:        strconv.Itoa(cfg.RedisPort),
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		ScheduleTTL: cfg.ScheduleCacheTTL,
		ResultTTL:   cfg.ResultCacheTTL,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		scheduleCache = nil
	} else {
		defer scheduleCache.Close()
	}

	trk := tracker.New()
	runner := ingest.NewRunner(upstream, wh.Snapshots, trk, wh.Games, cfg.SnapshotPageSize)

	var cacheDep orchestrator.ScheduleCache
	if scheduleCache != nil {
		cacheDep = scheduleCache
	}
	orch := orchestrator.New(upstream, wh.Games, cacheDep, trk, runner, orchestrator.Options{
		Location:         cfg.Location(),
		PregameLead:      cfg.PregameLead(),
		TickInterval:     cfg.TickInterval,
		CycleInterval:    cfg.CycleInterval,
		DailyRefreshCron: cfg.DailyRefreshCron,
	})

	if cfg.EnableMetrics {
		go startHTTPServer(ctx, strconv.Itoa(cfg.MetricsPort), orch, wh)
	}

	// Update system uptime metric
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := orch.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start orchestrator")
	}

	<-ctx.Done()

	log.Info().Msg("Shutting down orchestrator...")
	orch.Stop()

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger() {
	// Pretty console logging in development
	if os.Getenv("APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}
