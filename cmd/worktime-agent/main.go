package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timetrace/worktime-agent/internal/config"
	"timetrace/worktime-agent/internal/database"
	"timetrace/worktime-agent/internal/logger"
	"timetrace/worktime-agent/internal/normalizer"
	"timetrace/worktime-agent/internal/queue"
	"timetrace/worktime-agent/internal/reconciler"
	"timetrace/worktime-agent/internal/repository"
	"timetrace/worktime-agent/internal/server"
	"timetrace/worktime-agent/internal/service"
	"timetrace/worktime-agent/internal/stats"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithFile(cfg.Log.Level, cfg.Log.Format, cfg.Log.File, cfg.Log.MaxSizeMB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting worktime agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Failed to resolve work timezone", zap.Error(err))
	}

	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()

	eventRepo := repository.NewSystemEventRepository(db.DB, log.Logger)
	recordRepo := repository.NewTimeRecordRepository(db.DB)
	cacheRepo := repository.NewStatsCacheRepository(db.DB)
	sweepRepo := repository.NewSweepStateRepository(db.DB)

	statsCache := stats.NewCache(recordRepo, cacheRepo, stats.TTLs{
		Daily:   cfg.Cache.DailyTTL,
		Weekly:  cfg.Cache.WeeklyTTL,
		Monthly: cfg.Cache.MonthlyTTL,
		Yearly:  cfg.Cache.YearlyTTL,
	}, loc, log.Logger)

	norm := normalizer.New(cfg.Ingest.MaxFutureSkew, log.Logger)

	rec := reconciler.New(reconciler.Config{
		MaxSession:               time.Duration(cfg.Work.MaxSessionHours) * time.Hour,
		BreakThreshold:           time.Duration(cfg.Work.BreakThresholdMinutes) * time.Minute,
		OvertimeThresholdMinutes: cfg.Work.OvertimeThresholdMinutes,
	}, log.Logger)

	engine := service.NewEngine(
		eventRepo,
		recordRepo,
		sweepRepo,
		statsCache,
		norm,
		rec,
		cfg.Work.OvertimeThresholdMinutes,
		loc,
		log.Logger,
	)

	ingestQueue := queue.NewIngestQueue(db.DB, cfg.Ingest.PollInterval, cfg.Ingest.MaxRetries, log.Logger)
	ingestQueue.Start(engine.HandleRawEvent)

	sweeper := service.NewSweeper(engine, cfg.Sweep.Interval, log.Logger)
	sweeper.Start()

	var httpServer *http.Server
	if cfg.Server.Enabled {
		apiServer := server.NewAPIServer(engine, ingestQueue, log.Logger)
		addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
		httpServer = &http.Server{
			Addr:         addr,
			Handler:      apiServer,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info("Starting API server", zap.String("address", addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("API server error", zap.Error(err))
			}
		}()
	} else {
		log.Info("API server disabled in configuration")
	}

	log.Info("Worktime agent started successfully",
		zap.String("storage_path", cfg.StoragePath),
		zap.String("timezone", loc.String()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn("API server shutdown error", zap.Error(err))
		} else {
			log.Info("API server stopped")
		}
	}

	sweeper.Stop()

	// Stop the worker, then flush whatever the queue still holds
	ingestQueue.Stop()
	ingestQueue.Drain()

	log.Info("Worktime agent stopped")
}
