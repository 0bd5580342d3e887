package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grabgate/grabgate/internal/api"
	"github.com/grabgate/grabgate/internal/config"
	"github.com/grabgate/grabgate/internal/database"
	"github.com/grabgate/grabgate/internal/downloader"
	"github.com/grabgate/grabgate/internal/filter"
	"github.com/grabgate/grabgate/internal/logger"
	"github.com/grabgate/grabgate/internal/policy"
	"github.com/grabgate/grabgate/internal/scheduler"
	"github.com/grabgate/grabgate/internal/scheduler/tasks"
	"github.com/grabgate/grabgate/internal/sonarr"
	"github.com/grabgate/grabgate/internal/stats"
)

func main() {
	// Optional .env for local development, ignored when absent
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting grabgate")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	statsSvc := stats.NewService(db.Conn(), log.Logger)

	clientType, err := downloader.ParseClientType(cfg.DownloadClient.Type)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid download client type")
	}
	clientCfg := cfg.DownloadClient.ClientConfig()
	client, err := downloader.NewClient(clientType, &clientCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create download client")
	}

	sonarrClient := sonarr.NewClient(sonarr.Config{
		URL:    cfg.Sonarr.URL,
		APIKey: cfg.Sonarr.APIKey,
	}, log.Logger)

	pol := policy.New(cfg.Filtering.BlockedExtensions, cfg.Filtering.AllowedExtensions)
	log.Info().
		Strs("blocked", cfg.Filtering.BlockedExtensions).
		Strs("allowed", cfg.Filtering.AllowedExtensions).
		Msg("extension policy loaded")

	filterSvc := filter.NewService(sonarrClient, client, pol, statsSvc, log.Logger)
	filterHandlers := filter.NewHandlers(filterSvc, pol)
	statsHandlers := stats.NewHandlers(statsSvc)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}

	healthTask := tasks.NewClientHealthTask(client, log.Logger)
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "client-health",
		Name:        "Download Client Health Check",
		Description: "Probes the download client connection",
		Interval:    time.Duration(cfg.Scheduler.HealthCheckMinutes) * time.Minute,
		Func:        healthTask.Run,
		RunOnStart:  true,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register health check task")
	}

	cleanupTask := tasks.NewActivityCleanupTask(statsSvc, log.Logger)
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "activity-cleanup",
		Name:        "Activity Log Cleanup",
		Description: "Trims the activity log to its ring capacity",
		Interval:    time.Duration(cfg.Scheduler.CleanupMinutes) * time.Minute,
		Func:        cleanupTask.Run,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register cleanup task")
	}

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	server := api.NewServer(cfg, filterHandlers, statsHandlers, log.Logger)

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Let in-flight grab workers finish their poll and removal cycles
	filterSvc.Wait()

	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}
