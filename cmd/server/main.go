/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recognition engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the store and notification sinks
  3. Apply SEED_FILE, if set
  4. Start the distribution scheduler
  5. Configure HTTP router and serve with graceful shutdown

COMMAND-LINE FLAGS:
  -env     .env file to load (default: .env, missing is fine)
  -port    HTTP server port, overrides PORT
  -db      SQLite database path, overrides DB_PATH
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close store and Redis connections

EXAMPLES:
  # Local development, nothing persisted, demo scenarios on
  DB_DRIVER=memory SCENARIOS_ENABLED=true ./server

  # SQLite file
  JWT_SECRET=change-me ./server -db="./data/recognition.db"

  # PostgreSQL
  DB_DRIVER=postgres DATABASE_URL=postgres://... JWT_SECRET=change-me ./server

ENVIRONMENT:
  See config/config.go for every key.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Monthly distribution
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/config"
	"github.com/warp/recognition-engine/factory"
	"github.com/warp/recognition-engine/identity"
)

// devSecret signs tokens when the memory driver runs without JWT_SECRET.
const devSecret = "insecure-development-secret"

const pruneInterval = 10 * time.Minute

func main() {
	envFile := flag.String("env", "", "Path to a .env file (default .env)")
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	log := cfg.NewLogger()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ctx := context.Background()

	svc, err := api.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}()

	if cfg.SeedFile != "" {
		if err := applySeed(ctx, svc.Seeds, cfg.SeedFile, log); err != nil {
			return err
		}
	}

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn("JWT_SECRET not set; using an insecure development secret")
		secret = devSecret
	}
	verifier := identity.NewVerifier([]byte(secret), cfg.JWTIssuer)
	metrics := api.NewMetrics()
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	scheduler, err := api.NewDistributionScheduler(svc, cfg.DistributionCron, metrics, log)
	if err != nil {
		return err
	}
	if err := scheduler.Every("prune-rate-limits", pruneInterval, limiter.Prune); err != nil {
		return err
	}
	if cfg.SchedulerEnabled {
		scheduler.Start()
	} else {
		log.Info("scheduler disabled, not starting")
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.WithError(err).Warn("scheduler shutdown failed")
		}
	}()

	handler := api.NewHandler(svc, verifier, metrics, log)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Origins(),
		RateLimiter:    limiter,
		Scenarios:      cfg.ScenariosEnabled,
		Log:            log,
	})
	if cfg.ScenariosEnabled {
		log.Warn("demo scenarios enabled; POST /api/scenarios/load wipes all data")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.DBDriver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func applySeed(ctx context.Context, applier *factory.Applier, path string, log logrus.FieldLogger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	seed, err := factory.ParseSeed(data)
	if err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	res, err := applier.Apply(ctx, seed)
	if err != nil {
		return fmt.Errorf("apply seed %s: %w", path, err)
	}
	log.WithFields(logrus.Fields{
		"file":          path,
		"organizations": len(res.Organizations),
		"rewards":       res.Rewards,
		"achievements":  res.Achievements,
		"users":         len(res.Users),
	}).Info("seed applied")
	return nil
}
