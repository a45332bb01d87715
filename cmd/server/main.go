/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Booya coin engine server. Handles
  configuration, dependency injection, the scheduled counter audit, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + BOOYA_* environment)
  2. Configure structured logging
  3. Initialize SQLite store
  4. Wire engine, catalog, and bonus issuer
  5. Start the recount cron job
  6. Start server with graceful shutdown

CONFIGURATION:
  BOOYA_PORT              HTTP server port (default: 8080)
  BOOYA_DB_PATH           SQLite database path (default: ./data/booya.db)
                          Use ":memory:" for an in-memory database
  BOOYA_SIGNUP_BONUS      Signup bonus amount (default: 50.00)
  BOOYA_DAILY_BONUS       Daily login bonus amount (default: 50.00)
  BOOYA_RECOUNT_SCHEDULE  Cron expression for the counter audit
  BOOYA_LOG_LEVEL         Log level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the cron scheduler
  4. Close database connection
  5. Exit

SEE ALSO:
  - config/config.go: Configuration loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/booya/coin-engine/api"
	"github.com/booya/coin-engine/bonus"
	"github.com/booya/coin-engine/catalog"
	"github.com/booya/coin-engine/config"
	"github.com/booya/coin-engine/ledger"
	"github.com/booya/coin-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	// Store of record
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Domain services
	engine := ledger.NewEngine(store).WithLogger(logger)
	cat := catalog.NewService(store).WithLogger(logger)
	issuer := bonus.NewIssuer(engine, bonus.Config{
		SignupAmount: ledger.MustParseAmount(cfg.SignupBonus),
		DailyAmount:  ledger.MustParseAmount(cfg.DailyBonus),
	}).WithLogger(logger)

	// Scheduled counter audit
	scheduler := cron.New()
	if cfg.RecountSchedule != "" {
		_, err := scheduler.AddFunc(cfg.RecountSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			report, err := cat.Recount(ctx)
			if err != nil {
				logger.WithError(err).Error("scheduled recount failed")
				return
			}
			logger.WithFields(log.Fields{
				"categories_checked": report.CategoriesChecked,
				"products_checked":   report.ProductsChecked,
				"repaired":           len(report.Repaired),
			}).Info("scheduled recount finished")
		})
		if err != nil {
			logger.WithError(err).Fatal("invalid recount schedule")
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// HTTP surface
	handler := api.NewHandler(engine, cat, issuer)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(log.Fields{
			"addr": cfg.Addr(),
			"db":   cfg.DBPath,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}

	logger.Info("server stopped")
}
