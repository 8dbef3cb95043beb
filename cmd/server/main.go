/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the overtime accounting engine's HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env/file via viper)
  2. Build the structured logger
  3. Open the SQLite store and migrate its schema
  4. Wire calendar -> daily calculator -> ledger -> event bus -> orchestrator
     -> absence machine -> rollover scheduler
  5. Start the rollover cron schedule and the HTTP server
  6. On SIGINT/SIGTERM: stop accepting new connections, drain in-flight
     requests (30s timeout), stop the rollover cron, close the database

COMMAND-LINE FLAGS:
  -config   path to a config file (optional; env still applies)

SEE ALSO:
  - config/config.go: EngineConfig fields and precedence
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
  - rollover/rollover.go: year-end scheduler
*/
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

	"github.com/warp/overtime-engine/absence"
	"github.com/warp/overtime-engine/api"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/config"
	"github.com/warp/overtime-engine/daily"
	"github.com/warp/overtime-engine/eventbus"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/logging"
	"github.com/warp/overtime-engine/orchestrator"
	"github.com/warp/overtime-engine/rollover"
	"github.com/warp/overtime-engine/store/sqlite"
	"github.com/warp/overtime-engine/timestore"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, nil)
	log.Info().Str("timezone", cfg.TimezoneName).Int("port", cfg.HTTPPort).Msg("starting overtime engine")

	store, err := sqlite.New(cfg.DBPath, cfg.Location)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	cal := calendar.New(timestore.HolidayAdapter{Store: store})
	calc := daily.New(cal, store)
	journal := ledger.New(store)
	bus := eventbus.New(log)
	hub := eventbus.NewHub(bus, log)
	defer hub.Close()

	clock := civil.NewSystemClock(cfg.Location)
	orch := orchestrator.New(store, cal, calc, journal, bus, clock, log)
	machine := absence.New(store, cal, orch, journal)

	roll := rollover.New(store, journal, store, cfg, log)
	if err := roll.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start rollover scheduler")
	}
	defer roll.Stop()

	handler := &api.Handler{
		Store:    store,
		Calendar: cal,
		Journal:  journal,
		Orch:     orch,
		Absence:  machine,
		Rollover: roll,
		Bus:      bus,
		Hub:      hub,
		Clock:    clock,
	}
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
