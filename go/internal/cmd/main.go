package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planning-poker/go/internal/config"
	"github.com/mcdev12/planning-poker/go/internal/session"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := setupStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open session store")
	}
	defer closeStore()

	publisher, err := setupPublisher(ctx, cfg.Events)
	if err != nil {
		log.Fatal().Err(err).Str("broker", cfg.Events.Broker).Msg("failed to connect event publisher")
	}

	services := setupServices(cfg, store, publisher, clockwork.NewRealClock())

	var scheduler *cron.Cron
	if cfg.Cleanup.Schedule != "" {
		scheduler, err = session.NewJanitor(services.App, cfg.Cleanup.MaxAge).Schedule(cfg.Cleanup.Schedule)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to schedule cleanup")
		}
	}

	// The gateway outlives the HTTP server so in-flight handlers can still enqueue.
	gatewayCtx, cancelGateway := context.WithCancel(context.Background())
	defer cancelGateway()
	services.Gateway.Start(gatewayCtx)

	server := setupServer(cfg, services)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Driver).
			Str("broker", cfg.Events.Broker).
			Bool("dealer_only", cfg.DealerOnly).
			Msg("planning poker server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	cancelGateway()
	if err := services.Gateway.Stop(); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
	}

	log.Info().Msg("planning poker server shutdown complete")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if level > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
}
