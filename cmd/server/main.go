package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/staffdesk/Consult/internal/adapters/http"
	wssignal "github.com/staffdesk/Consult/internal/adapters/signal"
	"github.com/staffdesk/Consult/internal/app"
	"github.com/staffdesk/Consult/internal/archive"
	"github.com/staffdesk/Consult/internal/auth"
	"github.com/staffdesk/Consult/internal/config"
	"github.com/staffdesk/Consult/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	registry := app.NewRegistry()
	pending := app.NewPendingCallStore(cfg.PendingCap)
	sessions := app.NewCallSessionTable()
	directory := app.NewDirectory(cfg.Staff)
	sink := archive.NewMemoryArchive()

	coord := app.NewCoordinator(registry, pending, sessions, directory, sink, m)
	coord.ICEServers = cfg.WebRTCICEServers()
	coord.ResponseWindow = cfg.ResponseWindow
	coord.SweepInterval = cfg.SweepInterval
	registry.SetOnStaffOffline(coord.OnStaffOffline)

	relay := app.NewSignalingRelay(sessions, registry, m)

	tokens, err := auth.NewTokenManager(cfg.Secret, cfg.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token manager")
	}
	creds := auth.NewMemoryStore(cfg.Staff)

	ctl := wssignal.NewSignalWSController(coord, relay, creds, tokens, cfg)

	go coord.Run(ctx)

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Consult server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
