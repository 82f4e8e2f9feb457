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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/0Azuree/Ledeqth-sub000/internal/adapters/http"
	wssignal "github.com/0Azuree/Ledeqth-sub000/internal/adapters/signal"
	"github.com/0Azuree/Ledeqth-sub000/internal/app"
	"github.com/0Azuree/Ledeqth-sub000/internal/app/orch"
	"github.com/0Azuree/Ledeqth-sub000/internal/auth"
	"github.com/0Azuree/Ledeqth-sub000/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("rooms server failed")
	}
}

// run opens and closes every resource; main only reports its error.
func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		// JSON lines for log collectors.
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %q room store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()

	hub := app.NewHub(app.PolicyByName(cfg.Bus.Policy))
	bus, err := openBus(ctx, cfg, hub)
	if err != nil {
		return fmt.Errorf("open %q channel bus: %w", cfg.Bus.Driver, err)
	}
	defer bus.Close()

	o := orch.New(store, bus)
	signer := auth.NewChannelSigner(cfg.Auth.ChannelKey, cfg.Auth.ChannelSecret)
	ctl := &wssignal.SignalWSController{
		Hub:        hub,
		Orch:       o,
		Bus:        bus,
		Signer:     signer,
		Limiter:    wssignal.NewRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Interval),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		Timeout:    cfg.RequestTimeout,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:   o,
		Tokens: auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Signer: signer,
		Signal: ctl,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Str("bus", cfg.Bus.Driver).Msg("rooms server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var failed error
	select {
	case <-ctx.Done():
	case failed = <-serveErr:
	}
	cancel()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if failed != nil {
		return fmt.Errorf("serve %s: %w", addr, failed)
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
