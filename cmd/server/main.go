package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Lobby/internal/adapters/http"
	"github.com/dkeye/Lobby/internal/adapters/rtc"
	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/app/admission"
	"github.com/dkeye/Lobby/internal/app/handoff"
	"github.com/dkeye/Lobby/internal/config"
	"github.com/dkeye/Lobby/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	store, closeStore := handoffStore(ctx, cfg.Redis)
	defer closeStore()

	window := time.Duration(cfg.Provider.ExpiresInSeconds) * time.Second
	rtcCfg := rtc.Config{
		ICEServers:        cfg.RTC.ICEServers,
		LoadTimeout:       cfg.RTC.LoadTimeout,
		RetryDelay:        cfg.RTC.RetryDelay,
		RequiredVersion:   cfg.RTC.RequiredVersion,
		PlugInDownloadURL: cfg.RTC.PlugInDownloadURL,
		AppDownloadURL:    cfg.RTC.AppDownloadURL,
		HandoffTTL:        window,
	}

	reg := app.NewRegistry(ctx, app.RegistryConfig{
		Credentials: admission.Credentials{
			DeveloperKey:     cfg.Provider.DeveloperKey,
			ApplicationID:    cfg.Provider.ApplicationID,
			ExpiresInSeconds: cfg.Provider.ExpiresInSeconds,
		},
		Handoff: store,
		IdleTTL: cfg.Login.IdleTTL,
		NewClient: func(id domain.ClientID) app.Client {
			return rtc.NewClient(rtcCfg, id, store)
		},
	})
	defer reg.CloseAll()

	r := router.SetupRouter(ctx, cfg, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Lobby server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
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

// handoffStore keeps handoffs in redis when an address is configured and
// falls back to memory when there is none or it cannot be reached.
func handoffStore(ctx context.Context, cfg config.Redis) (handoff.Store, func()) {
	if cfg.Addr == "" {
		return handoff.NewMemStore(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, keeping handoffs in memory")
		_ = rdb.Close()
		return handoff.NewMemStore(), func() {}
	}
	log.Info().Str("addr", cfg.Addr).Str("prefix", cfg.Prefix).Msg("handoffs stored in redis")
	return handoff.NewRedisStore(rdb, cfg.Prefix), func() { _ = rdb.Close() }
}
