package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/igorkanara777-eng/offline-pos-desktop/internal/cache"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/config"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/httpapi"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/notify"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/scheduler"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/service"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/store"
	"github.com/igorkanara777-eng/offline-pos-desktop/internal/store/memory"
	pgstore "github.com/igorkanara777-eng/offline-pos-desktop/internal/store/postgres"
	"github.com/igorkanara777-eng/offline-pos-desktop/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory")
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop report cache")
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("report cache: redis")
		}
	} else {
		log.Info().Msg("report cache: noop")
	}

	notifier := notify.NewTelegram(repo, time.Duration(cfg.NotifyTimeoutSeconds)*time.Second)
	sched := scheduler.New(log.With().Str("component", "scheduler").Logger())
	defer sched.Stop()

	svc := service.New(
		repo,
		reports,
		time.Duration(cfg.ReportCacheTTLSeconds)*time.Second,
		notifier,
		sched,
		log.With().Str("component", "service").Logger(),
		cfg.Currency,
		time.Duration(cfg.NotifyTimeoutSeconds)*time.Second,
	)
	svc.RestoreSchedule(ctx)

	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("auth setup failed")
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log.With().Str("component", "http").Logger())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	sched.Stop()
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters")
	}
	return nil
}
