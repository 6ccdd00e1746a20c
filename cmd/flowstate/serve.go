package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"flowstate/internal/auth"
	"flowstate/internal/bot"
	"flowstate/internal/config"
	"flowstate/internal/gateway"
	"flowstate/internal/repository"
	"flowstate/internal/service"
)

// runServe starts the HTTP gateway, the scheduled jobs and, when a token is
// configured, the Telegram bot. It returns once ctx is cancelled.
func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	now := func() time.Time { return time.Now().In(cfg.Location) }

	db, err := repository.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	users := repository.NewUserRepository(db)
	tables := repository.NewRegistry(db, now)

	var denylist auth.Denylist
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		denylist = auth.NewRedisDenylist(rdb)
		log.Printf("[info] token denylist on redis %s", cfg.RedisAddr)
	}
	authSvc := auth.NewService(users, cfg.JWTSecret, cfg.TokenTTL, denylist)

	digest := service.NewDigestService(tables)
	maintenance := service.NewMaintenanceService(tables)

	router := gateway.NewRouter(gateway.Deps{
		DB:      db,
		Auth:    authSvc,
		Tables:  tables,
		Digest:  digest,
		Finance: service.NewFinanceService(tables),
		Now:     now,
	}, gateway.Options{
		CORSOrigins:       cfg.CORSOrigins,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
		AuthRateBurst:     cfg.AuthRateBurst,
		RequestLog:        true,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler := service.NewSchedulerService(cfg.Location)
	if _, err := scheduler.ScheduleDaily("streak-refresh", cfg.StreakRefreshTime, func(ctx context.Context) error {
		n, err := maintenance.RefreshStreaks(ctx, now())
		if n > 0 {
			log.Printf("[info] refreshed %d streaks", n)
		}
		return err
	}); err != nil {
		return fmt.Errorf("schedule streak refresh: %w", err)
	}

	errs := make(chan error, 2)
	if cfg.TelegramToken != "" {
		telegramBot, err := bot.New(cfg.TelegramToken, users, authSvc, digest, cfg.Location)
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
		if _, err := scheduler.ScheduleDaily("digest", cfg.DigestTime, telegramBot.SendDailyReports); err != nil {
			return fmt.Errorf("schedule digest: %w", err)
		}
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("bot stopped: %w", err)
			}
		}()
	} else {
		log.Println("[info] TELEGRAM_TOKEN not set, bot disabled")
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		log.Printf("[info] gateway listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("[warn] http shutdown: %v", shutdownErr)
	}
	log.Println("[info] shutdown complete")
	return err
}
