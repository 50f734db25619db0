package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"laundrypos/backend/internal/cache"
	"laundrypos/backend/internal/config"
	"laundrypos/backend/internal/httpapi"
	"laundrypos/backend/internal/metrics"
	"laundrypos/backend/internal/pricing"
	"laundrypos/backend/internal/service"
	"laundrypos/backend/internal/store"
	"laundrypos/backend/internal/store/memory"
	pgstore "laundrypos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("server stopped")
}

func run(cfg config.Config) error {
	prices, err := pricing.LoadFile(cfg.PricingConfigPath)
	if err != nil {
		return fmt.Errorf("pricing configuration: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Printf("close error: %v", err)
			}
		}
	}()

	repo, closeRepo, err := openRepository(startCtx, cfg)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}
	reports, closeCache := openReportCache(startCtx, cfg)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	m := metrics.New()
	svc := service.New(repo, prices, cfg.BranchID,
		service.WithReportCache(reports, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second),
		service.WithMetrics(m),
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        m,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("laundry back office listening on %s (branch %s)", cfg.Address(), cfg.BranchID)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

// openRepository uses Postgres when DATABASE_URL is set and refuses to fall
// back to memory if it is unreachable.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Println("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	if err := pg.Migrate(ctx, cfg.BranchID); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("postgres migration: %w", err)
	}
	log.Println("repository: postgres")
	return pg, pg.Close, nil
}

// openReportCache degrades to the no-op cache when Redis is not configured
// or does not answer.
func openReportCache(ctx context.Context, cfg config.Config) (cache.ReportCache, func() error) {
	if cfg.RedisAddr == "" || cfg.ReportCacheTTLSeconds == 0 {
		log.Println("report cache: disabled")
		return cache.NoopReportCache{}, nil
	}

	redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		log.Printf("redis unavailable (%v), report cache disabled", err)
		_ = redisCache.Close()
		return cache.NoopReportCache{}, nil
	}
	log.Printf("report cache: redis ttl=%ds", cfg.ReportCacheTTLSeconds)
	return redisCache, redisCache.Close
}

var commonPINs = map[string]bool{
	"123456": true, "654321": true, "000000": true, "121212": true,
	"112233": true, "123123": true, "696969": true, "159753": true,
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return errors.New("MANAGER_PIN must be set and at least 6 digits")
	}
	if strings.Trim(cfg.ManagerPIN, "0123456789") != "" {
		return errors.New("MANAGER_PIN must contain digits only")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated-digit, sequential and well-known PINs.
func validatePINStrength(pin string) error {
	if commonPINs[pin] {
		return errors.New("common PIN not allowed")
	}
	if strings.Count(pin, pin[:1]) == len(pin) {
		return errors.New("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		switch int(pin[i]) - int(pin[i-1]) {
		case 1:
			descending = false
		case -1:
			ascending = false
		default:
			ascending, descending = false, false
		}
	}
	if ascending || descending {
		return errors.New("sequential PIN not allowed")
	}
	return nil
}
