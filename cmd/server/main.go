package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storegoals/internal/cache"
	"storegoals/internal/config"
	"storegoals/internal/httpapi"
	"storegoals/internal/ingest"
	"storegoals/internal/logger"
	"storegoals/internal/metrics"
	"storegoals/internal/service"
	"storegoals/internal/store"
	"storegoals/internal/store/memory"
	pgstore "storegoals/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "storegoals: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	log, logCloser, err := logger.Init(logger.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Output:   cfg.LogOutput,
		FilePath: cfg.LogFile,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()

	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	location, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("invalid STORE_TIMEZONE: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startupCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		if err := pg.Migrate(startupCtx); err != nil {
			_ = pg.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository ready", "backend", "postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository ready", "backend", "memory")
	}

	var goalCache cache.GoalCache = cache.NewMemoryGoalCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisGoalCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startupCtx); err != nil {
			log.Warn("redis unavailable, using in-process goal cache", "error", err)
			_ = redisCache.Close()
		} else {
			goalCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("goal cache ready", "backend", "redis")
		}
	} else {
		log.Info("goal cache ready", "backend", "memory")
	}

	m := metrics.New()
	svc := service.New(repo, goalCache, service.Config{
		DefaultStoreID: cfg.StoreID,
		Location:       location,
		GoalCacheTTL:   cfg.GoalCacheTTL(),
		Metrics:        m,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, m)

	var wg sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		consumer := ingest.NewConsumer(ingest.NewReader(ingest.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaSalesTopic,
			GroupID: cfg.KafkaGroupID,
		}), svc, m)
		closers = append(closers, consumer.Close)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error("sale consumer stopped", "error", err)
			}
		}()
		log.Info("sale ingestion enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSalesTopic, "group_id", cfg.KafkaGroupID)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("store goals api listening", "addr", cfg.Address(), "timezone", location.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", "error", err)
		}
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", "error", err)
	}
	wg.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", "error", err)
		}
	}

	log.Info("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin, not a wildcard")
	}
	return nil
}
