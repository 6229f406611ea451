package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/maltedev/product-import-scraper/internal/api"
	"github.com/maltedev/product-import-scraper/internal/cache"
	"github.com/maltedev/product-import-scraper/internal/config"
	"github.com/maltedev/product-import-scraper/internal/database"
	"github.com/maltedev/product-import-scraper/internal/events"
	"github.com/maltedev/product-import-scraper/internal/fetcher"
	"github.com/maltedev/product-import-scraper/internal/jobs"
	"github.com/maltedev/product-import-scraper/internal/parser"
	"github.com/maltedev/product-import-scraper/internal/ratelimit"
	"github.com/maltedev/product-import-scraper/internal/scraper"
	"github.com/maltedev/product-import-scraper/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	cacheCleanupInterval = 5 * time.Minute
	limiterIdleTimeout   = 30 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it results are cached in memory and the
	// outbox relay does not run.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
			client.Close()
		} else {
			redisClient = client
			defer redisClient.Close()
		}
	}

	pageFetcher := fetcher.New(fetcher.Config{
		Timeout:        cfg.Scraper.FetchTimeout,
		UserAgent:      cfg.Scraper.UserAgent,
		AcceptLanguage: cfg.Scraper.AcceptLanguage,
		MaxBodyBytes:   cfg.Scraper.MaxBodyBytes,
	}, log)

	registry := parser.NewRegistry()
	opts := []scraper.Option{scraper.WithRegistry(registry)}
	if cfg.Scraper.CacheTTL > 0 {
		if redisClient != nil {
			opts = append(opts, scraper.WithCache(cache.NewRedisCache(redisClient, cfg.Scraper.CacheTTL)))
		} else {
			memory := cache.NewMemoryCache(cfg.Scraper.CacheTTL)
			opts = append(opts, scraper.WithCache(memory))
			go cleanupCache(ctx, memory, log)
		}
	}
	scraperService := scraper.NewService(pageFetcher, log, opts...)

	// background workers finish before the database is closed
	var wg sync.WaitGroup

	var jobService api.JobService
	var outboxStats api.OutboxStats

	if cfg.Jobs.Enabled {
		db, err := database.New(ctx, database.Config{
			DSN:      cfg.Database.DSN(),
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}

		publisher := events.NewPublisher(db, log)
		limiter := ratelimit.NewHostLimiter(cfg.Jobs.HostRate, cfg.Jobs.HostBurst)
		go pruneLimiter(ctx, limiter)

		manager := jobs.NewManager(jobs.NewPgStore(db, publisher), scraperService, limiter, jobs.Config{
			Workers:       cfg.Jobs.Workers,
			MaxURLsPerJob: cfg.Jobs.MaxURLsPerJob,
			PollInterval:  cfg.Jobs.PollInterval,
			JobTimeout:    cfg.Jobs.JobTimeout,
		}, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			manager.StartWorker(ctx)
		}()
		jobService = manager

		if cfg.Relay.Enabled && redisClient != nil {
			relay := database.NewRelay(db, redisClient, log, database.RelayConfig{
				PollInterval: cfg.Relay.PollInterval,
				BatchSize:    cfg.Relay.BatchSize,
			})
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("relay stopped with error", "error", err)
				}
			}()
			outboxStats = relay
		} else if cfg.Relay.Enabled {
			log.Warn("outbox relay disabled: redis is not available")
		}
	}

	handlers := api.NewHandlers(scraperService, jobService, outboxStats, log)
	router := api.NewRouter(handlers, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting",
		"addr", server.Addr,
		"jobs", cfg.Jobs.Enabled,
		"sites", registry.Sites(),
		"cache_ttl", cfg.Scraper.CacheTTL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	wg.Wait()
	log.Info("server stopped")
}

func cleanupCache(ctx context.Context, c *cache.MemoryCache, log *slog.Logger) {
	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				log.Debug("expired cache entries removed", "count", n)
			}
		}
	}
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.HostLimiter) {
	ticker := time.NewTicker(limiterIdleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune(limiterIdleTimeout)
		}
	}
}
