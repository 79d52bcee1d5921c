package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/zalohook/app/repository"
	"github.com/ManuelReschke/zalohook/docs"
	"github.com/ManuelReschke/zalohook/internal/pkg/cache"
	"github.com/ManuelReschke/zalohook/internal/pkg/config"
	"github.com/ManuelReschke/zalohook/internal/pkg/constants"
	"github.com/ManuelReschke/zalohook/internal/pkg/database"
	"github.com/ManuelReschke/zalohook/internal/pkg/env"
	"github.com/ManuelReschke/zalohook/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/zalohook/internal/pkg/middleware"
	"github.com/ManuelReschke/zalohook/internal/pkg/ratelimit"
	"github.com/ManuelReschke/zalohook/internal/pkg/router"
	"github.com/ManuelReschke/zalohook/internal/pkg/signature"
	"github.com/ManuelReschke/zalohook/internal/pkg/webhook"
)

const (
	counterFlushInterval = 10 * time.Second
	shutdownTimeout      = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sign" {
		os.Exit(runSign(os.Args[2:], os.Stdin, os.Stdout, os.Stderr))
	}

	app, cfg, cleanup := NewApplication()

	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			log.Fatalf("[Server] listen on %s: %v", cfg.ListenAddr(), err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Server] shutdown: %v", err)
	}
	cleanup()
}

// NewApplication loads the configuration, connects the stores and builds
// the fiber app. The returned cleanup stops background work and closes
// connections.
func NewApplication() (*fiber.App, config.Config, func()) {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}
	if cfg.AppEnv == "dev" {
		log.SetLevel(log.LevelDebug)
	} else {
		log.SetLevel(log.LevelInfo)
	}
	if cfg.Zalo.SkipVerification {
		log.Warn("[Config] SKIP_SIGNATURE_VERIFICATION is enabled, webhook signatures are not checked")
	}

	db, err := database.SetupDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("[Database] %v", err)
	}
	rdb, err := cache.SetupCache(cfg.Cache)
	if err != nil {
		log.Fatalf("[Cache] %v", err)
	}

	counters := counter.New()
	limiter := ratelimit.New(rdb, ratelimit.Options{
		Limit:   cfg.RateLimit.Limit,
		Window:  cfg.RateLimit.Window,
		Timeout: cfg.RateLimit.Timeout,
	})
	verifier := signature.NewVerifier(cfg.Zalo.AppID, cfg.Zalo.SecretKey, cfg.Zalo.TimestampTolerance, cfg.Zalo.SignatureScheme)
	events := repository.NewFactory(db, cfg.Database.Timeout).GetWebhookEventRepository()
	pipeline := webhook.NewPipeline(limiter, verifier, events, counters, webhook.Options{
		SignatureHeader:  cfg.Zalo.SignatureHeader,
		MaxPayloadBytes:  cfg.MaxPayloadBytes,
		SkipVerification: cfg.Zalo.SkipVerification,
	})

	// init fiber app; the pipeline answers oversized bodies itself after
	// rate limiting, so fiber's own limit is set above it.
	app := fiber.New(fiber.Config{
		AppName:   "zalohook",
		BodyLimit: 4 * cfg.MaxPayloadBytes,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if cfg.Admin.Enabled() {
		app.Get(constants.MetricsRoute, middleware.AdminAuth(cfg.Admin), monitor.New())
	}

	// SWAGGER / OPENAPI
	if basePath, ok := findBasePath(); ok {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsBasePath,
			FilePath: basePath + docs.OpenAPIFile,
			Path:     constants.DocsVersionPath,
		}))
	} else {
		log.Warnf("[Server] %s not found, API docs disabled", docs.OpenAPIFile)
	}

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Config:   cfg,
		Pipeline: pipeline,
		Events:   events,
		Counters: counters,
		Redis:    rdb,
	})

	stopFlush := startCounterFlush(counters, rdb)

	cleanup := func() {
		stopFlush()
		if err := cache.Close(); err != nil {
			log.Warnf("[Cache] close: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return app, cfg, cleanup
}

// findBasePath locates the project root from the usual working directories.
func findBasePath() (string, bool) {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/zalohook to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + docs.OpenAPIFile); err == nil {
			return path, true
		}
	}
	return "", false
}

// startCounterFlush pushes process counters into Redis until stopped. The
// final flush runs on stop so a clean shutdown loses nothing.
func startCounterFlush(counters *counter.Counters, rdb *redis.Client) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(counterFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = counters.Flush(flushCtx, rdb)
				flushCancel()
				return
			case <-ticker.C:
				flushCtx, flushCancel := context.WithTimeout(ctx, 2*time.Second)
				_ = counters.Flush(flushCtx, rdb)
				flushCancel()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
