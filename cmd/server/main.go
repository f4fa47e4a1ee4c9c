// Command server starts the CS2 inspect gateway HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/cache/rediscache"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/feed/kafka"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/gamebridge"
	gbstub "github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/gamebridge/stub"
	httpserver "github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/httpserver"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/schema"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/app"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/config"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/fleet"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	// Infra: DB pool and schema
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}
	assetRepo := postgres.NewAssetRepo(pool)
	historyRepo := postgres.NewHistoryRepo(pool)

	// Item cache
	cache, err := rediscache.New(ctx, cfg.RedisAddr, cfg.CacheTTL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = cache.Close() }()

	// Optional price feed
	var feed domain.ResultFeed
	if cfg.FeedEnabled() {
		f, err := kafka.New(ctx, cfg.KafkaBrokers, cfg.FeedTopic)
		if err != nil {
			slog.Error("feed connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		feed = f
		defer func() { _ = f.Close() }()
	}

	// Bot accounts and transport
	creds, err := app.LoadCredentials(cfg.AccountsPath, cfg.BlacklistPath)
	if err != nil {
		slog.Error("account load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if len(creds) == 0 {
		slog.Warn("no bot accounts configured; every inspect will fail fast")
	}

	var factory domain.GameClientFactory
	if cfg.IsTest() {
		factory = gbstub.NewFactory(50 * time.Millisecond)
	} else {
		factory = gamebridge.NewFactory(gamebridge.Options{
			BaseURL:     cfg.GameBridgeURL,
			SessionPath: cfg.SessionPath,
			ProxyURL:    cfg.ProxyURL,
			Timeout:     cfg.InspectTimeout,
		})
	}

	// Without dedicated workers the whole fleet runs on one shard.
	botsPerWorker := cfg.BotsPerWorker
	if !cfg.WorkerEnabled && len(creds) > 0 {
		botsPerWorker = len(creds)
	}
	manager := fleet.NewManager(creds, factory, fleet.Options{
		BotsPerWorker:        botsPerWorker,
		MaxQueueSize:         cfg.MaxQueueSize,
		QueueTimeout:         cfg.QueueTimeout,
		InspectTimeout:       cfg.InspectTimeout,
		CooldownTime:         cfg.BotCooldownTime,
		MaxRetries:           cfg.MaxRetries,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		BaseReconnectDelay:   cfg.BaseReconnectDelay,
		MaxReconnectDelay:    cfg.MaxReconnectDelay,
		HealthCheckInterval:  cfg.HealthCheckInterval,
		StatsUpdateInterval:  cfg.StatsUpdateInterval,
	})
	manager.Start(ctx)

	// Coordination and HTTP surface
	inspectSvc := usecase.NewInspectService(manager, assetRepo, historyRepo, cache, feed, cfg.AllowRefresh)

	sch, err := schema.Load()
	if err != nil {
		slog.Error("schema load failed", slog.Any("error", err))
		os.Exit(1)
	}

	srv := httpserver.NewServer(cfg, inspectSvc, manager, sch, app.DBCheck(pool), app.RedisCheck(cache))
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.Int("bots", len(creds)))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	manager.Shutdown(shutdownCtx)
}
