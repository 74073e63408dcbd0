package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/heliostat/heliostat/internal/aggregate"
	"github.com/heliostat/heliostat/internal/alerts"
	"github.com/heliostat/heliostat/internal/api"
	"github.com/heliostat/heliostat/internal/cache"
	"github.com/heliostat/heliostat/internal/config"
	"github.com/heliostat/heliostat/internal/feed"
	"github.com/heliostat/heliostat/internal/metrics"
	"github.com/heliostat/heliostat/internal/persist"
	"github.com/heliostat/heliostat/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Env file holds webhook URLs and other secrets kept out of config.yaml.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found", "err", err)
	}

	slog.Info("heliostat starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"feeds", len(cfg.Feeds),
		"ttl", cfg.Cache.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mtr := metrics.New()
	client := feed.NewClient(cfg.Server.UserAgent)
	agg := aggregate.New(cfg.Specs(), client)

	cacheOpts := []cache.Option{cache.WithMetrics(mtr)}
	if cfg.Persist.Path != "" {
		store, err := persist.Open(cfg.Persist.Path)
		if err != nil {
			slog.Error("failed to open persist store; continuing without it",
				"path", cfg.Persist.Path, "err", err)
		} else {
			defer store.Close()
			cacheOpts = append(cacheOpts, cache.WithPersist(store))
			slog.Info("persist store opened", "path", cfg.Persist.Path)
		}
	}
	snapCache := cache.New(agg, cfg.Cache.TTL, cacheOpts...)

	alertEngine, err := alerts.New(cfg.Alerts)
	if err != nil {
		slog.Error("invalid alert configuration", "err", err)
		os.Exit(1)
	}

	hub := ws.New()
	go hub.Run(ctx)

	// Every installed snapshot feeds the alert engine and the dashboard.
	snapCache.OnSnapshot(alertEngine.Evaluate)
	snapCache.OnSnapshot(hub.Broadcast)

	// Watch config for hot-reload. Rebuilding feeds on reload is not done
	// yet; a change in feed definitions still needs a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			slog.Info("config hot-reloaded", "feeds", len(updated.Feeds))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Warm the cache so the first dashboard request doesn't pay for the
	// initial refresh cycle.
	go func() {
		if _, err := snapCache.Get(ctx); err != nil {
			slog.Warn("initial snapshot refresh failed", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws/stream", hub)
	mux.Handle("/", api.New(snapCache, alertEngine, mtr.Handler(), *uiDir))

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: mux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "err", err)
	}
	slog.Info("heliostat stopped")
}
