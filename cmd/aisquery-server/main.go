package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"aisquery/internal/app"
	"aisquery/internal/config"
	"aisquery/internal/db"
	"aisquery/internal/httpapi"
	"aisquery/internal/metrics"
	"aisquery/internal/mqtt"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := db.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.SQLitePath)
	if err != nil {
		logger.Error("connect db failed", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	planner, err := app.NewPlanner(cfg.Planner, cfg.Pipeline.PlannerTimeout)
	if err != nil {
		logger.Error("init planner failed", "error", err)
		os.Exit(1)
	}

	clock, err := app.Clock(ctx, cfg.Pipeline, store, logger)
	if err != nil {
		logger.Error("read data range failed", "error", err)
		os.Exit(1)
	}

	pipeline := app.NewPipeline(cfg.Pipeline, planner, store, clock, logger)
	go pipeline.Sessions.RunSweeper(ctx, cfg.Pipeline.SessionSweepEvery, logger)

	m := metrics.New()
	pipeline.Service.AddObserver(m)

	var hub *mqtt.Hub
	if cfg.MQTT.Enabled {
		hub = mqtt.NewHub(mqtt.HubConfig{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, pipeline.Service, m, logger)
		if err := hub.Start(ctx); err != nil {
			logger.Error("start mqtt hub failed", "error", err)
			os.Exit(1)
		}
		logger.Info("mqtt hub started", "broker", cfg.MQTT.BrokerURL, "prefix", cfg.MQTT.TopicPrefix)
	}

	api := httpapi.NewServer(pipeline.Service, httpapi.Options{
		Store:    store,
		Observer: m,
		Metrics:  m.Handler(),
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("aisquery server started",
			"addr", cfg.HTTPAddr,
			"store", cfg.Store.Driver,
			"planner", cfg.Planner.Mode,
			"anchor_to_data", cfg.Pipeline.AnchorToData,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	cancel()
	if hub != nil {
		hub.Wait()
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
