package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ent0n29/meetscribe/internal/archive"
	"github.com/ent0n29/meetscribe/internal/compress"
	"github.com/ent0n29/meetscribe/internal/config"
	"github.com/ent0n29/meetscribe/internal/discord"
	"github.com/ent0n29/meetscribe/internal/events"
	"github.com/ent0n29/meetscribe/internal/httpapi"
	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/observability"
	"github.com/ent0n29/meetscribe/internal/record"
	"github.com/ent0n29/meetscribe/internal/reconnect"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	archiveStore, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive store init failed: %v", err)
	}
	defer archiveStore.Close()

	var compressor *compress.Compressor
	if cfg.CompressRecordings {
		compressor, err = compress.NewCompressor(compress.Settings{
			BitrateKbps: cfg.CompressBitrateKbps,
			SampleRate:  cfg.CompressSampleRate,
			Channels:    cfg.CompressChannels,
		}, logger)
		if err != nil {
			logger.Warn("compression disabled", slog.String("error", err.Error()))
			compressor = nil
		}
	}

	store := meeting.NewStore()
	recorder := record.NewManager(cfg.RecordingsDir, logger, metrics)
	bus := events.NewBus()

	bot, err := discord.NewBot(cfg, discord.BotDeps{
		Store:      store,
		Recorder:   recorder,
		Archive:    archiveStore,
		Compressor: compressor,
		Bus:        bus,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("bot init failed: %v", err)
	}

	supervisor := reconnect.NewSupervisor(
		store,
		recorder,
		bot.Dialer(),
		bot,
		archiveStore,
		bus,
		metrics,
		logger,
		reconnect.Config{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			BaseDelay:   cfg.ReconnectBaseDelay,
			MaxDelay:    cfg.ReconnectMaxDelay,
		},
	)
	bot.SetSupervisor(supervisor)

	if err := bot.Open(); err != nil {
		log.Fatalf("gateway connect failed: %v", err)
	}
	defer func() {
		if err := bot.Close(); err != nil {
			logger.Warn("gateway close failed", slog.String("error", err.Error()))
		}
	}()

	api := httpapi.New(cfg, store, archiveStore, bus, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("ops server listening", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
