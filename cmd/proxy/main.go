package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/app"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/config"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/edge"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/logger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.LoadProxyConfig()
	log := logger.New("proxy", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver, err := edge.NewResolver(cfg.ServingMode)
	if err != nil {
		log.Error("invalid serving mode", "mode", cfg.ServingMode, "error", err)
		os.Exit(1)
	}

	store, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		log.Error("failed to open storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	handler := edge.NewHandler(resolver, store, log, prometheus.DefaultRegisterer)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("proxy server starting", "addr", cfg.Addr, "mode", resolver.Mode(), "storage", cfg.Storage.Backend)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		log.Info("proxy server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
