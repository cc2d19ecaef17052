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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/app"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/config"
	httpx "github.com/GeneCodeSavvy/maybe-vercel/internal/http"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/logger"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/service/project"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/slug"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/ws"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logBroker, err := app.OpenBroker(ctx, cfg.Broker, log)
	if err != nil {
		log.Error("failed to connect to broker", "backend", cfg.Broker.Backend, "error", err)
		os.Exit(1)
	}
	defer logBroker.Close()

	registry, closeRegistry, err := app.OpenRegistry(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open project registry", "backend", cfg.RegistryBackend, "error", err)
		os.Exit(1)
	}
	defer closeRegistry()

	exec, closeExecutor, err := app.OpenExecutor(ctx, cfg, logBroker, log)
	if err != nil {
		log.Error("failed to configure executor", "backend", cfg.ExecutorBackend, "error", err)
		os.Exit(1)
	}
	defer closeExecutor()

	relay := ws.NewRelay(logBroker, log, ws.Options{QueueSize: cfg.RelayQueueSize, Registerer: prometheus.DefaultRegisterer})
	defer relay.Close()

	projectSvc := project.New(registry, exec, slug.New(), project.Options{
		ServingMode:    cfg.ServingMode,
		ServingDomain:  cfg.ServingDomain,
		ServingScheme:  cfg.ServingScheme,
		ServingBaseURL: cfg.ServingBaseURL,
		LaunchTimeout:  cfg.LaunchTimeout,
	}, log)

	var limiter httpx.CreateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = httpx.NewMemoryCreateLimiter(cfg.RateLimitPerMinute, time.Minute)
		if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
			shared, err := httpx.NewRedisCreateLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, cfg.RateLimitPerMinute, time.Minute)
			if err != nil {
				log.Warn("redis create limiter unavailable, limiting per replica", "error", err)
			} else {
				limiter = shared
			}
		}
	}

	router := httpx.NewRouter(log, projectSvc, relay, httpx.Options{
		CORSOrigins:   cfg.CORSOrigins,
		CreateLimiter: limiter,
		Registerer:    prometheus.DefaultRegisterer,
		HealthChecks: map[string]httpx.HealthCheck{
			"broker":   logBroker.Ping,
			"registry": registry.Ping,
		},
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "executor", cfg.ExecutorBackend, "broker", cfg.Broker.Backend)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
