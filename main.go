// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-tool-gateway/pkg/auth"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/config"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/invoker"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/keepalive"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/metrics"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/proxy"
	"github.com/go-core-stack/mcp-tool-gateway/pkg/upstream"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = log.Level(level)

	validator, err := auth.NewTokenValidator(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		log.Fatal().Err(err).Str("algorithm", cfg.JWTAlgorithm).Msg("failed to configure token validation")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	opener := upstream.NewSSEOpener(cfg, &mcp.Implementation{Name: "mcp-tool-gateway", Version: version})
	manager := upstream.NewManager(opener,
		upstream.WithConnectTimeout(cfg.ConnectTimeout),
		upstream.WithProbeTimeout(cfg.CallTimeout),
		upstream.WithLogger(log.Logger),
		upstream.WithMetrics(mt),
	)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	snapshot, err := manager.Connect(connectCtx)
	cancelConnect()
	switch {
	case err == nil:
		log.Info().Int("tools", snapshot.Len()).Msg("connected to upstream tool server")
	case cfg.RequireUpstream:
		_ = manager.Close()
		log.Fatal().Err(err).Str("upstream", cfg.Upstream.String()).Msg("upstream tool server unreachable")
	default:
		log.Warn().Err(err).Str("upstream", cfg.Upstream.String()).
			Msg("upstream tool server unreachable; will retry on first request")
	}

	scheduler := keepalive.New(cfg.KeepAliveInterval, manager, log.Logger)
	if err := scheduler.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to start keepalive")
	}

	handler, err := proxy.New(proxy.Options{
		Invoker:       invoker.New(manager, cfg.CallTimeout, log.Logger, mt),
		Authenticator: validator,
		Status:        manager,
		Metrics:       mt,
		Logger:        log.Logger,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct request handler")
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("upstream", cfg.Upstream.String()).
			Str("version", version).
			Msg("starting MCP tool gateway")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("gateway server exited unexpectedly")
		}
	}()

	waitForShutdown(context.Background(), server, scheduler, manager, cfg.GracefulShutdownTimeout)
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops accepting
// requests, joins the keepalive loop and closes the upstream session, all
// within timeout.
func waitForShutdown(ctx context.Context, srv *http.Server, scheduler *keepalive.Scheduler, manager *upstream.Manager, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	log.Info().Msg("shutting down MCP tool gateway")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("keepalive did not stop cleanly")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed; forcing close")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("forced close failed")
		}
	}

	if err := manager.Close(); err != nil {
		log.Error().Err(err).Msg("closing upstream session failed")
	}

	log.Info().Msg("gateway stopped")
}
