// FILE: main.go
// Package main – Program entrypoint: loads config, wires one
// Portfolio+Engine per credentialed exchange, and serves the webhook,
// balance and metrics HTTP endpoints.
//
// Boot sequence:
//   1) config.Load()       – read config.json + .env/environment
//   2) registry.New()      – build adapters/portfolios/engines per exchange
//   3) httpapi.New()       – wire webhook/balance/metrics handlers
//   4) serve on cfg.Port until SIGINT/SIGTERM, then shut down gracefully
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tv-order-executor/executor/internal/config"
	"github.com/tv-order-executor/executor/internal/httpapi"
	"github.com/tv-order-executor/executor/internal/notify"
	"github.com/tv-order-executor/executor/internal/registry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.json", "Path to the exchange/universe config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	var notifier notify.Notifier
	if cfg.LineNotifyToken != "" {
		notifier = notify.NewPerAssetThrottle(notify.NewLineNotifier(cfg.LineNotifyToken), time.Minute)
	} else {
		notifier = notify.NoopNotifier{}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg, err := registry.New(ctx, cfg, notifier)
	if err != nil {
		log.Fatal().Err(err).Msg("building exchange registry")
	}

	server := httpapi.New(reg, notifier, cfg.OrderExecutionSecret)
	port := cfg.Port
	if port == 0 {
		port = 8000
	}
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: server.Routes()}

	go func() {
		log.Info().Int("port", port).Msg("serving webhook/balance/metrics")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
	defer c()
	_ = httpSrv.Shutdown(shutdownCtx)
}
