package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/pomosync/go/internal/config"
	"github.com/mcdev12/pomosync/go/internal/gateway"
	"github.com/mcdev12/pomosync/go/internal/session"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	setupLogging(cfg)

	log.Info().
		Str("port", cfg.Server.Port).
		Int("work_duration_sec", cfg.Timer.WorkDurationSec).
		Int("break_duration_sec", cfg.Timer.BreakDurationSec).
		Bool("mirror_enabled", cfg.MirrorEnabled()).
		Msg("starting pomosync gateway")

	gatewayService, err := gateway.NewService(gatewayConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	server := setupServer(cfg, gatewayService)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	select {
	case <-serviceDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("gateway service did not stop in time")
	}

	log.Info().Msg("pomosync gateway shutdown complete")
}

func setupLogging(cfg config.Config) {
	if cfg.Log.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func gatewayConfig(cfg config.Config) gateway.Config {
	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = gateway.AllowOrigins(cfg.Server.AllowedOrigins)

	gwCfg := gateway.Config{
		ConnectionConfig: connCfg,
		EngineConfig: session.Config{
			Durations: session.Durations{
				Work:  cfg.Timer.WorkDurationSec,
				Break: cfg.Timer.BreakDurationSec,
			},
			TickInterval: cfg.TickInterval(),
			Clock:        clockwork.NewRealClock(),
		},
	}

	if cfg.MirrorEnabled() {
		mirrorCfg := gateway.DefaultMirrorConfig()
		mirrorCfg.URL = cfg.NATS.URL
		mirrorCfg.StreamName = cfg.NATS.Stream
		mirrorCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		gwCfg.MirrorConfig = &mirrorCfg
	}

	return gwCfg
}

func setupServer(cfg config.Config, gatewayService *gateway.Service) *http.Server {
	mux := http.NewServeMux()

	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.GetStats()
		info := map[string]interface{}{
			"service":     "pomosync-gateway",
			"version":     "1.0.0",
			"connections": stats["total_connections"],
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to encode service info")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	// No WriteTimeout: it would cut long-lived WebSocket connections
	return &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}
