package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pomosync/go/internal/session"
)

// Service wires the session engine to WebSocket clients and, optionally, to
// a JetStream mirror
type Service struct {
	engine            *session.Engine
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	mirror            *Mirror
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	EngineConfig     session.Config
	// MirrorConfig is nil when broadcasts should not be mirrored to NATS
	MirrorConfig *MirrorConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		EngineConfig:     session.DefaultConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	var out session.Broadcaster = connectionManager
	var mirror *Mirror
	if config.MirrorConfig != nil {
		m, err := NewMirror(*config.MirrorConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create broadcast mirror: %w", err)
		}
		mirror = m
		out = Fanout{connectionManager, mirror}
	}

	engine := session.NewEngine(config.EngineConfig, out)

	return &Service{
		engine:            engine,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, engine),
		stateHandler:      NewStateHandler(engine),
		mirror:            mirror,
	}, nil
}

// Start runs the engine, the connection manager and the mirror until ctx is
// cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	go s.connectionManager.Start(ctx)

	if s.mirror != nil {
		go s.mirror.Run(ctx)
	}

	err := s.engine.Run(ctx)

	log.Info().Msg("gateway service shutting down")
	if stopErr := s.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

// Stop releases external connections
func (s *Service) Stop() error {
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			return fmt.Errorf("failed to close broadcast mirror: %w", err)
		}
	}

	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "pomosync_gateway"
	stats["mirror_enabled"] = s.mirror != nil
	if s.mirror != nil {
		stats["mirror_connected"] = s.mirror.Connected()
	}
	return stats
}
