package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pomosync/go/internal/session"
)

// MirrorConfig holds configuration for the JetStream broadcast mirror
type MirrorConfig struct {
	URL            string
	StreamName     string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	MaxAge         time.Duration // How long to keep messages
	PublishTimeout time.Duration
	QueueSize      int
}

// DefaultMirrorConfig returns default mirror configuration
func DefaultMirrorConfig() MirrorConfig {
	return MirrorConfig{
		URL:            nats.DefaultURL,
		StreamName:     "FOCUS_EVENTS",
		SubjectPrefix:  "focus.events",
		MaxReconnects:  -1, // Infinite
		ReconnectWait:  2 * time.Second,
		MaxAge:         24 * time.Hour,
		PublishTimeout: 5 * time.Second,
		QueueSize:      1024,
	}
}

// Mirror republishes every engine broadcast to JetStream. Targeted sends are
// per-connection catch-up and are not mirrored.
type Mirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config MirrorConfig
	queue  chan session.Event
}

// NewMirror connects to NATS and makes sure the stream exists
func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	opts := []nats.Option{
		nats.Name("pomosync-gateway"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	m := newMirror(js, cfg)
	m.nc = nc

	if err := m.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return m, nil
}

func newMirror(js jetstream.JetStream, cfg MirrorConfig) *Mirror {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &Mirror{
		js:     js,
		config: cfg,
		queue:  make(chan session.Event, cfg.QueueSize),
	}
}

func (m *Mirror) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        m.config.StreamName,
		Description: "Shared focus timer and roster updates",
		Subjects:    []string{fmt.Sprintf("%s.>", m.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      m.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	if _, err := m.js.Stream(ctx, m.config.StreamName); err != nil {
		if _, err = m.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", m.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	log.Info().
		Str("stream", m.config.StreamName).
		Msg("using existing JetStream stream")
	return nil
}

// Broadcast queues event for publishing without blocking the caller
func (m *Mirror) Broadcast(event session.Event) {
	select {
	case m.queue <- event:
	default:
		log.Warn().
			Str("event_type", string(event.Type)).
			Msg("mirror queue full, dropping event")
	}
}

// SendTo is a no-op; only broadcasts are mirrored
func (m *Mirror) SendTo(string, session.Event) {}

// Run publishes queued events until ctx is cancelled
func (m *Mirror) Run(ctx context.Context) {
	log.Info().
		Str("stream", m.config.StreamName).
		Str("subject_prefix", m.config.SubjectPrefix).
		Msg("broadcast mirror started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast mirror shutting down")
			return
		case event := <-m.queue:
			if err := m.publish(ctx, event); err != nil {
				log.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("failed to mirror event")
			}
		}
	}
}

func (m *Mirror) subject(t session.EventType) string {
	return fmt.Sprintf("%s.%s", m.config.SubjectPrefix, t)
}

func (m *Mirror) publish(ctx context.Context, event session.Event) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.PublishTimeout)
	defer cancel()

	eventID := uuid.New().String()
	subject := m.subject(event.Type)

	ack, err := m.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    event.Data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Event-ID":   []string{eventID},
		},
	},
		jetstream.WithMsgID(eventID),
		jetstream.WithExpectStream(m.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", eventID).
		Uint64("sequence", ack.Sequence).
		Msg("mirrored event")

	return nil
}

// Connected reports whether the NATS connection is up
func (m *Mirror) Connected() bool {
	return m.nc != nil && m.nc.IsConnected()
}

// Close drops the NATS connection
func (m *Mirror) Close() error {
	if m.nc != nil {
		m.nc.Close()
	}
	return nil
}
