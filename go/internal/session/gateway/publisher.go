package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

// EventPublisher hands accepted room events to an outbound feed.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// LogPublisher writes every event to the log. It is the default feed.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, event *Event) error {
	log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID).
		Msg("session event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	DuplicateWindow time.Duration // Window for duplicate detection
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "POKER_EVENTS",
		SubjectPrefix:   "poker.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	}
}

// NATSPublisher publishes events to a JetStream stream, one subject per event type.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewNATSPublisher(ctx context.Context, cfg JetStreamConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
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

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Planning poker session events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  cfg.DuplicateWindow,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &NATSPublisher{nc: nc, js: js, config: cfg}, nil
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType EventType) string {
	return natsSubject(p.config.SubjectPrefix, eventType)
}

func natsSubject(prefix string, eventType EventType) string {
	// NATS subjects are dot separated, so "round:revealed" becomes "round_revealed"
	t := []byte(eventType)
	for i, c := range t {
		if c == ':' || c == '.' {
			t[i] = '_'
		}
	}
	return prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.Subject(event.Type)
	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Session-ID": []string{event.SessionID},
			"Event-ID":   []string{event.ID},
		},
	},
		jetstream.WithMsgID(event.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

type StompConfig struct {
	Addr     string
	User     string
	Password string
}

// StompPublisher sends events to a per-session topic on a STOMP broker.
type StompPublisher struct {
	conn *stomp.Conn
}

func NewStompPublisher(cfg StompConfig) (*StompPublisher, error) {
	options := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host("/"),
	}
	if cfg.User != "" {
		options = append(options, stomp.ConnOpt.Login(cfg.User, cfg.Password))
	}

	conn, err := stomp.Dial("tcp", cfg.Addr, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to STOMP broker: %w", err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("connected to STOMP broker")
	return &StompPublisher{conn: conn}, nil
}

func stompDestination(sessionID string) string {
	return "/topic/poker." + sessionID
}

func (p *StompPublisher) Publish(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.conn.Send(stompDestination(event.SessionID), "application/json", data,
		stomp.SendOpt.Header("event-type", string(event.Type)),
		stomp.SendOpt.Header("event-id", event.ID),
	)
	if err != nil {
		return fmt.Errorf("send to STOMP broker: %w", err)
	}
	return nil
}

func (p *StompPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Disconnect()
}
