package main

import (
	"context"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/planning-poker/go/internal/config"
	"github.com/mcdev12/planning-poker/go/internal/session"
	"github.com/mcdev12/planning-poker/go/internal/session/gateway"
)

type Services struct {
	App     *session.App
	Gateway *gateway.Service
}

func setupServices(cfg *config.Config, store session.SessionStore, publisher gateway.EventPublisher, clock clockwork.Clock) *Services {
	// Store → App → Gateway (dispatcher, hub, connections, feed)
	app := session.NewApp(store, clock)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Policy = gateway.Policy{DealerOnly: cfg.DealerOnly}
	gatewayConfig.FeedBuffer = cfg.Events.Buffer

	return &Services{
		App:     app,
		Gateway: gateway.NewService(gatewayConfig, app, publisher, clock),
	}
}

func setupPublisher(ctx context.Context, cfg config.EventsConfig) (gateway.EventPublisher, error) {
	switch cfg.Broker {
	case config.BrokerNATS:
		jsConfig := gateway.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATSURL
		jsConfig.StreamName = cfg.NATSStream
		return gateway.NewNATSPublisher(ctx, jsConfig)
	case config.BrokerStomp:
		return gateway.NewStompPublisher(gateway.StompConfig{
			Addr:     cfg.StompAddr,
			User:     cfg.StompUser,
			Password: cfg.StompPass,
		})
	default:
		return gateway.NewLogPublisher(), nil
	}
}
