package gateway

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// App is the full session surface the gateway serves.
type App interface {
	SessionApp
	SessionDirectory
}

// Service is the session gateway: socket rooms, REST routes and the event feed
type Service struct {
	connectionManager *ConnectionManager
	hub               *Hub
	feed              *Feed
	publisher         EventPublisher
	restHandler       *RESTHandler
	wsHandler         *WebSocketHandler
	wg                sync.WaitGroup
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Policy           Policy
	FeedBuffer       int
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Policy:           Policy{DealerOnly: true},
		FeedBuffer:       1024,
	}
}

// NewService creates a new gateway service. A nil publisher means events
// are only logged.
func NewService(config Config, app App, publisher EventPublisher, clock clockwork.Clock) *Service {
	if publisher == nil {
		publisher = NewLogPublisher()
	}
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	feed := NewFeed(publisher, config.FeedBuffer)
	dispatcher := NewDispatcher(app, config.Policy, clock)
	hub := NewHub(dispatcher, connectionManager, feed, clock)
	connectionManager.SetHandler(hub)

	return &Service{
		connectionManager: connectionManager,
		hub:               hub,
		feed:              feed,
		publisher:         publisher,
		restHandler:       NewRESTHandler(app, hub),
		wsHandler:         NewWebSocketHandler(connectionManager, app),
	}
}

// Start runs the connection manager and the event feed until ctx is done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting session gateway service")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.connectionManager.Start(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.feed.Start(ctx)
	}()
}

// Stop waits for the background loops to finish and closes the publisher.
// ctx passed to Start must already be cancelled.
func (s *Service) Stop() error {
	s.wg.Wait()
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
		return err
	}
	log.Info().Msg("session gateway service stopped")
	return nil
}

// RegisterRoutes registers the REST and WebSocket routes
func (s *Service) RegisterRoutes(r gin.IRouter) {
	s.restHandler.RegisterRoutes(r)
	s.wsHandler.RegisterRoutes(r)
	log.Info().Msg("session gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
