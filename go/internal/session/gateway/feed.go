package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Feed forwards accepted events to an EventPublisher from a single worker
// goroutine, so publishing never blocks a session and keeps enqueue order.
type Feed struct {
	publisher EventPublisher
	events    chan *Event
	timeout   time.Duration
	done      chan struct{}
	startOnce sync.Once
}

// NewFeed creates a feed with room for buffer pending events.
func NewFeed(publisher EventPublisher, buffer int) *Feed {
	return &Feed{
		publisher: publisher,
		events:    make(chan *Event, buffer),
		timeout:   5 * time.Second,
		done:      make(chan struct{}),
	}
}

// Enqueue never blocks. Events are dropped with a warning when the buffer is full.
func (f *Feed) Enqueue(events ...*Event) {
	for _, ev := range events {
		select {
		case f.events <- ev:
		default:
			log.Warn().
				Str("event_id", ev.ID).
				Str("event_type", string(ev.Type)).
				Msg("event feed full, dropping event")
		}
	}
}

// Start publishes queued events until ctx is cancelled, then drains what is left.
func (f *Feed) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		defer close(f.done)
		log.Info().Msg("event feed started")
		for {
			select {
			case <-ctx.Done():
				f.drain()
				log.Info().Msg("event feed stopped")
				return
			case ev := <-f.events:
				f.publish(ev)
			}
		}
	})
}

// Wait blocks until Start has returned.
func (f *Feed) Wait() {
	<-f.done
}

func (f *Feed) drain() {
	for {
		select {
		case ev := <-f.events:
			f.publish(ev)
		default:
			return
		}
	}
}

func (f *Feed) publish(ev *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.publisher.Publish(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("event_id", ev.ID).
			Str("event_type", string(ev.Type)).
			Msg("failed to publish event")
	}
}
