package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// StaleCleaner removes sessions older than maxAge.
type StaleCleaner interface {
	CleanupStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// Janitor is a cron job that prunes stale sessions.
type Janitor struct {
	cleaner StaleCleaner
	maxAge  time.Duration
	timeout time.Duration
}

func NewJanitor(cleaner StaleCleaner, maxAge time.Duration) *Janitor {
	return &Janitor{
		cleaner: cleaner,
		maxAge:  maxAge,
		timeout: time.Minute,
	}
}

// Run performs one cleanup pass.
func (j *Janitor) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	removed, err := j.cleaner.CleanupStale(ctx, j.maxAge)
	if err != nil {
		log.Error().Err(err).Dur("max_age", j.maxAge).Msg("stale session cleanup failed")
		return
	}
	log.Info().Int("removed", removed).Dur("max_age", j.maxAge).Msg("stale session cleanup finished")
}

// Schedule starts a cron scheduler running the janitor on spec. Stop the
// returned scheduler on shutdown.
func (j *Janitor) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddJob(spec, j); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	c.Start()
	log.Info().Str("schedule", spec).Dur("max_age", j.maxAge).Msg("stale session cleanup scheduled")
	return c, nil
}
