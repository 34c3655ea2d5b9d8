package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PurgeStore deletes alert history.
type PurgeStore interface {
	DeleteAlertsBefore(ctx context.Context, before time.Time) (int, error)
}

// Purger clears alert history once a day at a fixed local wall-clock time.
type Purger struct {
	Store  PurgeStore
	Logger zerolog.Logger
	Hour   int
	Minute int
	Now    func() time.Time
}

func NewPurger(s PurgeStore, logger zerolog.Logger, hour, minute int) *Purger {
	return &Purger{Store: s, Logger: logger, Hour: hour, Minute: minute, Now: time.Now}
}

// NextRun is the first hour:minute strictly after now in now's location.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PurgeOnce deletes every alert created before now.
func (p *Purger) PurgeOnce(ctx context.Context, now time.Time) (int, error) {
	n, err := p.Store.DeleteAlertsBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	p.Logger.Info().Int("deleted", n).Time("before", now).Msg("alert history purged")
	return n, nil
}

// Run sleeps until each scheduled time and purges, until ctx ends.
func (p *Purger) Run(ctx context.Context) error {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	for {
		next := NextRun(now(), p.Hour, p.Minute)
		p.Logger.Debug().Time("next_run", next).Msg("alert purge scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, err := p.PurgeOnce(ctx, now()); err != nil {
			p.Logger.Error().Err(err).Msg("scheduled alert purge failed")
		}
	}
}
