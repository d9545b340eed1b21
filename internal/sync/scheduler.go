package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

const (
	// A failed run is retried after a minute instead of waiting out the
	// full interval.
	retryInterval = time.Minute

	meetupTaskTimeout  = 60 * time.Second
	discordTaskTimeout = 5 * time.Minute
	expiryTaskTimeout  = 5 * time.Minute
)

// Scheduler drives the background tasks on a fixed cadence and exposes
// manual triggers for the organizer chat commands. Singleflight collapses a
// manual trigger into an already running scheduled pass of the same task.
type Scheduler struct {
	importer *Importer // nil when no Meetup groups are configured
	syncer   *Syncer
	expirer  *Expirer

	interval time.Duration
	clock    clockwork.Clock
	group    singleflight.Group
}

func NewScheduler(importer *Importer, syncer *Syncer, expirer *Expirer, interval time.Duration, clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		importer: importer,
		syncer:   syncer,
		expirer:  expirer,
		interval: interval,
		clock:    clock,
	}
}

// Run executes all tasks immediately and then on the configured interval
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := s.interval
		if err := s.runAll(ctx); err != nil {
			slog.Warn("sync pass failed, retrying early", "retry_in", retryInterval, "error", err)
			wait = retryInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) error {
	var errs []error
	if s.importer != nil {
		errs = append(errs, s.runMeetup(ctx))
	}
	errs = append(errs, s.runDiscord(ctx), s.runExpiry(ctx))
	return errors.Join(errs...)
}

func (s *Scheduler) runMeetup(ctx context.Context) error {
	_, err, _ := s.group.Do("meetup", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, meetupTaskTimeout)
		defer cancel()
		return nil, s.importer.Run(ctx)
	})
	return err
}

func (s *Scheduler) runDiscord(ctx context.Context) error {
	_, err, _ := s.group.Do("discord", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, discordTaskTimeout)
		defer cancel()
		return nil, s.syncer.SyncAll(ctx)
	})
	return err
}

func (s *Scheduler) runExpiry(ctx context.Context) error {
	_, err, _ := s.group.Do("expiry", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, expiryTaskTimeout)
		defer cancel()
		return nil, s.expirer.Run(ctx)
	})
	return err
}

// TriggerMeetupSync runs the Meetup import in the background, typically in
// response to the "sync meetup" command. A no-op when imports are disabled.
func (s *Scheduler) TriggerMeetupSync() {
	if s.importer == nil {
		return
	}
	go func() {
		if err := s.runMeetup(context.Background()); err != nil {
			slog.Error("manual meetup sync failed", "error", err)
		}
	}()
}

// TriggerDiscordSync runs the Discord reconciliation in the background.
func (s *Scheduler) TriggerDiscordSync() {
	go func() {
		if err := s.runDiscord(context.Background()); err != nil {
			slog.Error("manual discord sync failed", "error", err)
		}
	}()
}

// TriggerExpiry runs the expiry sweep in the background.
func (s *Scheduler) TriggerExpiry() {
	go func() {
		if err := s.runExpiry(context.Background()); err != nil {
			slog.Error("manual expiry sweep failed", "error", err)
		}
	}()
}
