package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/meetup"
	"github.com/AlpTkz/discord-bot/internal/metrics"
)

// EventSource is the slice of the Meetup API the importer consumes.
type EventSource interface {
	UpcomingEvents(ctx context.Context, groupURLName string) ([]meetup.UpcomingEvent, error)
	EventRSVPs(ctx context.Context, groupURLName, eventID string) ([]uint64, error)
}

// EventStore is where mirrored events end up.
type EventStore interface {
	StoreEvent(ctx context.Context, seriesID string, event domain.Event, userIDs, hostIDs []uint64) error
	SetSeriesTypeIfUnset(ctx context.Context, seriesID string, seriesType domain.SeriesType) error
}

// Importer mirrors the upcoming events of the configured Meetup groups
// into Redis, where the Discord reconciler picks them up.
type Importer struct {
	source EventSource
	store  EventStore
	groups []string
	clock  clockwork.Clock
}

func NewImporter(source EventSource, store EventStore, groups []string, clock clockwork.Clock) *Importer {
	return &Importer{source: source, store: store, groups: groups, clock: clock}
}

// Run imports all configured groups. Group failures are logged and counted
// but do not stop the remaining groups.
func (i *Importer) Run(ctx context.Context) error {
	start := i.clock.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("meetup").Observe(i.clock.Since(start).Seconds())
	}()

	failures := 0
	for _, group := range i.groups {
		if err := i.importGroup(ctx, group); err != nil {
			failures++
			slog.Error("meetup import failed", "group", group, "error", err)
		}
	}

	if failures > 0 {
		metrics.SyncRunsTotal.WithLabelValues("meetup", "error").Inc()
		return fmt.Errorf("%d of %d meetup groups failed to import", failures, len(i.groups))
	}
	metrics.SyncRunsTotal.WithLabelValues("meetup", "ok").Inc()
	return nil
}

func (i *Importer) importGroup(ctx context.Context, group string) error {
	events, err := i.source.UpcomingEvents(ctx, group)
	if err != nil {
		return err
	}

	for _, event := range events {
		rsvps, err := i.source.EventRSVPs(ctx, group, event.ID)
		if err != nil {
			return err
		}
		if err := i.store.StoreEvent(ctx, event.SeriesID, domain.Event{
			ID:   event.ID,
			Name: event.Name,
			Time: event.Time,
			Link: event.Link,
		}, rsvps, event.HostIDs); err != nil {
			return err
		}
		if err := i.store.SetSeriesTypeIfUnset(ctx, event.SeriesID, classifySeries(event.Name)); err != nil {
			return err
		}
	}

	slog.Info("meetup group imported", "group", group, "events", len(events))
	return nil
}

// classifySeries guesses the series type from the event name. Organizers
// can overrule the guess in Redis, it is only written on first sight.
func classifySeries(eventName string) domain.SeriesType {
	if strings.Contains(strings.ToLower(eventName), "campaign") {
		return domain.SeriesTypeCampaign
	}
	return domain.SeriesTypeAdventure
}
