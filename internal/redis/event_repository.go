package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/AlpTkz/discord-bot/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// EventRepo owns the Meetup event mirror and the series-to-channel mapping.
// The Meetup sync task writes events through StoreEvent, the Discord sync
// task reads them back.
type EventRepo struct {
	rdb *goredis.Client
}

func NewEventRepo(rdb *goredis.Client) *EventRepo {
	return &EventRepo{rdb: rdb}
}

func (r *EventRepo) SeriesIDs(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, keyEventSeries).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list event series: %w", err)
	}
	return ids, nil
}

// SeriesEvents loads all events of a series. Events with a missing or
// unparsable time are dropped with a log line rather than failing the
// whole series.
func (r *EventRepo) SeriesEvents(ctx context.Context, seriesID string) ([]domain.Event, error) {
	eventIDs, err := r.rdb.SMembers(ctx, keySeriesEvents(seriesID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events for series %s: %w", seriesID, err)
	}

	events := make([]domain.Event, 0, len(eventIDs))
	for _, eventID := range eventIDs {
		vals, err := r.rdb.HMGet(ctx, keyEvent(eventID), "time", "name", "link").Result()
		if err != nil {
			slog.Warn("Failed to load event hash", "event", eventID, "error", err)
			continue
		}
		timeStr, _ := vals[0].(string)
		name, _ := vals[1].(string)
		link, _ := vals[2].(string)

		t, err := time.Parse(time.RFC3339, timeStr)
		if err != nil {
			slog.Warn("Failed to parse event time", "event", eventID, "time", timeStr, "error", err)
			continue
		}
		events = append(events, domain.Event{
			ID:   eventID,
			Name: name,
			Time: t.UTC(),
			Link: link,
		})
	}
	return events, nil
}

// StoreEvent mirrors one Meetup event into Redis, replacing the previous
// RSVP sets so withdrawn RSVPs disappear.
func (r *EventRepo) StoreEvent(ctx context.Context, seriesID string, event domain.Event, userIDs, hostIDs []uint64) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, keyEventSeries, seriesID)
		pipe.SAdd(ctx, keySeriesEvents(seriesID), event.ID)
		pipe.HSet(ctx, keyEvent(event.ID),
			"time", event.Time.UTC().Format(time.RFC3339),
			"name", event.Name,
			"link", event.Link,
		)
		pipe.Del(ctx, keyEventUsers(event.ID))
		for _, id := range userIDs {
			pipe.SAdd(ctx, keyEventUsers(event.ID), strconv.FormatUint(id, 10))
		}
		pipe.Del(ctx, keyEventHosts(event.ID))
		for _, id := range hostIDs {
			pipe.SAdd(ctx, keyEventHosts(event.ID), strconv.FormatUint(id, 10))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store event %s: %w", event.ID, err)
	}
	return nil
}

// SetSeriesTypeIfUnset classifies a series on first sight. An organizer set
// type is never overwritten.
func (r *EventRepo) SetSeriesTypeIfUnset(ctx context.Context, seriesID string, seriesType domain.SeriesType) error {
	if err := r.rdb.SetNX(ctx, keySeriesType(seriesID), string(seriesType), 0).Err(); err != nil {
		return fmt.Errorf("failed to set series type: %w", err)
	}
	return nil
}

func (r *EventRepo) SeriesType(ctx context.Context, seriesID string) (domain.SeriesType, error) {
	val, err := r.rdb.Get(ctx, keySeriesType(seriesID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get series type: %w", err)
	}
	return domain.SeriesType(val), nil
}

func (r *EventRepo) SeriesChannel(ctx context.Context, seriesID string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, keySeriesChannel(seriesID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get series channel: %w", err)
	}
	return val, true, nil
}

// EnsureSeriesChannel records channelID as the channel of the series. If a
// concurrent writer got there first the recorded channel wins and is
// returned, so the caller can clean up its freshly created one.
func (r *EventRepo) EnsureSeriesChannel(ctx context.Context, seriesID, channelID string) (string, error) {
	seriesKey := keySeriesChannel(seriesID)
	winner := channelID

	txn := func(tx *goredis.Tx) error {
		existing, err := tx.Get(ctx, seriesKey).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if existing != "" {
			winner = existing
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SAdd(ctx, keyDiscordChannels, channelID)
			pipe.Set(ctx, seriesKey, channelID, 0)
			pipe.Set(ctx, keyChannelSeries(channelID), seriesID, 0)
			return nil
		})
		return err
	}

	for {
		err := r.rdb.Watch(ctx, txn, seriesKey)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to persist series channel: %w", err)
		}
		return winner, nil
	}
}

// RemoveSeriesChannel forgets a channel that turned out not to exist on
// Discord, but only while it is still the recorded one.
func (r *EventRepo) RemoveSeriesChannel(ctx context.Context, seriesID, channelID string) error {
	seriesKey := keySeriesChannel(seriesID)

	txn := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, seriesKey).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != channelID {
			// Changed in the meantime, leave it alone.
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, seriesKey)
			pipe.Del(ctx, keyChannelSeries(channelID))
			pipe.SRem(ctx, keyDiscordChannels, channelID)
			return nil
		})
		return err
	}

	for {
		err := r.rdb.Watch(ctx, txn, seriesKey)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to remove series channel: %w", err)
		}
		return nil
	}
}

func (r *EventRepo) SeriesRSVPs(ctx context.Context, seriesID string, hosts bool) ([]uint64, error) {
	eventIDs, err := r.rdb.SMembers(ctx, keySeriesEvents(seriesID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events for series %s: %w", seriesID, err)
	}
	if len(eventIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(eventIDs))
	for _, eventID := range eventIDs {
		if hosts {
			keys = append(keys, keyEventHosts(eventID))
		} else {
			keys = append(keys, keyEventUsers(eventID))
		}
	}

	members, err := r.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to union event members: %w", err)
	}

	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			slog.Warn("Skipping non-numeric meetup member id", "series", seriesID, "value", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
