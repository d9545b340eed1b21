package meetup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/AlpTkz/discord-bot/internal/metrics"
	"github.com/AlpTkz/discord-bot/internal/platform/retry"
)

// UpcomingEvent is an event of one of the organization's Meetup groups.
// SeriesID groups recurring events; events outside a series carry their own
// ID as the series ID so one-shots get a channel of their own.
type UpcomingEvent struct {
	ID       string
	Name     string
	Time     time.Time
	Link     string
	SeriesID string
	HostIDs  []uint64
}

// UpcomingEvents lists the upcoming events of a Meetup group.
func (c *Client) UpcomingEvents(ctx context.Context, groupURLName string) ([]UpcomingEvent, error) {
	url := fmt.Sprintf("%s/%s/events?status=upcoming&fields=series,event_hosts&only=id,name,time,link,series,event_hosts",
		c.baseURL, groupURLName)

	events, err := retry.Do(ctx, c.policy, classify, func() ([]UpcomingEvent, error) {
		return c.fetchUpcomingEvents(ctx, url)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upcoming events of %s: %w", groupURLName, err)
	}
	return events, nil
}

func (c *Client) fetchUpcomingEvents(ctx context.Context, url string) ([]UpcomingEvent, error) {
	var body []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		TimeMS int64  `json:"time"`
		Link   string `json:"link"`
		Series struct {
			ID uint64 `json:"id"`
		} `json:"series"`
		EventHosts []struct {
			ID uint64 `json:"id"`
		} `json:"event_hosts"`
	}
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}

	events := make([]UpcomingEvent, 0, len(body))
	for _, raw := range body {
		event := UpcomingEvent{
			ID:       raw.ID,
			Name:     raw.Name,
			Time:     time.UnixMilli(raw.TimeMS).UTC(),
			Link:     raw.Link,
			SeriesID: raw.ID,
		}
		if raw.Series.ID != 0 {
			event.SeriesID = strconv.FormatUint(raw.Series.ID, 10)
		}
		for _, host := range raw.EventHosts {
			event.HostIDs = append(event.HostIDs, host.ID)
		}
		events = append(events, event)
	}
	return events, nil
}

// EventRSVPs returns the member IDs with a "yes" RSVP for the event.
func (c *Client) EventRSVPs(ctx context.Context, groupURLName, eventID string) ([]uint64, error) {
	url := fmt.Sprintf("%s/%s/events/%s/rsvps?only=response,member", c.baseURL, groupURLName, eventID)

	rsvps, err := retry.Do(ctx, c.policy, classify, func() ([]uint64, error) {
		return c.fetchRSVPs(ctx, url)
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch RSVPs of event %s: %w", eventID, err)
	}
	return rsvps, nil
}

func (c *Client) fetchRSVPs(ctx context.Context, url string) ([]uint64, error) {
	var body []struct {
		Response string `json:"response"`
		Member   struct {
			ID uint64 `json:"id"`
		} `json:"member"`
	}
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}

	var memberIDs []uint64
	for _, rsvp := range body {
		if rsvp.Response == "yes" && rsvp.Member.ID != 0 {
			memberIDs = append(memberIDs, rsvp.Member.ID)
		}
	}
	return memberIDs, nil
}

// getJSON performs an authenticated GET through the rate limiter and the
// circuit breaker and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.MeetupRequestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			metrics.MeetupRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
			return nil, &statusError{status: resp.StatusCode}
		}
		metrics.MeetupRequestsTotal.WithLabelValues("200").Inc()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	return err
}
