package meetup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/metrics"
	"github.com/AlpTkz/discord-bot/internal/platform/retry"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://api.meetup.com"
	httpCallTimeout = 10 * time.Second
)

// Client talks to the Meetup REST API with the organizer's access token.
// Requests are rate limited client-side and guarded by a circuit breaker
// so a flapping Meetup API cannot stall the sync tasks.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	policy      retry.Policy
}

func NewClient(accessToken string) *Client {
	return newClient(accessToken, defaultBaseURL)
}

func newClient(accessToken, baseURL string) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "meetup-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.MeetupBreakerState.Set(float64(to))
		},
	})

	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: httpCallTimeout},
		// Meetup allows 30 requests per 10 seconds per token.
		limiter: rate.NewLimiter(rate.Limit(3), 5),
		breaker: breaker,
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			RateLimitBackoff: 5 * time.Second,
		},
	}
}

// statusError carries the HTTP status of a failed Meetup API call.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("meetup API returned status %d", e.status)
}

func classify(err error) retry.Action {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.status == http.StatusTooManyRequests:
			return retry.After
		case se.status >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	// Network-level errors are worth another try.
	return retry.Retry
}

// GetMemberProfile fetches a member profile. Returns nil without error
// when the member does not exist.
func (c *Client) GetMemberProfile(ctx context.Context, memberID uint64) (*domain.MeetupMember, error) {
	url := fmt.Sprintf("%s/members/%d?only=id,name,photo", c.baseURL, memberID)

	member, err := retry.Do(ctx, c.policy, classify, func() (*domain.MeetupMember, error) {
		return c.fetchMember(ctx, url)
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch meetup member %d: %w", memberID, err)
	}
	return member, nil
}

func (c *Client) fetchMember(ctx context.Context, url string) (*domain.MeetupMember, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create member request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.MeetupRequestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to execute member request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			metrics.MeetupRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
			return nil, &statusError{status: resp.StatusCode}
		}
		metrics.MeetupRequestsTotal.WithLabelValues("200").Inc()

		var body struct {
			ID    uint64 `json:"id"`
			Name  string `json:"name"`
			Photo struct {
				ThumbLink string `json:"thumb_link"`
			} `json:"photo"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to decode member response: %w", err)
		}

		return &domain.MeetupMember{
			ID:       body.ID,
			Name:     body.Name,
			PhotoURL: body.Photo.ThumbLink,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.MeetupMember), nil
}
