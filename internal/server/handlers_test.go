package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlpTkz/discord-bot/internal/config"
	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/meetup"
)

type fakeOAuth struct {
	exchangeErr error
	member      *domain.MeetupMember
}

func (f *fakeOAuth) AuthorizeURL(state string) string {
	return "https://secure.meetup.com/oauth2/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) ExchangeCode(_ context.Context, code string) (*meetup.TokenResult, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &meetup.TokenResult{AccessToken: "access-" + code}, nil
}

func (f *fakeOAuth) FetchSelf(context.Context, string) (*domain.MeetupMember, error) {
	if f.member == nil {
		return nil, errors.New("no member")
	}
	return f.member, nil
}

type fakeLinks struct {
	linkErr error
	linked  map[string]uint64
}

func (f *fakeLinks) MeetupForDiscord(_ context.Context, discordID string) (uint64, bool, error) {
	id, ok := f.linked[discordID]
	return id, ok, nil
}

func (f *fakeLinks) DiscordForMeetup(context.Context, uint64) (string, bool, error) {
	return "", false, nil
}

func (f *fakeLinks) Link(_ context.Context, discordID string, meetupID uint64) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	if f.linked == nil {
		f.linked = make(map[string]uint64)
	}
	f.linked[discordID] = meetupID
	return nil
}

func (f *fakeLinks) Unlink(context.Context, string) (uint64, bool, error) {
	return 0, false, nil
}

type fakeTokens struct {
	tokens   map[string]string
	consumed []string
}

func (f *fakeTokens) Create(_ context.Context, discordID string, _ time.Duration) (string, error) {
	return "", errors.New("not used in these tests")
}

func (f *fakeTokens) Resolve(_ context.Context, token string) (string, bool, error) {
	id, ok := f.tokens[token]
	return id, ok, nil
}

func (f *fakeTokens) Consume(_ context.Context, token string) error {
	delete(f.tokens, token)
	f.consumed = append(f.consumed, token)
	return nil
}

type fakeRedisCheck struct {
	err error
}

func (f *fakeRedisCheck) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

type serverFixture struct {
	server *Server
	oauth  *fakeOAuth
	links  *fakeLinks
	tokens *fakeTokens
	redis  *fakeRedisCheck
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	fx := &serverFixture{
		oauth:  &fakeOAuth{member: &domain.MeetupMember{ID: 77, Name: "Ann Example"}},
		links:  &fakeLinks{},
		tokens: &fakeTokens{tokens: map[string]string{"tok123": "user1"}},
		redis:  &fakeRedisCheck{},
	}
	cfg := &config.Config{
		AppEnv:        "test",
		ListenAddr:    "127.0.0.1:0",
		StaticDir:     t.TempDir(),
		SessionSecret: "test-secret",
	}
	fx.server = NewServer(cfg, fx.oauth, fx.links, fx.tokens, nil, func() error { return nil })
	fx.server.redisHealthCheck = fx.redis
	return fx
}

func (fx *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	fx.server.echo.ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"version"`)
}

func TestReadiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		fx := newServerFixture(t)
		rec := fx.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ready"`)
	})

	t.Run("redis down", func(t *testing.T) {
		fx := newServerFixture(t)
		fx.redis.err = errors.New("connection refused")
		rec := fx.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"failed_check":"redis"`)
	})

	t.Run("gateway down", func(t *testing.T) {
		fx := newServerFixture(t)
		fx.server.gatewayCheck = func() error { return errors.New("gateway closed") }
		rec := fx.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"failed_check":"discord_gateway"`)
	})
}

func TestLinkStart(t *testing.T) {
	t.Run("unknown tokens get a dead end page", func(t *testing.T) {
		fx := newServerFixture(t)
		rec := fx.do(httptest.NewRequest(http.MethodGet, "/link/nope", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "no longer valid")
	})

	t.Run("valid tokens redirect to meetup", func(t *testing.T) {
		fx := newServerFixture(t)
		rec := fx.do(httptest.NewRequest(http.MethodGet, "/link/tok123", nil))

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "secure.meetup.com", location.Host)
		assert.NotEmpty(t, location.Query().Get("state"))
		assert.NotEmpty(t, rec.Result().Cookies())
	})
}

// startLink walks the first half of the flow and returns the state plus the
// session cookies to replay on the callback.
func startLink(t *testing.T, fx *serverFixture) (string, []*http.Cookie) {
	t.Helper()
	rec := fx.do(httptest.NewRequest(http.MethodGet, "/link/tok123", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return location.Query().Get("state"), rec.Result().Cookies()
}

func TestOAuthCallback(t *testing.T) {
	t.Run("links the accounts", func(t *testing.T) {
		fx := newServerFixture(t)
		state, cookies := startLink(t, fx)

		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
		rec := fx.do(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Ann Example")
		assert.Equal(t, uint64(77), fx.links.linked["user1"])
		assert.Equal(t, []string{"tok123"}, fx.tokens.consumed)
	})

	t.Run("rejects a bad state", func(t *testing.T) {
		fx := newServerFixture(t)
		_, cookies := startLink(t, fx)

		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=forged", nil)
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
		rec := fx.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, fx.links.linked)
	})

	t.Run("reports linking conflicts", func(t *testing.T) {
		fx := newServerFixture(t)
		fx.links.linkErr = domain.ErrAlreadyLinked
		state, cookies := startLink(t, fx)

		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
		rec := fx.do(req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "already linked")
		assert.Empty(t, fx.tokens.consumed)
	})

	t.Run("rejects requests without a session", func(t *testing.T) {
		fx := newServerFixture(t)
		rec := fx.do(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=x", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRootRedirect(t *testing.T) {
	fx := newServerFixture(t)
	rec := fx.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://swissrpg.ch", rec.Header().Get("Location"))
}
