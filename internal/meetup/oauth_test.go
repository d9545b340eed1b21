package meetup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeURL(t *testing.T) {
	o := NewOAuth("client-id", "client-secret", "https://bot.swissrpg.ch/auth/callback")

	raw := o.AuthorizeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "secure.meetup.com", u.Host)
	assert.Equal(t, "/oauth2/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://bot.swissrpg.ch/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "state-123", q.Get("state"))
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "client-id", q.Get("client_id"))
		assert.Equal(t, "client-secret", q.Get("client_secret"))
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		assert.Equal(t, "the-code", q.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
	}))
	defer srv.Close()

	o := NewOAuth("client-id", "client-secret", "https://bot.swissrpg.ch/auth/callback")
	o.tokenURL = srv.URL

	token, err := o.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "rt", token.RefreshToken)
	assert.Equal(t, 3600, token.ExpiresIn)
}

func TestExchangeCode_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewOAuth("client-id", "client-secret", "https://bot.swissrpg.ch/auth/callback")
	o.tokenURL = srv.URL

	_, err := o.ExchangeCode(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestFetchSelf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/members/self", r.URL.Path)
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"name":"Alice","photo":{"thumb_link":"x"}}`))
	}))
	defer srv.Close()

	o := NewOAuth("client-id", "client-secret", "https://bot.swissrpg.ch/auth/callback")
	o.apiBaseURL = srv.URL

	member, err := o.FetchSelf(context.Background(), "at")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), member.ID)
	assert.Equal(t, "Alice", member.Name)
}

func TestFetchSelf_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Nobody"}`))
	}))
	defer srv.Close()

	o := NewOAuth("client-id", "client-secret", "https://bot.swissrpg.ch/auth/callback")
	o.apiBaseURL = srv.URL

	_, err := o.FetchSelf(context.Background(), "at")
	assert.Error(t, err)
}
