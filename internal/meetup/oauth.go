package meetup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/AlpTkz/discord-bot/internal/domain"
)

const (
	authorizeURL = "https://secure.meetup.com/oauth2/authorize"
	tokenURL     = "https://secure.meetup.com/oauth2/access"
	selfPath     = "/members/self"
)

// TokenResult holds the result of a Meetup OAuth code exchange.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// OAuth handles the Meetup OAuth2 authorization-code flow used by the
// web linking endpoint.
type OAuth struct {
	clientID     string
	clientSecret string
	redirectURI  string

	// Overridable in tests.
	tokenURL   string
	apiBaseURL string
	httpClient *http.Client
}

func NewOAuth(clientID, clientSecret, redirectURI string) *OAuth {
	return &OAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		tokenURL:     tokenURL,
		apiBaseURL:   defaultBaseURL,
		httpClient:   &http.Client{Timeout: httpCallTimeout},
	}
}

// AuthorizeURL builds the Meetup consent page URL for the given state.
func (o *OAuth) AuthorizeURL(state string) string {
	params := url.Values{}
	params.Set("client_id", o.clientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", o.redirectURI)
	params.Set("state", state)
	return authorizeURL + "?" + params.Encode()
}

// ExchangeCode swaps an authorization code for tokens.
func (o *OAuth) ExchangeCode(ctx context.Context, code string) (*TokenResult, error) {
	data := url.Values{}
	data.Set("client_id", o.clientID)
	data.Set("client_secret", o.clientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", o.redirectURI)
	data.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.tokenURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.URL.RawQuery = data.Encode()

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meetup returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &TokenResult{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

// FetchSelf fetches the profile of the member the access token belongs to.
func (o *OAuth) FetchSelf(ctx context.Context, accessToken string) (*domain.MeetupMember, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBaseURL+selfPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create self request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute self request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("meetup members API returned status %d", resp.StatusCode)
	}

	var body struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Photo struct {
			ThumbLink string `json:"thumb_link"`
		} `json:"photo"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode self response: %w", err)
	}
	if body.ID == 0 {
		return nil, fmt.Errorf("meetup returned no member id")
	}

	return &domain.MeetupMember{
		ID:       body.ID,
		Name:     body.Name,
		PhotoURL: body.Photo.ThumbLink,
	}, nil
}
