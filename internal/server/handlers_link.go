package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/metrics"
)

const oauthTimeout = 10 * time.Second

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// handleLinkStart is the entry point of the linking flow. The token comes
// from a Discord DM; a valid one sends the user to the Meetup consent page.
func (s *Server) handleLinkStart(c echo.Context) error {
	token := c.Param("token")

	_, ok, err := s.tokens.Resolve(c.Request().Context(), token)
	if err != nil {
		slog.Error("could not resolve linking token", "error", err)
		return s.renderPage(c, http.StatusInternalServerError, pageError)
	}
	if !ok {
		return s.renderPage(c, http.StatusNotFound, pageTokenInvalid)
	}

	state, err := generateOAuthState()
	if err != nil {
		slog.Error("could not generate OAuth state", "error", err)
		return s.renderPage(c, http.StatusInternalServerError, pageError)
	}

	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyState] = state
	session.Values[sessionKeyLinkToken] = token
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Error("could not save linking session", "error", err)
		return s.renderPage(c, http.StatusInternalServerError, pageError)
	}

	return c.Redirect(http.StatusFound, s.oauth.AuthorizeURL(state))
}

// handleOAuthCallback finishes the linking flow: it verifies the state,
// figures out who the user is on Meetup and stores the pair atomically.
func (s *Server) handleOAuthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return s.renderPage(c, http.StatusBadRequest, pageError)
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return s.renderPage(c, http.StatusBadRequest, pageError)
	}
	expectedState, _ := session.Values[sessionKeyState].(string)
	if expectedState == "" || c.QueryParam("state") != expectedState {
		return s.renderPage(c, http.StatusBadRequest, pageError)
	}
	token, _ := session.Values[sessionKeyLinkToken].(string)
	delete(session.Values, sessionKeyState)
	delete(session.Values, sessionKeyLinkToken)
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.Warn("could not clear linking session", "error", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	// The token may have expired while the user was on Meetup.
	discordID, ok, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		slog.Error("could not resolve linking token", "error", err)
		return s.renderPage(c, http.StatusInternalServerError, pageError)
	}
	if !ok {
		return s.renderPage(c, http.StatusNotFound, pageTokenInvalid)
	}

	tokens, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		slog.Error("meetup code exchange failed", "error", err)
		return s.renderPage(c, http.StatusBadGateway, pageError)
	}
	member, err := s.oauth.FetchSelf(ctx, tokens.AccessToken)
	if err != nil {
		slog.Error("meetup self lookup failed", "error", err)
		return s.renderPage(c, http.StatusBadGateway, pageError)
	}

	if err := s.links.Link(ctx, discordID, member.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyLinked) {
			metrics.LinkConflictsTotal.Inc()
			return s.renderPage(c, http.StatusConflict, pageAlreadyLinked)
		}
		slog.Error("could not store account link", "error", err)
		return s.renderPage(c, http.StatusInternalServerError, pageError)
	}
	metrics.LinksTotal.WithLabelValues("web").Inc()

	if err := s.tokens.Consume(ctx, token); err != nil {
		slog.Warn("could not consume linking token", "error", err)
	}

	slog.Info("meetup account linked", "discord_user", discordID, "meetup_user", member.ID)
	return s.renderLinked(c, member.Name)
}
