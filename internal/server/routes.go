package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints. Only reachable through localhost or the
	// nginx vhost, so no auth.
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// The bot has no site of its own, the root points at the main page.
	s.echo.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "https://swissrpg.ch")
	})

	s.echo.Static("/static", s.config.StaticDir)

	// Meetup account linking flow, entered through single-use tokens the
	// bot hands out in Discord DMs.
	s.echo.GET("/link/:token", s.handleLinkStart)
	s.echo.GET("/auth/callback", s.handleOAuthCallback)
}
