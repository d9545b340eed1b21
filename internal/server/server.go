package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/AlpTkz/discord-bot/internal/config"
	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/meetup"
)

const (
	sessionName         = "swissrpg_bot"
	sessionKeyState     = "oauth_state"
	sessionKeyLinkToken = "link_token"
	sessionMaxAge       = 3600
)

// meetupOAuth is the slice of the Meetup OAuth flow the linking endpoint
// needs, kept as an interface so handler tests can substitute it.
type meetupOAuth interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*meetup.TokenResult, error)
	FetchSelf(ctx context.Context, accessToken string) (*domain.MeetupMember, error)
}

// Server is the HTTP side of the bot: health and metrics endpoints, the
// static assets, and the Meetup account linking flow. It binds to
// localhost; nginx terminates TLS and forwards with X-Real-IP set.
type Server struct {
	echo         *echo.Echo
	config       *config.Config
	oauth        meetupOAuth
	links        domain.LinkRepository
	tokens       domain.LinkingTokenRepository
	redisClient  *goredis.Client
	gatewayCheck func() error
	sessionStore *sessions.CookieStore
	startTime    time.Time

	// Test seam, nil in production.
	redisHealthCheck redisHealthChecker
}

func NewServer(cfg *config.Config, oauth meetupOAuth, links domain.LinkRepository, tokens domain.LinkingTokenRepository, redisClient *goredis.Client, gatewayCheck func() error) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPFromRealIPHeader()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		oauth:        oauth,
		links:        links,
		tokens:       tokens,
		redisClient:  redisClient,
		gatewayCheck: gatewayCheck,
		sessionStore: sessionStore,
		startTime:    time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("starting http server", "addr", s.config.ListenAddr)
	return s.echo.Start(s.config.ListenAddr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
