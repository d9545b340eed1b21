package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/AlpTkz/discord-bot/internal/config"
	"github.com/AlpTkz/discord-bot/internal/discord"
	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/logging"
	"github.com/AlpTkz/discord-bot/internal/meetup"
	"github.com/AlpTkz/discord-bot/internal/redis"
	"github.com/AlpTkz/discord-bot/internal/server"
	botsync "github.com/AlpTkz/discord-bot/internal/sync"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// gatewayCheck feeds the readiness endpoint: a session that stopped
// receiving heartbeat ACKs counts as down even while reconnecting.
func gatewayCheck(session *discordgo.Session) func() error {
	return func() error {
		if session.State == nil || session.State.User == nil {
			return errors.New("gateway session not established")
		}
		if ack := session.LastHeartbeatAck; !ack.IsZero() && time.Since(ack) > 5*time.Minute {
			return errors.New("gateway heartbeat stalled")
		}
		return nil
	}
}

func runGracefulShutdown(srv *server.Server, session *discordgo.Session, stopTasks context.CancelFunc, requested <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Shutdown signal received, cleaning up...", "signal", sig)
		case <-requested:
			slog.Info("Shutdown requested via bot command, cleaning up...")
		}
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		stopTasks()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if err := session.Close(); err != nil {
			slog.Error("Gateway close error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "addr", cfg.ListenAddr)

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	linkRepo := redis.NewLinkRepo(redisClient)
	tokenRepo := redis.NewTokenRepo(redisClient)
	eventRepo := redis.NewEventRepo(redisClient)
	channelRepo := redis.NewChannelRepo(redisClient)

	var meetupClient *meetup.Client
	var meetupAPI domain.MeetupClient
	if cfg.MeetupAccessToken != "" {
		meetupClient = meetup.NewClient(cfg.MeetupAccessToken)
		meetupAPI = meetupClient
	} else {
		slog.Warn("MEETUP_ACCESS_TOKEN not set, meetup lookups and imports disabled")
	}

	oauth := meetup.NewOAuth(cfg.MeetupClientID, cfg.MeetupClientSecret, cfg.BaseURL+"/auth/callback")

	// The scheduler only exists once the gateway session is up, so the
	// command callbacks close over it and no-op until then.
	var (
		scheduler    *botsync.Scheduler
		shutdownOnce sync.Once
		shutdownChan = make(chan struct{})
	)

	handler := discord.NewHandler(discord.HandlerConfig{
		GuildID:         cfg.GuildID,
		OrganizerRoleID: cfg.OrganizerRoleID,
		BaseURL:         cfg.BaseURL,
		Links:           linkRepo,
		Tokens:          tokenRepo,
		Channels:        channelRepo,
		Meetup:          meetupAPI,
		SyncMeetup: func() {
			if scheduler != nil {
				scheduler.TriggerMeetupSync()
			}
		},
		SyncDiscord: func() {
			if scheduler != nil {
				scheduler.TriggerDiscordSync()
			}
		},
		RemindExpiration: func() {
			if scheduler != nil {
				scheduler.TriggerExpiry()
			}
		},
		Shutdown: func() {
			shutdownOnce.Do(func() { close(shutdownChan) })
		},
	})

	session, err := discord.NewSession(cfg.DiscordToken, handler)
	if err != nil {
		slog.Error("Failed to open Discord gateway", "error", err)
		os.Exit(1)
	}

	syncer := botsync.NewSyncer(botsync.SyncerConfig{
		GuildID:            cfg.GuildID,
		BotUserID:          session.State.User.ID,
		GameMasterRoleID:   cfg.GameMasterRoleID,
		OneShotCategoryID:  cfg.OneShotCategoryID,
		CampaignCategoryID: cfg.CampaignCategoryID,
	}, session, eventRepo, channelRepo, linkRepo, clock)
	expirer := botsync.NewExpirer(session, channelRepo, cfg.GuildID, clock)

	var importer *botsync.Importer
	if meetupClient != nil && len(cfg.MeetupGroupURLNames) > 0 {
		importer = botsync.NewImporter(meetupClient, eventRepo, cfg.MeetupGroupURLNames, clock)
	}

	scheduler = botsync.NewScheduler(importer, syncer, expirer, cfg.SyncInterval, clock)
	tasksCtx, stopTasks := context.WithCancel(context.Background())
	go scheduler.Run(tasksCtx)

	srv := server.NewServer(cfg, oauth, linkRepo, tokenRepo, redisClient, gatewayCheck(session))

	done := runGracefulShutdown(srv, session, stopTasks, shutdownChan)

	// Under systemd Type=notify this flips the unit to active.
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		slog.Warn("sd_notify failed", "error", err)
	}

	slog.Info("Server starting", "addr", cfg.ListenAddr)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
