package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv     string
	ListenAddr string
	BaseURL    string
	StaticDir  string
	LogLevel   string
	LogFormat  string

	RedisURL string

	DiscordToken       string
	GuildID            string
	OrganizerRoleID    string
	GameMasterRoleID   string
	OneShotCategoryID  string
	CampaignCategoryID string

	MeetupClientID     string
	MeetupClientSecret string
	// MeetupAccessToken is the organizer's API token. Optional: without it
	// the bot cannot look up member profiles but everything else works.
	MeetupAccessToken string
	// MeetupGroupURLNames are the Meetup groups whose events are mirrored,
	// e.g. "SwissRPG-Zurich,SwissRPG-Geneva". Optional: when empty the
	// Meetup import task is disabled.
	MeetupGroupURLNames []string

	SessionSecret string

	SyncInterval time.Duration
}

func Load() (*Config, error) {
	// A missing .env file is fine; real env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		ListenAddr:         getEnv("LISTEN_ADDR", "127.0.0.1:3000"),
		BaseURL:            getEnv("BASE_URL", "https://bot.swissrpg.ch"),
		StaticDir:          getEnv("STATIC_DIR", "src/html/static"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		RedisURL:           getEnv("REDIS_URL", ""),
		DiscordToken:       getEnv("DISCORD_TOKEN", ""),
		GuildID:            getEnv("DISCORD_GUILD_ID", ""),
		OrganizerRoleID:    getEnv("DISCORD_ORGANIZER_ROLE_ID", ""),
		GameMasterRoleID:   getEnv("DISCORD_GAME_MASTER_ROLE_ID", ""),
		OneShotCategoryID:  getEnv("DISCORD_ONE_SHOT_CATEGORY_ID", ""),
		CampaignCategoryID: getEnv("DISCORD_CAMPAIGN_CATEGORY_ID", ""),
		MeetupClientID:     getEnv("MEETUP_CLIENT_ID", ""),
		MeetupClientSecret: getEnv("MEETUP_CLIENT_SECRET", ""),
		MeetupAccessToken:  getEnv("MEETUP_ACCESS_TOKEN", ""),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.GuildID == "" {
		return nil, fmt.Errorf("DISCORD_GUILD_ID is required")
	}
	if cfg.OrganizerRoleID == "" {
		return nil, fmt.Errorf("DISCORD_ORGANIZER_ROLE_ID is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	// Meetup credentials: both must be set together
	if cfg.MeetupClientID == "" || cfg.MeetupClientSecret == "" {
		if cfg.MeetupClientID != "" || cfg.MeetupClientSecret != "" {
			return nil, fmt.Errorf("MEETUP_CLIENT_ID and MEETUP_CLIENT_SECRET must be set together")
		}
		return nil, fmt.Errorf("MEETUP_CLIENT_ID is required")
	}

	// Snowflake IDs must be numeric; catching a typo here beats a
	// confusing Discord API error at runtime.
	for name, value := range map[string]string{
		"DISCORD_GUILD_ID":             cfg.GuildID,
		"DISCORD_ORGANIZER_ROLE_ID":    cfg.OrganizerRoleID,
		"DISCORD_GAME_MASTER_ROLE_ID":  cfg.GameMasterRoleID,
		"DISCORD_ONE_SHOT_CATEGORY_ID": cfg.OneShotCategoryID,
		"DISCORD_CAMPAIGN_CATEGORY_ID": cfg.CampaignCategoryID,
	} {
		if value == "" {
			continue
		}
		if _, err := strconv.ParseUint(value, 10, 64); err != nil {
			return nil, fmt.Errorf("%s must be a numeric Discord snowflake, got %q", name, value)
		}
	}

	if raw := getEnv("MEETUP_GROUP_URLNAMES", ""); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.MeetupGroupURLNames = append(cfg.MeetupGroupURLNames, name)
			}
		}
	}

	interval := getEnv("SYNC_INTERVAL", "15m")
	d, err := time.ParseDuration(interval)
	if err != nil {
		return nil, fmt.Errorf("SYNC_INTERVAL must be a valid duration: %w", err)
	}
	if d < time.Minute {
		return nil, fmt.Errorf("SYNC_INTERVAL must be at least 1m, got %s", d)
	}
	cfg.SyncInterval = d

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
