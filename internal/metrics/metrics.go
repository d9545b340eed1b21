package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discord command metrics
var (
	// CommandsTotal tracks handled bot commands by command name and status
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Handled bot commands by command and status",
		},
		[]string{"command", "status"},
	)

	// UnknownCommandsTotal tracks messages addressed to the bot that matched no command
	UnknownCommandsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_unknown_commands_total",
			Help: "Messages addressed to the bot that matched no command",
		},
	)
)

// Sync metrics
var (
	// SyncRunsTotal tracks sync runs by kind (discord, expiry) and status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Sync runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// SyncDuration tracks sync run duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	// SyncSeriesFailures tracks per-series sync failures
	SyncSeriesFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_series_failures_total",
			Help: "Event series whose sync run failed",
		},
	)

	// OrphanedDiscordObjects tracks channels/roles created but lost to a race
	OrphanedDiscordObjects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orphaned_discord_objects_total",
			Help: "Discord channels/roles created but not persisted and not deletable",
		},
		[]string{"kind"},
	)
)

// Account linking metrics
var (
	// LinksTotal tracks completed account links by source (web, organizer)
	LinksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_links_total",
			Help: "Completed Discord/Meetup account links by source",
		},
		[]string{"source"},
	)

	// LinkConflictsTotal tracks linking attempts that lost to an existing link
	LinkConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "account_link_conflicts_total",
			Help: "Linking attempts rejected because a side was already linked",
		},
	)
)

// Meetup API metrics
var (
	// MeetupRequestsTotal tracks Meetup API requests by response status
	MeetupRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetup_api_requests_total",
			Help: "Meetup API requests by response status",
		},
		[]string{"status"},
	)

	// MeetupBreakerState tracks the Meetup circuit breaker state (0=closed, 1=half-open, 2=open)
	MeetupBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetup_circuit_breaker_state",
			Help: "Meetup API circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
