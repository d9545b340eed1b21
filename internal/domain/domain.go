package domain

import (
	"context"
	"errors"
	"time"
)

// SeriesType categorizes an event series for channel placement.
type SeriesType string

const (
	SeriesTypeCampaign  SeriesType = "campaign"
	SeriesTypeAdventure SeriesType = "adventure"
)

// Event is a single Meetup event belonging to a series.
type Event struct {
	ID   string
	Name string
	Time time.Time
	Link string
}

// ChannelRoles are the Discord roles attached to a bot controlled channel.
// User grants channel access, Host additionally grants moderation rights.
type ChannelRoles struct {
	User string
	Host string
}

var (
	// ErrAlreadyLinked is returned when either side of a Discord/Meetup
	// pair is already linked to another account.
	ErrAlreadyLinked = errors.New("account already linked")

	// ErrHalfConfigured is returned when a channel has exactly one of its
	// two role keys set. That state is never produced by the bot and
	// indicates manual tampering.
	ErrHalfConfigured = errors.New("channel has only one of two roles")
)

// LinkRepository maps Discord users to Meetup members and back.
// Both directions are stored and mutated atomically.
type LinkRepository interface {
	MeetupForDiscord(ctx context.Context, discordID string) (uint64, bool, error)
	DiscordForMeetup(ctx context.Context, meetupID uint64) (string, bool, error)

	// Link stores the pair in both directions. Returns ErrAlreadyLinked if
	// either side is taken, including when lost to a concurrent writer.
	Link(ctx context.Context, discordID string, meetupID uint64) error

	// Unlink removes the pair. Returns the Meetup ID that was linked and
	// false when nothing was linked.
	Unlink(ctx context.Context, discordID string) (uint64, bool, error)
}

// LinkingTokenRepository issues single-use web linking tokens.
type LinkingTokenRepository interface {
	Create(ctx context.Context, discordID string, ttl time.Duration) (string, error)
	Resolve(ctx context.Context, token string) (string, bool, error)
	Consume(ctx context.Context, token string) error
}

// EventRepository reads the Meetup event state mirrored into Redis and
// owns the series-to-channel mapping.
type EventRepository interface {
	SeriesIDs(ctx context.Context) ([]string, error)
	SeriesEvents(ctx context.Context, seriesID string) ([]Event, error)
	SeriesType(ctx context.Context, seriesID string) (SeriesType, error)

	SeriesChannel(ctx context.Context, seriesID string) (string, bool, error)

	// EnsureSeriesChannel persists channelID as the series channel unless
	// another channel won the race, in which case the winner is returned.
	EnsureSeriesChannel(ctx context.Context, seriesID, channelID string) (string, error)

	// RemoveSeriesChannel forgets a channel that no longer exists on
	// Discord, but only while it is still the recorded one.
	RemoveSeriesChannel(ctx context.Context, seriesID, channelID string) error

	// SeriesRSVPs returns the Meetup member IDs RSVP'd across all events
	// of the series; hosts=true restricts to event hosts.
	SeriesRSVPs(ctx context.Context, seriesID string, hosts bool) ([]uint64, error)
}

// ChannelRepository owns the per-channel Discord bookkeeping: role pairs,
// manual removals, expiration and deletion times.
type ChannelRepository interface {
	Channels(ctx context.Context) ([]string, error)

	// Roles returns nil when the channel is not bot controlled and
	// ErrHalfConfigured when only one of the two role keys exists.
	Roles(ctx context.Context, channelID string) (*ChannelRoles, error)

	// EnsureRole persists roleID for the channel unless another role won
	// the race, in which case the winner is returned.
	EnsureRole(ctx context.Context, channelID, roleID string, host bool) (string, error)

	// RemoveRole forgets a role that no longer exists on Discord, but only
	// while it is still the recorded one.
	RemoveRole(ctx context.Context, channelID, roleID string, host bool) error

	RecordOrphanedChannel(ctx context.Context, channelID string) error
	RecordOrphanedRole(ctx context.Context, roleID string) error

	MarkRemoved(ctx context.Context, channelID, discordID string, host bool) error
	RemovedUsers(ctx context.Context, channelID string) ([]string, error)
	RemovedUsersAndHosts(ctx context.Context, channelID string) ([]string, error)

	ExpirationTime(ctx context.Context, channelID string) (*time.Time, error)
	// SetExpirationTime also re-arms the expiration reminder.
	SetExpirationTime(ctx context.Context, channelID string, t time.Time) error
	DeletionTime(ctx context.Context, channelID string) (*time.Time, error)
	SetDeletionTime(ctx context.Context, channelID string, t time.Time) error

	MarkExpirationReminderSent(ctx context.Context, channelID string) (bool, error)

	// PurgeChannel removes every piece of bookkeeping for the channel and
	// its roles, including the series mapping.
	PurgeChannel(ctx context.Context, channelID string) error
}

// MeetupClient is the slice of the Meetup API the bot needs.
type MeetupClient interface {
	GetMemberProfile(ctx context.Context, memberID uint64) (*MeetupMember, error)
}

// MeetupMember is a Meetup member profile.
type MeetupMember struct {
	ID       uint64
	Name     string
	PhotoURL string
}
