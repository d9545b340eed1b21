package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"

	"github.com/AlpTkz/discord-bot/internal/discord"
	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/logging"
	"github.com/AlpTkz/discord-bot/internal/metrics"
)

// A session blocks the channel for roughly this long after it starts, so
// the channel only expires once the last session is actually over.
const sessionDuration = 4 * time.Hour

// seriesNameRe extracts the game title from an event name, cutting off
// bracketed or parenthesized suffixes like "Lost Mine [Session 3]".
var seriesNameRe = regexp.MustCompile(`^\s*([^(\[]+[^\s(\[])`)

// SyncerConfig carries the Discord identifiers the reconciler needs.
type SyncerConfig struct {
	GuildID            string
	BotUserID          string
	GameMasterRoleID   string
	OneShotCategoryID  string
	CampaignCategoryID string
}

// Syncer reconciles Discord guild state with the mirrored Meetup events:
// one text channel and one role pair per event series, channel membership
// derived from RSVPs. Every step is idempotent so a crashed run is repaired
// by the next one.
type Syncer struct {
	cfg      SyncerConfig
	api      discord.API
	events   domain.EventRepository
	channels domain.ChannelRepository
	links    domain.LinkRepository
	clock    clockwork.Clock
}

func NewSyncer(cfg SyncerConfig, api discord.API, events domain.EventRepository, channels domain.ChannelRepository, links domain.LinkRepository, clock clockwork.Clock) *Syncer {
	return &Syncer{
		cfg:      cfg,
		api:      api,
		events:   events,
		channels: channels,
		links:    links,
		clock:    clock,
	}
}

// SyncAll reconciles every known event series. Series failures are counted
// and logged but do not stop the run; the returned error reports how many
// series failed.
func (s *Syncer) SyncAll(ctx context.Context) error {
	start := s.clock.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("discord").Observe(s.clock.Since(start).Seconds())
	}()

	seriesIDs, err := s.events.SeriesIDs(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("discord", "error").Inc()
		return err
	}

	guildRoles, err := s.guildRoleSet(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("discord", "error").Inc()
		return err
	}

	failures := 0
	for _, seriesID := range seriesIDs {
		if err := s.syncSeries(ctx, seriesID, guildRoles); err != nil {
			failures++
			metrics.SyncSeriesFailures.Inc()
			logging.WithSeries(seriesID).Error("series sync failed", "error", err)
		}
	}

	if failures > 0 {
		metrics.SyncRunsTotal.WithLabelValues("discord", "error").Inc()
		return fmt.Errorf("%d of %d series failed to sync", failures, len(seriesIDs))
	}
	metrics.SyncRunsTotal.WithLabelValues("discord", "ok").Inc()
	slog.Info("discord sync finished", "series", len(seriesIDs))
	return nil
}

func (s *Syncer) guildRoleSet(ctx context.Context) (map[string]bool, error) {
	roles, err := s.api.GuildRoles(s.cfg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild roles: %w", err)
	}
	set := make(map[string]bool, len(roles))
	for _, role := range roles {
		set[role.ID] = true
	}
	return set, nil
}

func (s *Syncer) syncSeries(ctx context.Context, seriesID string, guildRoles map[string]bool) error {
	events, err := s.events.SeriesEvents(ctx, seriesID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	upcoming := events[:0:0]
	for _, event := range events {
		if event.Time.After(now) {
			upcoming = append(upcoming, event)
		}
	}
	if len(upcoming) == 0 {
		// Nothing scheduled; the expiry task takes it from here.
		logging.WithSeries(seriesID).Info("series has no upcoming events, not syncing")
		return nil
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Time.Before(upcoming[j].Time) })
	next, last := upcoming[0], upcoming[len(upcoming)-1]

	seriesName, err := seriesNameFor(next.Name)
	if err != nil {
		return err
	}

	channelID, err := s.ensureChannel(ctx, seriesID, channelName(seriesName))
	if err != nil {
		return err
	}
	roles, err := s.ensureRoles(ctx, channelID, seriesName, guildRoles)
	if err != nil {
		return err
	}
	if err := s.applyPermissions(channelID, roles); err != nil {
		return err
	}
	if err := s.updateChannelInfo(ctx, seriesID, channelID, next); err != nil {
		return err
	}
	if err := s.assignRoles(ctx, seriesID, channelID, roles); err != nil {
		return err
	}
	return s.channels.SetExpirationTime(ctx, channelID, last.Time.Add(sessionDuration))
}

// ensureChannel returns the series channel, creating it when missing. A
// recorded channel that no longer exists on Discord is forgotten and
// recreated; losing the creation race to a concurrent run deletes the
// surplus channel again.
func (s *Syncer) ensureChannel(ctx context.Context, seriesID, channelName string) (string, error) {
	if existing, ok, err := s.events.SeriesChannel(ctx, seriesID); err != nil {
		return "", err
	} else if ok {
		if _, err := s.api.Channel(existing); err == nil {
			return existing, nil
		} else if !discord.IsNotFound(err) {
			return "", fmt.Errorf("failed to verify channel %s: %w", existing, err)
		}
		slog.Warn("recorded channel is gone from discord", "series", seriesID, "channel_id", existing)
		if err := s.events.RemoveSeriesChannel(ctx, seriesID, existing); err != nil {
			return "", err
		}
	}

	created, err := s.api.GuildChannelCreateComplex(s.cfg.GuildID, discordgo.GuildChannelCreateData{
		Name: channelName,
		Type: discordgo.ChannelTypeGuildText,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				// @everyone shares its ID with the guild.
				ID:   s.cfg.GuildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:    s.cfg.BotUserID,
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: discordgo.PermissionViewChannel,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create channel %q: %w", channelName, err)
	}

	winner, err := s.events.EnsureSeriesChannel(ctx, seriesID, created.ID)
	if err != nil {
		return "", err
	}
	if winner != created.ID {
		slog.Warn("lost channel creation race", "series", seriesID, "channel_id", created.ID, "winner", winner)
		if _, err := s.api.ChannelDelete(created.ID); err != nil {
			metrics.OrphanedDiscordObjects.WithLabelValues("channel").Inc()
			if recErr := s.channels.RecordOrphanedChannel(ctx, created.ID); recErr != nil {
				slog.Error("could not record orphaned channel", "channel_id", created.ID, "error", recErr)
			}
		}
	}
	return winner, nil
}

// ensureRoles returns the channel's role pair, creating missing roles. The
// same race handling as for channels applies: the recorded role wins and
// surplus roles are deleted or recorded as orphans.
func (s *Syncer) ensureRoles(ctx context.Context, channelID, seriesName string, guildRoles map[string]bool) (*domain.ChannelRoles, error) {
	existing, err := s.channels.Roles(ctx, channelID)
	if err != nil && !errors.Is(err, domain.ErrHalfConfigured) {
		return nil, err
	}

	var current domain.ChannelRoles
	if existing != nil {
		current = *existing
	}

	user, err := s.ensureRole(ctx, channelID, current.User, seriesName, false, guildRoles)
	if err != nil {
		return nil, err
	}
	host, err := s.ensureRole(ctx, channelID, current.Host, "[Host] "+seriesName, true, guildRoles)
	if err != nil {
		return nil, err
	}
	return &domain.ChannelRoles{User: user, Host: host}, nil
}

func (s *Syncer) ensureRole(ctx context.Context, channelID, recorded, roleName string, host bool, guildRoles map[string]bool) (string, error) {
	if recorded != "" {
		if guildRoles[recorded] {
			return recorded, nil
		}
		slog.Warn("recorded role is gone from discord", "channel_id", channelID, "role_id", recorded, "host", host)
		if err := s.channels.RemoveRole(ctx, channelID, recorded, host); err != nil {
			return "", err
		}
	}

	created, err := s.api.GuildRoleCreate(s.cfg.GuildID, &discordgo.RoleParams{Name: roleName})
	if err != nil {
		return "", fmt.Errorf("failed to create role %q: %w", roleName, err)
	}
	guildRoles[created.ID] = true

	winner, err := s.channels.EnsureRole(ctx, channelID, created.ID, host)
	if err != nil {
		return "", err
	}
	if winner != created.ID {
		slog.Warn("lost role creation race", "channel_id", channelID, "role_id", created.ID, "winner", winner)
		if err := s.api.GuildRoleDelete(s.cfg.GuildID, created.ID); err != nil {
			metrics.OrphanedDiscordObjects.WithLabelValues("role").Inc()
			if recErr := s.channels.RecordOrphanedRole(ctx, created.ID); recErr != nil {
				slog.Error("could not record orphaned role", "role_id", created.ID, "error", recErr)
			}
		}
	}
	return winner, nil
}

// applyPermissions re-applies all channel overwrites on every run, so an
// overwrite removed by hand does not leave the channel open or unusable.
func (s *Syncer) applyPermissions(channelID string, roles *domain.ChannelRoles) error {
	// @everyone shares its ID with the guild.
	if err := s.api.ChannelPermissionSet(channelID, s.cfg.GuildID, discordgo.PermissionOverwriteTypeRole, 0, discordgo.PermissionViewChannel); err != nil {
		return fmt.Errorf("failed to hide channel from everyone: %w", err)
	}
	if err := s.api.ChannelPermissionSet(channelID, s.cfg.BotUserID, discordgo.PermissionOverwriteTypeMember, discordgo.PermissionViewChannel, 0); err != nil {
		return fmt.Errorf("failed to set bot permissions: %w", err)
	}
	memberPerms := int64(discordgo.PermissionViewChannel | discordgo.PermissionMentionEveryone)
	if err := s.api.ChannelPermissionSet(channelID, roles.User, discordgo.PermissionOverwriteTypeRole, memberPerms, 0); err != nil {
		return fmt.Errorf("failed to set member permissions: %w", err)
	}
	hostPerms := memberPerms | discordgo.PermissionManageMessages
	if err := s.api.ChannelPermissionSet(channelID, roles.Host, discordgo.PermissionOverwriteTypeRole, hostPerms, 0); err != nil {
		return fmt.Errorf("failed to set host permissions: %w", err)
	}
	return nil
}

// updateChannelInfo keeps the topic pointing at the next session and moves
// the channel into the category matching the series type.
func (s *Syncer) updateChannelInfo(ctx context.Context, seriesID, channelID string, next domain.Event) error {
	seriesType, err := s.events.SeriesType(ctx, seriesID)
	if err != nil {
		return err
	}
	category := s.cfg.CampaignCategoryID
	switch seriesType {
	case domain.SeriesTypeCampaign:
	case domain.SeriesTypeAdventure:
		category = s.cfg.OneShotCategoryID
	default:
		logging.WithSeries(seriesID).Warn("series has no type, treating it as a campaign")
	}

	topic := "Next session: " + next.Link

	channel, err := s.api.Channel(channelID)
	if err != nil {
		return fmt.Errorf("failed to load channel %s: %w", channelID, err)
	}
	if channel.Topic == topic && (category == "" || channel.ParentID == category) {
		return nil
	}
	if _, err := s.api.ChannelEdit(channelID, &discordgo.ChannelEdit{
		Topic:    topic,
		ParentID: category,
	}); err != nil {
		return fmt.Errorf("failed to update channel %s: %w", channelID, err)
	}
	return nil
}

// assignRoles grants the channel role to every linked member with a "yes"
// RSVP and the host role pair to event hosts. Manually removed members are
// never re-added.
func (s *Syncer) assignRoles(ctx context.Context, seriesID, channelID string, roles *domain.ChannelRoles) error {
	rsvps, err := s.events.SeriesRSVPs(ctx, seriesID, false)
	if err != nil {
		return err
	}
	hosts, err := s.events.SeriesRSVPs(ctx, seriesID, true)
	if err != nil {
		return err
	}

	removedUsers, err := toSet(s.channels.RemovedUsers(ctx, channelID))
	if err != nil {
		return err
	}
	removedAny, err := toSet(s.channels.RemovedUsersAndHosts(ctx, channelID))
	if err != nil {
		return err
	}

	for _, meetupID := range rsvps {
		discordID, linked, err := s.links.DiscordForMeetup(ctx, meetupID)
		if err != nil {
			return err
		}
		if !linked || removedUsers[discordID] {
			continue
		}
		s.addRole(discordID, roles.User)
	}

	for _, meetupID := range hosts {
		discordID, linked, err := s.links.DiscordForMeetup(ctx, meetupID)
		if err != nil {
			return err
		}
		if !linked || removedAny[discordID] {
			continue
		}
		s.addRole(discordID, roles.User)
		s.addRole(discordID, roles.Host)
		if s.cfg.GameMasterRoleID != "" {
			s.addRole(discordID, s.cfg.GameMasterRoleID)
		}
	}
	return nil
}

// addRole is best effort: a member who left the guild comes back as a 404
// and is simply skipped.
func (s *Syncer) addRole(discordID, roleID string) {
	if err := s.api.GuildMemberRoleAdd(s.cfg.GuildID, discordID, roleID); err != nil && !discord.IsNotFound(err) {
		logging.WithUser(discordID).Warn("could not assign role", "role_id", roleID, "error", err)
	}
}

// seriesNameFor extracts the series name from an event title. An event
// whose title yields no usable name fails its series' sync rather than
// producing a garbage channel.
func seriesNameFor(eventName string) (string, error) {
	match := seriesNameRe.FindStringSubmatch(eventName)
	if match == nil {
		return "", fmt.Errorf("could not extract a series name from event %q", eventName)
	}
	name := match[1]
	if len(name) < 2 || len(name) > 80 {
		return "", fmt.Errorf("series name %q is too short or too long", name)
	}
	return name, nil
}

// channelName turns a series name into the slug Discord would make of it
// anyway, so the created channel compares equal on later runs.
func channelName(seriesName string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(seriesName) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func toSet(ids []string, err error) (map[string]bool, error) {
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
