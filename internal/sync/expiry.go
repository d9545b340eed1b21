package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/AlpTkz/discord-bot/internal/discord"
	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/logging"
	"github.com/AlpTkz/discord-bot/internal/metrics"
)

const expirationReminder = "The last scheduled session of this game is over. " +
	"If the game continues, schedule the next session on Meetup and I'll keep " +
	"the channel around. Otherwise a host can write \"close channel\" here, or " +
	"just leave it to the organizers."

// Expirer walks all bot controlled channels, reminds finished games once
// and deletes channels whose deletion time has passed, roles included.
type Expirer struct {
	api      discord.API
	channels domain.ChannelRepository
	guildID  string
	clock    clockwork.Clock
}

func NewExpirer(api discord.API, channels domain.ChannelRepository, guildID string, clock clockwork.Clock) *Expirer {
	return &Expirer{api: api, channels: channels, guildID: guildID, clock: clock}
}

// Run performs one expiry sweep. Per-channel failures are logged and
// counted but do not stop the sweep.
func (e *Expirer) Run(ctx context.Context) error {
	channelIDs, err := e.channels.Channels(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("expiry", "error").Inc()
		return err
	}

	failures := 0
	for _, channelID := range channelIDs {
		if err := e.sweepChannel(ctx, channelID); err != nil {
			failures++
			logging.WithChannel(channelID).Error("channel expiry failed", "error", err)
		}
	}

	if failures > 0 {
		metrics.SyncRunsTotal.WithLabelValues("expiry", "error").Inc()
		return fmt.Errorf("%d of %d channels failed to expire", failures, len(channelIDs))
	}
	metrics.SyncRunsTotal.WithLabelValues("expiry", "ok").Inc()
	return nil
}

func (e *Expirer) sweepChannel(ctx context.Context, channelID string) error {
	now := e.clock.Now()

	deletion, err := e.channels.DeletionTime(ctx, channelID)
	if err != nil {
		return err
	}
	if deletion != nil && now.After(*deletion) {
		return e.deleteChannel(ctx, channelID)
	}

	expiration, err := e.channels.ExpirationTime(ctx, channelID)
	if err != nil {
		return err
	}
	if expiration == nil || now.Before(*expiration) {
		return nil
	}

	first, err := e.channels.MarkExpirationReminderSent(ctx, channelID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	if _, err := e.api.ChannelMessageSend(channelID, expirationReminder); err != nil {
		logging.WithChannel(channelID).Warn("could not send expiration reminder", "error", err)
	}
	logging.WithChannel(channelID).Info("expiration reminder sent")
	return nil
}

// deleteChannel removes the Discord channel and its roles, then purges the
// bookkeeping. Roles that cannot be deleted are recorded as orphans so an
// organizer can clean up by hand.
func (e *Expirer) deleteChannel(ctx context.Context, channelID string) error {
	roles, err := e.channels.Roles(ctx, channelID)
	if err != nil && !errors.Is(err, domain.ErrHalfConfigured) {
		return err
	}

	if roles != nil {
		for _, roleID := range []string{roles.User, roles.Host} {
			if err := e.api.GuildRoleDelete(e.guildID, roleID); err != nil && !discord.IsNotFound(err) {
				metrics.OrphanedDiscordObjects.WithLabelValues("role").Inc()
				if recErr := e.channels.RecordOrphanedRole(ctx, roleID); recErr != nil {
					slog.Error("could not record orphaned role", "role_id", roleID, "error", recErr)
				}
			}
		}
	}

	if _, err := e.api.ChannelDelete(channelID); err != nil && !discord.IsNotFound(err) {
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}

	if err := e.channels.PurgeChannel(ctx, channelID); err != nil {
		return err
	}
	logging.WithChannel(channelID).Info("expired channel deleted")
	return nil
}
