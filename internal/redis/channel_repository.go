package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlpTkz/discord-bot/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// ChannelRepo owns the per-channel bookkeeping: the role pair, manual
// removals, expiration and deletion times, and orphan records.
type ChannelRepo struct {
	rdb *goredis.Client
}

func NewChannelRepo(rdb *goredis.Client) *ChannelRepo {
	return &ChannelRepo{rdb: rdb}
}

func (r *ChannelRepo) Channels(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, keyDiscordChannels).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return ids, nil
}

func (r *ChannelRepo) Roles(ctx context.Context, channelID string) (*domain.ChannelRoles, error) {
	vals, err := r.rdb.MGet(ctx, keyChannelRole(channelID, false), keyChannelRole(channelID, true)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel roles: %w", err)
	}
	user, userOK := vals[0].(string)
	host, hostOK := vals[1].(string)
	switch {
	case userOK && hostOK:
		return &domain.ChannelRoles{User: user, Host: host}, nil
	case !userOK && !hostOK:
		return nil, nil
	default:
		return nil, domain.ErrHalfConfigured
	}
}

// EnsureRole records roleID as the channel's role. A concurrently
// recorded role wins and is returned instead.
func (r *ChannelRepo) EnsureRole(ctx context.Context, channelID, roleID string, host bool) (string, error) {
	channelRoleKey := keyChannelRole(channelID, host)
	rolesSet := keyDiscordRoles
	if host {
		rolesSet = keyDiscordHostRoles
	}
	winner := roleID

	txn := func(tx *goredis.Tx) error {
		existing, err := tx.Get(ctx, channelRoleKey).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if existing != "" {
			winner = existing
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SAdd(ctx, rolesSet, roleID)
			pipe.Set(ctx, channelRoleKey, roleID, 0)
			pipe.Set(ctx, keyRoleChannel(roleID, host), channelID, 0)
			return nil
		})
		return err
	}

	for {
		err := r.rdb.Watch(ctx, txn, channelRoleKey)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to persist channel role: %w", err)
		}
		return winner, nil
	}
}

// RemoveRole forgets a role that no longer exists on Discord, but only
// while it is still the recorded one.
func (r *ChannelRepo) RemoveRole(ctx context.Context, channelID, roleID string, host bool) error {
	channelRoleKey := keyChannelRole(channelID, host)
	rolesSet := keyDiscordRoles
	if host {
		rolesSet = keyDiscordHostRoles
	}

	txn := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, channelRoleKey).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != roleID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, channelRoleKey)
			pipe.Del(ctx, keyRoleChannel(roleID, host))
			pipe.SRem(ctx, rolesSet, roleID)
			return nil
		})
		return err
	}

	for {
		err := r.rdb.Watch(ctx, txn, channelRoleKey)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to remove channel role: %w", err)
		}
		return nil
	}
}

func (r *ChannelRepo) RecordOrphanedChannel(ctx context.Context, channelID string) error {
	return r.rdb.SAdd(ctx, keyOrphanedChannels, channelID).Err()
}

func (r *ChannelRepo) RecordOrphanedRole(ctx context.Context, roleID string) error {
	return r.rdb.SAdd(ctx, keyOrphanedRoles, roleID).Err()
}

func (r *ChannelRepo) MarkRemoved(ctx context.Context, channelID, discordID string, host bool) error {
	return r.rdb.SAdd(ctx, keyRemoved(channelID, host), discordID).Err()
}

func (r *ChannelRepo) RemovedUsers(ctx context.Context, channelID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, keyRemoved(channelID, false)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list removed users: %w", err)
	}
	return ids, nil
}

// RemovedUsersAndHosts returns the union of both removal sets: a user
// removed from a channel must not come back as a host either.
func (r *ChannelRepo) RemovedUsersAndHosts(ctx context.Context, channelID string) ([]string, error) {
	ids, err := r.rdb.SUnion(ctx, keyRemoved(channelID, false), keyRemoved(channelID, true)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list removed users and hosts: %w", err)
	}
	return ids, nil
}

func (r *ChannelRepo) ExpirationTime(ctx context.Context, channelID string) (*time.Time, error) {
	return r.getTime(ctx, keyExpirationTime(channelID))
}

// SetExpirationTime records when the channel's last known session ends.
// Pushing the expiration into the future also re-arms the reminder.
func (r *ChannelRepo) SetExpirationTime(ctx context.Context, channelID string, t time.Time) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, keyExpirationTime(channelID), t.UTC().Format(time.RFC3339), 0)
		pipe.Del(ctx, keyReminderSent(channelID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set expiration time: %w", err)
	}
	return nil
}

func (r *ChannelRepo) DeletionTime(ctx context.Context, channelID string) (*time.Time, error) {
	return r.getTime(ctx, keyDeletionTime(channelID))
}

func (r *ChannelRepo) SetDeletionTime(ctx context.Context, channelID string, t time.Time) error {
	return r.rdb.Set(ctx, keyDeletionTime(channelID), t.UTC().Format(time.RFC3339), 0).Err()
}

// MarkExpirationReminderSent sets the reminder flag. Returns true if this
// call set it, false if a reminder had already been sent.
func (r *ChannelRepo) MarkExpirationReminderSent(ctx context.Context, channelID string) (bool, error) {
	set, err := r.rdb.SetNX(ctx, keyReminderSent(channelID), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return set, nil
}

// PurgeChannel drops every piece of bookkeeping for a channel, including
// its roles and the series mapping, once the channel is gone from Discord.
func (r *ChannelRepo) PurgeChannel(ctx context.Context, channelID string) error {
	roles, err := r.Roles(ctx, channelID)
	if err != nil && !errors.Is(err, domain.ErrHalfConfigured) {
		return err
	}

	seriesID, err := r.rdb.Get(ctx, keyChannelSeries(channelID)).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to get channel series: %w", err)
	}

	_, err = r.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		if roles != nil {
			pipe.Del(ctx, keyRoleChannel(roles.User, false))
			pipe.Del(ctx, keyRoleChannel(roles.Host, true))
			pipe.SRem(ctx, keyDiscordRoles, roles.User)
			pipe.SRem(ctx, keyDiscordHostRoles, roles.Host)
		}
		if seriesID != "" {
			pipe.Del(ctx, keySeriesChannel(seriesID))
		}
		pipe.Del(ctx,
			keyChannelRole(channelID, false),
			keyChannelRole(channelID, true),
			keyChannelSeries(channelID),
			keyRemoved(channelID, false),
			keyRemoved(channelID, true),
			keyExpirationTime(channelID),
			keyDeletionTime(channelID),
			keyReminderSent(channelID),
		)
		pipe.SRem(ctx, keyDiscordChannels, channelID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to purge channel bookkeeping: %w", err)
	}
	return nil
}

func (r *ChannelRepo) getTime(ctx context.Context, key string) (*time.Time, error) {
	val, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, fmt.Errorf("corrupt timestamp in %s: %w", key, err)
	}
	t = t.UTC()
	return &t, nil
}
