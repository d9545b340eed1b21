package redis

import "fmt"

// Key layout is shared with the Meetup-side importer, so every format
// below is part of the persisted schema and must stay stable.

const (
	keyDiscordUsers     = "discord_users"
	keyMeetupUsers      = "meetup_users"
	keyEventSeries      = "event_series"
	keyDiscordChannels  = "discord_channels"
	keyDiscordRoles     = "discord_roles"
	keyDiscordHostRoles = "discord_host_roles"
	keyOrphanedChannels = "orphaned_discord_channels"
	keyOrphanedRoles    = "orphaned_discord_roles"
)

func keyDiscordToMeetup(discordID string) string {
	return fmt.Sprintf("discord_user:%s:meetup_user", discordID)
}

func keyMeetupToDiscord(meetupID uint64) string {
	return fmt.Sprintf("meetup_user:%d:discord_user", meetupID)
}

func keyLinkingToken(token string) string {
	return fmt.Sprintf("meetup_linking:%s:discord_user", token)
}

func keySeriesEvents(seriesID string) string {
	return fmt.Sprintf("event_series:%s:meetup_events", seriesID)
}

func keySeriesType(seriesID string) string {
	return fmt.Sprintf("event_series:%s:type", seriesID)
}

func keySeriesChannel(seriesID string) string {
	return fmt.Sprintf("event_series:%s:discord_channel", seriesID)
}

func keyChannelSeries(channelID string) string {
	return fmt.Sprintf("discord_channel:%s:event_series", channelID)
}

func keyEvent(eventID string) string {
	return fmt.Sprintf("meetup_event:%s", eventID)
}

func keyEventUsers(eventID string) string {
	return fmt.Sprintf("meetup_event:%s:meetup_users", eventID)
}

func keyEventHosts(eventID string) string {
	return fmt.Sprintf("meetup_event:%s:meetup_hosts", eventID)
}

func keyChannelRole(channelID string, host bool) string {
	if host {
		return fmt.Sprintf("discord_channel:%s:discord_host_role", channelID)
	}
	return fmt.Sprintf("discord_channel:%s:discord_role", channelID)
}

func keyRoleChannel(roleID string, host bool) string {
	if host {
		return fmt.Sprintf("discord_host_role:%s:discord_channel", roleID)
	}
	return fmt.Sprintf("discord_role:%s:discord_channel", roleID)
}

func keyRemoved(channelID string, host bool) string {
	if host {
		return fmt.Sprintf("discord_channel:%s:removed_hosts", channelID)
	}
	return fmt.Sprintf("discord_channel:%s:removed_users", channelID)
}

func keyExpirationTime(channelID string) string {
	return fmt.Sprintf("discord_channel:%s:expiration_time", channelID)
}

func keyDeletionTime(channelID string) string {
	return fmt.Sprintf("discord_channel:%s:deletion_time", channelID)
}

func keyReminderSent(channelID string) string {
	return fmt.Sprintf("discord_channel:%s:expiration_reminder_sent", channelID)
}
