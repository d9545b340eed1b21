package discord

import (
	"fmt"
	"regexp"
)

// mentionPattern matches a Discord user mention and captures the ID. The
// optional bang covers nickname mentions, which some clients send.
const mentionPattern = `<@!?(?P<mention_id>[0-9]+)>`

// Regexes holds the compiled command table. Every guild command exists in a
// mention form ("@bot link meetup") and DM-only commands additionally in a
// bare form ("link meetup"). The table is compiled once per session because
// the mention forms embed the bot's own user ID.
type Regexes struct {
	BotMention *regexp.Regexp

	LinkMeetupDM                 *regexp.Regexp
	LinkMeetupMention            *regexp.Regexp
	LinkMeetupOrganizerDM        *regexp.Regexp
	LinkMeetupOrganizerMention   *regexp.Regexp
	UnlinkMeetupDM               *regexp.Regexp
	UnlinkMeetupMention          *regexp.Regexp
	UnlinkMeetupOrganizerDM      *regexp.Regexp
	UnlinkMeetupOrganizerMention *regexp.Regexp
	SyncMeetupMention            *regexp.Regexp
	SyncDiscordMention           *regexp.Regexp
	RemindExpirationMention      *regexp.Regexp
	AddRemoveUserMention         *regexp.Regexp
	CloseChannelMention          *regexp.Regexp
	StopDM                       *regexp.Regexp
	StopMention                  *regexp.Regexp
	HelpDM                       *regexp.Regexp
	HelpMention                  *regexp.Regexp
}

// CompileRegexes builds the command table for the given bot user ID.
func CompileRegexes(botID string) *Regexes {
	bot := fmt.Sprintf(`<@!?%s>`, regexp.QuoteMeta(botID))

	dm := func(body string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)^\s*` + body + `\s*$`)
	}
	mention := func(body string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)^\s*` + bot + `\s+` + body + `\s*$`)
	}

	const (
		linkMeetup            = `link[ -]?meetup`
		linkMeetupOrganizer   = `link[ -]?meetup\s+` + mentionPattern + `\s+(?P<meetup_id>[0-9]+)`
		unlinkMeetup          = `unlink[ -]?meetup`
		unlinkMeetupOrganizer = `unlink[ -]?meetup\s+` + mentionPattern
		syncMeetup            = `sync\s+meetup`
		syncDiscord           = `sync\s+discord`
		remindExpiration      = `remind\s+expirations?`
		addRemoveUser         = `(?P<action>add|remove)\s+(?:(?P<host>host)\s+)?` + mentionPattern
		closeChannel          = `close\s+channel`
		stop                  = `stop`
		help                  = `help`
	)

	return &Regexes{
		BotMention: regexp.MustCompile(`^\s*` + bot),

		LinkMeetupDM:                 dm(linkMeetup),
		LinkMeetupMention:            mention(linkMeetup),
		LinkMeetupOrganizerDM:        dm(linkMeetupOrganizer),
		LinkMeetupOrganizerMention:   mention(linkMeetupOrganizer),
		UnlinkMeetupDM:               dm(unlinkMeetup),
		UnlinkMeetupMention:          mention(unlinkMeetup),
		UnlinkMeetupOrganizerDM:      dm(unlinkMeetupOrganizer),
		UnlinkMeetupOrganizerMention: mention(unlinkMeetupOrganizer),
		SyncMeetupMention:            mention(syncMeetup),
		SyncDiscordMention:           mention(syncDiscord),
		RemindExpirationMention:      mention(remindExpiration),
		AddRemoveUserMention:         mention(addRemoveUser),
		CloseChannelMention:          mention(closeChannel),
		StopDM:                       dm(stop),
		StopMention:                  mention(stop),
		HelpDM:                       dm(help),
		HelpMention:                  mention(help),
	}
}

// captures returns the named capture groups of re in s, or nil if s does not
// match.
func captures(re *regexp.Regexp, s string) map[string]string {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil
	}
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = match[i]
		}
	}
	return out
}
