package discord

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/metrics"
)

const (
	commandTimeout  = 30 * time.Second
	linkingTokenTTL = time.Hour

	// A closed channel lingers for a day so hosts can rescue notes.
	closeChannelGracePeriod = 24 * time.Hour
)

// HandlerConfig carries the identifiers and callbacks the message handler
// needs. The task callbacks run asynchronous work owned by other packages.
type HandlerConfig struct {
	GuildID         string
	OrganizerRoleID string
	BaseURL         string

	Links    domain.LinkRepository
	Tokens   domain.LinkingTokenRepository
	Channels domain.ChannelRepository
	Meetup   domain.MeetupClient

	SyncMeetup       func()
	SyncDiscord      func()
	RemindExpiration func()
	Shutdown         func()
}

// Handler reacts to gateway events. It is registered before the session
// opens and receives the API client and bot ID once the gateway is up.
type Handler struct {
	cfg     HandlerConfig
	api     API
	botID   string
	regexes *Regexes
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

// SetAPI injects the REST client once the session is connected.
func (h *Handler) SetAPI(api API) { h.api = api }

// SetBotID records the bot's own user ID and compiles the command table
// against it.
func (h *Handler) SetBotID(botID string) {
	h.botID = botID
	h.regexes = CompileRegexes(botID)
}

func (h *Handler) HandleReady(r *discordgo.Ready) {
	slog.Info("discord session ready", "username", r.User.Username, "guilds", len(r.Guilds))
}

// HandleGuildMemberAdd greets new members with a direct message explaining
// how to link their Meetup account.
func (h *Handler) HandleGuildMemberAdd(g *discordgo.GuildMemberAdd) {
	if h.api == nil || g.GuildID != h.cfg.GuildID || g.User == nil || g.User.Bot {
		return
	}

	dm, err := h.api.UserChannelCreate(g.User.ID)
	if err != nil {
		slog.Warn("could not open welcome DM", "user_id", g.User.ID, "error", err)
		return
	}
	if _, err := h.api.ChannelMessageSend(dm.ID, msgWelcomePart1); err != nil {
		slog.Warn("could not send welcome message", "user_id", g.User.ID, "error", err)
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       msgWelcomeEmbedTitle,
		Description: msgWelcomeEmbedContent,
	}
	if _, err := h.api.ChannelMessageSendEmbed(dm.ID, embed); err != nil {
		slog.Warn("could not send welcome embed", "user_id", g.User.ID, "error", err)
	}
}

// HandleMessage dispatches a chat message against the command table.
func (h *Handler) HandleMessage(m *discordgo.MessageCreate) {
	if h.api == nil || h.regexes == nil {
		return
	}
	if m.Author == nil || m.Author.ID == h.botID || m.Author.Bot {
		return
	}
	// Only the home guild and direct messages are served.
	if m.GuildID != "" && m.GuildID != h.cfg.GuildID {
		return
	}

	content := m.Content
	isDM := m.GuildID == ""
	mentioned := h.regexes.BotMention.MatchString(content)
	if !isDM && !mentioned {
		return
	}
	// A DM that starts with the bot mention uses the guild command forms.
	useMention := !isDM || mentioned

	pick := func(dmForm, mentionForm *regexp.Regexp) *regexp.Regexp {
		if useMention {
			return mentionForm
		}
		return dmForm
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	re := h.regexes
	switch {
	case pick(re.LinkMeetupDM, re.LinkMeetupMention).MatchString(content):
		h.run(ctx, m, "link_meetup", h.cmdLinkMeetup)

	case pick(re.LinkMeetupOrganizerDM, re.LinkMeetupOrganizerMention).MatchString(content):
		caps := captures(pick(re.LinkMeetupOrganizerDM, re.LinkMeetupOrganizerMention), content)
		h.runOrganizer(ctx, m, "link_meetup_organizer", func(ctx context.Context, m *discordgo.MessageCreate) error {
			return h.cmdLinkMeetupOrganizer(ctx, m, caps["mention_id"], caps["meetup_id"])
		})

	case pick(re.UnlinkMeetupDM, re.UnlinkMeetupMention).MatchString(content):
		h.run(ctx, m, "unlink_meetup", func(ctx context.Context, m *discordgo.MessageCreate) error {
			return h.cmdUnlinkMeetup(ctx, m, m.Author.ID, false)
		})

	case pick(re.UnlinkMeetupOrganizerDM, re.UnlinkMeetupOrganizerMention).MatchString(content):
		caps := captures(pick(re.UnlinkMeetupOrganizerDM, re.UnlinkMeetupOrganizerMention), content)
		h.runOrganizer(ctx, m, "unlink_meetup_organizer", func(ctx context.Context, m *discordgo.MessageCreate) error {
			return h.cmdUnlinkMeetup(ctx, m, caps["mention_id"], true)
		})

	case useMention && re.SyncMeetupMention.MatchString(content):
		h.runOrganizer(ctx, m, "sync_meetup", func(ctx context.Context, m *discordgo.MessageCreate) error {
			return h.cmdTriggerTask(m, h.cfg.SyncMeetup, msgSyncMeetupStarted)
		})

	case useMention && re.SyncDiscordMention.MatchString(content):
		h.runOrganizer(ctx, m, "sync_discord", func(ctx context.Context, m *discordgo.MessageCreate) error {
			return h.cmdTriggerTask(m, h.cfg.SyncDiscord, msgSyncDiscordStarted)
		})

	case useMention && re.RemindExpirationMention.MatchString(content):
		h.runOrganizer(ctx, m, "remind_expiration", func(ctx context.Context, m *discordgo.MessageCreate) error {
			return h.cmdTriggerTask(m, h.cfg.RemindExpiration, msgExpiryStarted)
		})

	case useMention && re.AddRemoveUserMention.MatchString(content):
		caps := captures(re.AddRemoveUserMention, content)
		h.run(ctx, m, caps["action"]+"_user", func(ctx context.Context, m *discordgo.MessageCreate) error {
			return h.cmdAddRemoveUser(ctx, m, caps["action"] == "add", caps["host"] != "", caps["mention_id"])
		})

	case useMention && re.CloseChannelMention.MatchString(content):
		h.run(ctx, m, "close_channel", h.cmdCloseChannel)

	case pick(re.StopDM, re.StopMention).MatchString(content):
		h.runOrganizer(ctx, m, "stop", func(context.Context, *discordgo.MessageCreate) error {
			h.reply(m, msgStopping)
			h.cfg.Shutdown()
			return nil
		})

	case pick(re.HelpDM, re.HelpMention).MatchString(content):
		h.run(ctx, m, "help", h.cmdHelp)

	default:
		metrics.UnknownCommandsTotal.Inc()
		h.reply(m, msgInvalidCommand)
	}
}

type commandFunc func(ctx context.Context, m *discordgo.MessageCreate) error

// run executes a command, reporting unexpected failures to the user and the
// metrics counter.
func (h *Handler) run(ctx context.Context, m *discordgo.MessageCreate, name string, fn commandFunc) {
	if err := fn(ctx, m); err != nil {
		metrics.CommandsTotal.WithLabelValues(name, "error").Inc()
		slog.Error("command failed", "command", name, "user_id", m.Author.ID, "error", err)
		h.reply(m, msgUnspecifiedError)
		return
	}
	metrics.CommandsTotal.WithLabelValues(name, "ok").Inc()
}

// runOrganizer is run with an organizer role gate in front.
func (h *Handler) runOrganizer(ctx context.Context, m *discordgo.MessageCreate, name string, fn commandFunc) {
	isOrganizer, err := h.isOrganizer(m.Author.ID)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(name, "error").Inc()
		slog.Error("organizer check failed", "command", name, "user_id", m.Author.ID, "error", err)
		h.reply(m, msgUnspecifiedError)
		return
	}
	if !isOrganizer {
		metrics.CommandsTotal.WithLabelValues(name, "denied").Inc()
		h.reply(m, msgNotAnOrganizer)
		return
	}
	h.run(ctx, m, name, fn)
}

func (h *Handler) isOrganizer(userID string) (bool, error) {
	member, err := h.api.GuildMember(h.cfg.GuildID, userID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return slices.Contains(member.Roles, h.cfg.OrganizerRoleID), nil
}

func (h *Handler) reply(m *discordgo.MessageCreate, text string) {
	if _, err := h.api.ChannelMessageSend(m.ChannelID, text); err != nil {
		slog.Warn("could not send reply", "channel_id", m.ChannelID, "error", err)
	}
}

func (h *Handler) react(m *discordgo.MessageCreate, emoji string) {
	if err := h.api.MessageReactionAdd(m.ChannelID, m.ID, emoji); err != nil {
		slog.Warn("could not add reaction", "channel_id", m.ChannelID, "error", err)
	}
}

// directMessage sends text to the user's DM channel, falling back to the
// original channel when the DM cannot be opened.
func (h *Handler) directMessage(m *discordgo.MessageCreate, userID, text string) {
	dm, err := h.api.UserChannelCreate(userID)
	if err != nil {
		slog.Warn("could not open DM", "user_id", userID, "error", err)
		h.reply(m, text)
		return
	}
	if _, err := h.api.ChannelMessageSend(dm.ID, text); err != nil {
		slog.Warn("could not send DM", "user_id", userID, "error", err)
	}
}

// cmdLinkMeetup issues a single-use web linking token and sends the linking
// URL in a direct message. Already linked users get their current link
// described instead.
func (h *Handler) cmdLinkMeetup(ctx context.Context, m *discordgo.MessageCreate) error {
	meetupID, linked, err := h.cfg.Links.MeetupForDiscord(ctx, m.Author.ID)
	if err != nil {
		return err
	}
	if linked {
		text := msgAlreadyLinkedUnknownProfile()
		if h.cfg.Meetup != nil {
			profile, err := h.cfg.Meetup.GetMemberProfile(ctx, meetupID)
			if err != nil {
				slog.Warn("could not fetch linked meetup profile", "meetup_id", meetupID, "error", err)
			} else if profile != nil {
				text = msgAlreadyLinked(profile.Name)
			}
		}
		h.directMessage(m, m.Author.ID, text)
		h.react(m, "✅")
		return nil
	}

	token, err := h.cfg.Tokens.Create(ctx, m.Author.ID, linkingTokenTTL)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(h.cfg.BaseURL, "/") + "/link/" + token
	h.directMessage(m, m.Author.ID, msgMeetupLinkingLink(url))
	h.react(m, "✅")
	return nil
}

// cmdLinkMeetupOrganizer links an arbitrary member pair directly, without
// the web flow. The Meetup profile is verified to exist first.
func (h *Handler) cmdLinkMeetupOrganizer(ctx context.Context, m *discordgo.MessageCreate, discordID, meetupIDRaw string) error {
	meetupID, err := strconv.ParseUint(meetupIDRaw, 10, 64)
	if err != nil {
		h.reply(m, msgInvalidCommand)
		return nil
	}

	if current, linked, err := h.cfg.Links.MeetupForDiscord(ctx, discordID); err != nil {
		return err
	} else if linked {
		if current == meetupID {
			h.reply(m, "All good, this Meetup account was already linked.")
			return nil
		}
		h.reply(m, "This Discord user is already linked to a different Meetup account. Unlink it first.")
		return nil
	}
	if _, linked, err := h.cfg.Links.DiscordForMeetup(ctx, meetupID); err != nil {
		return err
	} else if linked {
		h.reply(m, "This Meetup account is already linked to a different Discord user. Unlink it first.")
		return nil
	}

	if h.cfg.Meetup == nil {
		h.reply(m, msgMeetupUnavailable)
		return nil
	}
	profile, err := h.cfg.Meetup.GetMemberProfile(ctx, meetupID)
	if err != nil {
		return err
	}
	if profile == nil {
		h.reply(m, "There is no Meetup member with this ID.")
		return nil
	}

	if err := h.cfg.Links.Link(ctx, discordID, meetupID); err != nil {
		if errors.Is(err, domain.ErrAlreadyLinked) {
			metrics.LinkConflictsTotal.Inc()
			h.reply(m, "Somebody else just linked one of these accounts. Nothing was changed.")
			return nil
		}
		return err
	}
	metrics.LinksTotal.WithLabelValues("organizer").Inc()

	embed := &discordgo.MessageEmbed{
		Title:       profile.Name,
		Description: "Successfully linked to <@" + discordID + ">.",
	}
	if profile.PhotoURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: profile.PhotoURL}
	}
	if _, err := h.api.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		slog.Warn("could not send link embed", "channel_id", m.ChannelID, "error", err)
	}
	return nil
}

func (h *Handler) cmdUnlinkMeetup(ctx context.Context, m *discordgo.MessageCreate, discordID string, byOrganizer bool) error {
	_, wasLinked, err := h.cfg.Links.Unlink(ctx, discordID)
	if err != nil {
		return err
	}
	switch {
	case !wasLinked && byOrganizer:
		h.reply(m, "There was no Meetup account linked to this user.")
	case !wasLinked:
		h.reply(m, msgMeetupUnlinkNotLinked)
	default:
		h.reply(m, msgMeetupUnlinkSuccess)
	}
	return nil
}

func (h *Handler) cmdTriggerTask(m *discordgo.MessageCreate, task func(), startedText string) error {
	task()
	h.reply(m, startedText)
	return nil
}

// cmdAddRemoveUser manages channel membership through the channel's role
// pair. Removals are remembered so the next sync run does not re-add the
// user from their Meetup RSVP.
func (h *Handler) cmdAddRemoveUser(ctx context.Context, m *discordgo.MessageCreate, add, asHost bool, targetID string) error {
	roles, err := h.cfg.Channels.Roles(ctx, m.ChannelID)
	if err != nil {
		if errors.Is(err, domain.ErrHalfConfigured) {
			slog.Error("channel has inconsistent role keys", "channel_id", m.ChannelID)
			h.reply(m, msgUnspecifiedError)
			return nil
		}
		return err
	}
	if roles == nil {
		h.reply(m, msgChannelNotBotControlled)
		return nil
	}

	allowed, err := h.canAdministrate(m.Author.ID, roles)
	if err != nil {
		return err
	}
	if !allowed {
		h.reply(m, msgNotChannelAdmin)
		return nil
	}

	if _, err := h.api.GuildMember(h.cfg.GuildID, targetID); err != nil {
		if IsNotFound(err) {
			h.reply(m, msgInvalidDiscordID)
			return nil
		}
		return err
	}

	if add {
		if err := h.api.GuildMemberRoleAdd(h.cfg.GuildID, targetID, roles.User); err != nil {
			slog.Error("could not add channel role", "channel_id", m.ChannelID, "user_id", targetID, "error", err)
			h.reply(m, msgRoleAddError)
			return nil
		}
		if asHost {
			if err := h.api.GuildMemberRoleAdd(h.cfg.GuildID, targetID, roles.Host); err != nil {
				slog.Error("could not add host role", "channel_id", m.ChannelID, "user_id", targetID, "error", err)
				h.reply(m, msgRoleAddError)
				return nil
			}
			h.reply(m, msgAddedNewHost(targetID))
		} else {
			h.reply(m, msgWelcomeToChannel(targetID))
		}
		return nil
	}

	// Removing a member always drops the host role. Plain removals drop the
	// access role too.
	if err := h.api.GuildMemberRoleRemove(h.cfg.GuildID, targetID, roles.Host); err != nil && !IsNotFound(err) {
		slog.Error("could not remove host role", "channel_id", m.ChannelID, "user_id", targetID, "error", err)
		h.reply(m, msgRoleRemoveError)
		return nil
	}
	if !asHost {
		if err := h.api.GuildMemberRoleRemove(h.cfg.GuildID, targetID, roles.User); err != nil && !IsNotFound(err) {
			slog.Error("could not remove channel role", "channel_id", m.ChannelID, "user_id", targetID, "error", err)
			h.reply(m, msgRoleRemoveError)
			return nil
		}
	}
	if err := h.cfg.Channels.MarkRemoved(ctx, m.ChannelID, targetID, asHost); err != nil {
		return err
	}
	h.react(m, "✅")
	return nil
}

// cmdCloseChannel schedules the channel for deletion once its last session
// is over.
func (h *Handler) cmdCloseChannel(ctx context.Context, m *discordgo.MessageCreate) error {
	roles, err := h.cfg.Channels.Roles(ctx, m.ChannelID)
	if err != nil {
		if errors.Is(err, domain.ErrHalfConfigured) {
			slog.Error("channel has inconsistent role keys", "channel_id", m.ChannelID)
			h.reply(m, msgUnspecifiedError)
			return nil
		}
		return err
	}
	if roles == nil {
		h.reply(m, msgChannelNotBotControlled)
		return nil
	}

	allowed, err := h.canAdministrate(m.Author.ID, roles)
	if err != nil {
		return err
	}
	if !allowed {
		h.reply(m, msgNotChannelAdmin)
		return nil
	}

	now := time.Now()
	expiration, err := h.cfg.Channels.ExpirationTime(ctx, m.ChannelID)
	if err != nil {
		return err
	}
	if expiration != nil && expiration.After(now) {
		h.reply(m, msgChannelNotYetCloseable)
		return nil
	}

	deletionTime := now.Add(closeChannelGracePeriod)
	current, err := h.cfg.Channels.DeletionTime(ctx, m.ChannelID)
	if err != nil {
		return err
	}
	if current != nil && !deletionTime.Before(*current) {
		h.reply(m, msgChannelAlreadyClosing)
		return nil
	}
	if err := h.cfg.Channels.SetDeletionTime(ctx, m.ChannelID, deletionTime); err != nil {
		return err
	}
	h.reply(m, msgChannelMarkedClosing)
	return nil
}

// canAdministrate reports whether the user is an organizer or a host of the
// channel the roles belong to.
func (h *Handler) canAdministrate(userID string, roles *domain.ChannelRoles) (bool, error) {
	member, err := h.api.GuildMember(h.cfg.GuildID, userID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if slices.Contains(member.Roles, h.cfg.OrganizerRoleID) {
		return true, nil
	}
	return slices.Contains(member.Roles, roles.Host), nil
}

func (h *Handler) cmdHelp(_ context.Context, m *discordgo.MessageCreate) error {
	help := "Here is what I can do for you:\n" +
		"`link meetup` links your Meetup account to your Discord profile\n" +
		"`unlink meetup` removes that link again\n" +
		"In one of my game channels, hosts can also use:\n" +
		"`add @some-user` / `remove @some-user` manages channel members\n" +
		"`add host @some-user` promotes a member to host\n" +
		"`close channel` schedules the channel for deletion after the last session"
	h.reply(m, help)
	return nil
}
