package discord

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// API is the subset of the Discord REST API the bot uses. *discordgo.Session
// satisfies it directly; tests substitute a fake.
type API interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildRoleDelete(guildID, roleID string, options ...discordgo.RequestOption) error
}

// NewSession opens a gateway session with the intents the bot needs and
// registers the handler's event callbacks. The returned session is connected
// and the handler's command table is compiled against the bot's own user ID.
func NewSession(token string, handler *Handler) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		handler.HandleReady(r)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		handler.HandleMessage(m)
	})
	session.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildMemberAdd) {
		handler.HandleGuildMemberAdd(g)
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("opening discord gateway: %w", err)
	}

	handler.SetAPI(session)
	handler.SetBotID(session.State.User.ID)
	slog.Info("discord gateway connected", "bot_id", session.State.User.ID)

	return session, nil
}

// IsNotFound reports whether err is a Discord 404, meaning the referenced
// entity no longer exists.
func IsNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		return restErr.Response != nil && restErr.Response.StatusCode == 404
	}
	return false
}
