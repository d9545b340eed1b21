package sync

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/AlpTkz/discord-bot/internal/domain"
	"github.com/AlpTkz/discord-bot/internal/meetup"
)

var errNotFound = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}

type fakeAPI struct {
	channels  map[string]*discordgo.Channel
	nextID    int
	roleNames map[string]string

	sent            map[string][]string
	roleAdds        []string
	permissions     []string
	edits           map[string]*discordgo.ChannelEdit
	deletedChannels []string
	deletedRoles    []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		channels:  make(map[string]*discordgo.Channel),
		roleNames: make(map[string]string),
		sent:      make(map[string][]string),
		edits:     make(map[string]*discordgo.ChannelEdit),
	}
}

func (f *fakeAPI) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) ChannelMessageSendEmbed(channelID string, _ *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) MessageReactionAdd(string, string, string, ...discordgo.RequestOption) error {
	return nil
}

func (f *fakeAPI) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeAPI) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, errNotFound
	}
	return channel, nil
}

func (f *fakeAPI) ChannelEdit(channelID string, data *discordgo.ChannelEdit, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, errNotFound
	}
	channel.Topic = data.Topic
	channel.ParentID = data.ParentID
	f.edits[channelID] = data
	return channel, nil
}

func (f *fakeAPI) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	channel, ok := f.channels[channelID]
	if !ok {
		return nil, errNotFound
	}
	delete(f.channels, channelID)
	f.deletedChannels = append(f.deletedChannels, channelID)
	return channel, nil
}

func (f *fakeAPI) ChannelPermissionSet(channelID, targetID string, _ discordgo.PermissionOverwriteType, _, _ int64, _ ...discordgo.RequestOption) error {
	f.permissions = append(f.permissions, channelID+":"+targetID)
	return nil
}

func (f *fakeAPI) GuildChannelCreateComplex(_ string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.nextID++
	id := "chan-" + string(rune('a'+f.nextID-1))
	f.channels[id] = &discordgo.Channel{ID: id, Name: data.Name, ParentID: data.ParentID}
	return f.channels[id], nil
}

func (f *fakeAPI) GuildMember(_ string, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	return &discordgo.Member{User: &discordgo.User{ID: userID}}, nil
}

func (f *fakeAPI) GuildMemberRoleAdd(_ string, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.roleAdds = append(f.roleAdds, userID+":"+roleID)
	return nil
}

func (f *fakeAPI) GuildMemberRoleRemove(string, string, string, ...discordgo.RequestOption) error {
	return nil
}

func (f *fakeAPI) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	roles := make([]*discordgo.Role, 0, len(f.roleNames))
	for id, name := range f.roleNames {
		roles = append(roles, &discordgo.Role{ID: id, Name: name})
	}
	return roles, nil
}

func (f *fakeAPI) GuildRoleCreate(_ string, data *discordgo.RoleParams, _ ...discordgo.RequestOption) (*discordgo.Role, error) {
	f.nextID++
	id := "role-" + string(rune('a'+f.nextID-1))
	f.roleNames[id] = data.Name
	return &discordgo.Role{ID: id, Name: data.Name}, nil
}

func (f *fakeAPI) GuildRoleDelete(_ string, roleID string, _ ...discordgo.RequestOption) error {
	if _, ok := f.roleNames[roleID]; !ok {
		return errNotFound
	}
	delete(f.roleNames, roleID)
	f.deletedRoles = append(f.deletedRoles, roleID)
	return nil
}

type memEvents struct {
	series        map[string][]domain.Event
	types         map[string]domain.SeriesType
	seriesChannel map[string]string
	rsvps         map[string][]uint64
	hostRSVPs     map[string][]uint64

	seriesIDsCalls atomic.Int32
	seriesIDsErr   error
}

func newMemEvents() *memEvents {
	return &memEvents{
		series:        make(map[string][]domain.Event),
		types:         make(map[string]domain.SeriesType),
		seriesChannel: make(map[string]string),
		rsvps:         make(map[string][]uint64),
		hostRSVPs:     make(map[string][]uint64),
	}
}

func (m *memEvents) SeriesIDs(context.Context) ([]string, error) {
	m.seriesIDsCalls.Add(1)
	if m.seriesIDsErr != nil {
		return nil, m.seriesIDsErr
	}
	ids := make([]string, 0, len(m.series))
	for id := range m.series {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memEvents) SeriesEvents(_ context.Context, seriesID string) ([]domain.Event, error) {
	return m.series[seriesID], nil
}

func (m *memEvents) SeriesType(_ context.Context, seriesID string) (domain.SeriesType, error) {
	return m.types[seriesID], nil
}

func (m *memEvents) SeriesChannel(_ context.Context, seriesID string) (string, bool, error) {
	id, ok := m.seriesChannel[seriesID]
	return id, ok, nil
}

func (m *memEvents) EnsureSeriesChannel(_ context.Context, seriesID, channelID string) (string, error) {
	if existing, ok := m.seriesChannel[seriesID]; ok {
		return existing, nil
	}
	m.seriesChannel[seriesID] = channelID
	return channelID, nil
}

func (m *memEvents) RemoveSeriesChannel(_ context.Context, seriesID, channelID string) error {
	if m.seriesChannel[seriesID] == channelID {
		delete(m.seriesChannel, seriesID)
	}
	return nil
}

func (m *memEvents) SeriesRSVPs(_ context.Context, seriesID string, hosts bool) ([]uint64, error) {
	if hosts {
		return m.hostRSVPs[seriesID], nil
	}
	return m.rsvps[seriesID], nil
}

type memChannels struct {
	userRoles map[string]string
	hostRoles map[string]string

	removedUsers map[string]map[string]bool
	removedHosts map[string]map[string]bool

	expiration map[string]time.Time
	deletion   map[string]time.Time
	reminded   map[string]bool

	orphanRoles    []string
	orphanChannels []string
	purged         []string
}

func newMemChannels() *memChannels {
	return &memChannels{
		userRoles:    make(map[string]string),
		hostRoles:    make(map[string]string),
		removedUsers: make(map[string]map[string]bool),
		removedHosts: make(map[string]map[string]bool),
		expiration:   make(map[string]time.Time),
		deletion:     make(map[string]time.Time),
		reminded:     make(map[string]bool),
	}
}

func (m *memChannels) Channels(context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for id := range m.userRoles {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range m.expiration {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range m.deletion {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memChannels) Roles(_ context.Context, channelID string) (*domain.ChannelRoles, error) {
	user, userOK := m.userRoles[channelID]
	host, hostOK := m.hostRoles[channelID]
	switch {
	case userOK && hostOK:
		return &domain.ChannelRoles{User: user, Host: host}, nil
	case !userOK && !hostOK:
		return nil, nil
	default:
		return nil, domain.ErrHalfConfigured
	}
}

func (m *memChannels) EnsureRole(_ context.Context, channelID, roleID string, host bool) (string, error) {
	store := m.userRoles
	if host {
		store = m.hostRoles
	}
	if existing, ok := store[channelID]; ok {
		return existing, nil
	}
	store[channelID] = roleID
	return roleID, nil
}

func (m *memChannels) RemoveRole(_ context.Context, channelID, roleID string, host bool) error {
	store := m.userRoles
	if host {
		store = m.hostRoles
	}
	if store[channelID] == roleID {
		delete(store, channelID)
	}
	return nil
}

func (m *memChannels) RecordOrphanedChannel(_ context.Context, channelID string) error {
	m.orphanChannels = append(m.orphanChannels, channelID)
	return nil
}

func (m *memChannels) RecordOrphanedRole(_ context.Context, roleID string) error {
	m.orphanRoles = append(m.orphanRoles, roleID)
	return nil
}

func (m *memChannels) MarkRemoved(_ context.Context, channelID, discordID string, host bool) error {
	store := m.removedUsers
	if host {
		store = m.removedHosts
	}
	if store[channelID] == nil {
		store[channelID] = make(map[string]bool)
	}
	store[channelID][discordID] = true
	return nil
}

func (m *memChannels) RemovedUsers(_ context.Context, channelID string) ([]string, error) {
	var ids []string
	for id := range m.removedUsers[channelID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memChannels) RemovedUsersAndHosts(ctx context.Context, channelID string) ([]string, error) {
	ids, _ := m.RemovedUsers(ctx, channelID)
	for id := range m.removedHosts[channelID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memChannels) ExpirationTime(_ context.Context, channelID string) (*time.Time, error) {
	t, ok := m.expiration[channelID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memChannels) SetExpirationTime(_ context.Context, channelID string, t time.Time) error {
	m.expiration[channelID] = t
	delete(m.reminded, channelID)
	return nil
}

func (m *memChannels) DeletionTime(_ context.Context, channelID string) (*time.Time, error) {
	t, ok := m.deletion[channelID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memChannels) SetDeletionTime(_ context.Context, channelID string, t time.Time) error {
	m.deletion[channelID] = t
	return nil
}

func (m *memChannels) MarkExpirationReminderSent(_ context.Context, channelID string) (bool, error) {
	if m.reminded[channelID] {
		return false, nil
	}
	m.reminded[channelID] = true
	return true, nil
}

func (m *memChannels) PurgeChannel(_ context.Context, channelID string) error {
	delete(m.userRoles, channelID)
	delete(m.hostRoles, channelID)
	delete(m.expiration, channelID)
	delete(m.deletion, channelID)
	delete(m.reminded, channelID)
	m.purged = append(m.purged, channelID)
	return nil
}

type memLinks struct {
	meetupToDiscord map[uint64]string
}

func (m *memLinks) MeetupForDiscord(context.Context, string) (uint64, bool, error) {
	return 0, false, nil
}

func (m *memLinks) DiscordForMeetup(_ context.Context, meetupID uint64) (string, bool, error) {
	id, ok := m.meetupToDiscord[meetupID]
	return id, ok, nil
}

func (m *memLinks) Link(context.Context, string, uint64) error { return nil }

func (m *memLinks) Unlink(context.Context, string) (uint64, bool, error) {
	return 0, false, nil
}

type fakeSource struct {
	events map[string][]meetup.UpcomingEvent
	rsvps  map[string][]uint64
}

func (f *fakeSource) UpcomingEvents(_ context.Context, group string) ([]meetup.UpcomingEvent, error) {
	return f.events[group], nil
}

func (f *fakeSource) EventRSVPs(_ context.Context, _, eventID string) ([]uint64, error) {
	return f.rsvps[eventID], nil
}

type fakeStore struct {
	stored map[string][]domain.Event
	users  map[string][]uint64
	hosts  map[string][]uint64
	types  map[string]domain.SeriesType
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stored: make(map[string][]domain.Event),
		users:  make(map[string][]uint64),
		hosts:  make(map[string][]uint64),
		types:  make(map[string]domain.SeriesType),
	}
}

func (f *fakeStore) StoreEvent(_ context.Context, seriesID string, event domain.Event, userIDs, hostIDs []uint64) error {
	f.stored[seriesID] = append(f.stored[seriesID], event)
	f.users[event.ID] = userIDs
	f.hosts[event.ID] = hostIDs
	return nil
}

func (f *fakeStore) SetSeriesTypeIfUnset(_ context.Context, seriesID string, seriesType domain.SeriesType) error {
	if _, ok := f.types[seriesID]; !ok {
		f.types[seriesID] = seriesType
	}
	return nil
}
