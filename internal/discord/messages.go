package discord

import "fmt"

// User-facing reply texts. Kept in one place so the bot's voice stays
// consistent.
const (
	msgNotAnOrganizer   = "Sorry, this command is only available to organizers."
	msgNotChannelAdmin  = "Sorry, only organizers and channel hosts can do that."
	msgUnspecifiedError = "Oops, something went wrong on my end. Please try again later " +
		"or let an organizer know if it keeps happening."
	msgInvalidCommand = "I didn't understand that. Write \"help\" or mention me with a " +
		"command I know, like \"link meetup\"."
	msgMeetupUnlinkSuccess     = "Done! Your Meetup account is no longer linked."
	msgMeetupUnlinkNotLinked   = "There was no Meetup account linked to you in the first place."
	msgChannelNotBotControlled = "This doesn't seem to be one of my game channels, " +
		"so there is nothing for me to do here."
	msgChannelNotYetCloseable = "This channel still has upcoming sessions and can't be " +
		"closed yet. Try again after the last session."
	msgChannelAlreadyClosing = "This channel is already marked for closing."
	msgChannelMarkedClosing  = "Alright, this channel will be deleted within the next 24 hours."
	msgInvalidDiscordID      = "Seems like the specified Discord user is invalid."
	msgRoleAddError          = "I could not assign the channel role. Please try again later."
	msgRoleRemoveError       = "I could not remove the channel role. Please try again later."
	msgMeetupUnavailable     = "The Meetup API is currently unavailable, please try again later."
	msgSyncMeetupStarted     = "Started asynchronous Meetup synchronization task"
	msgSyncDiscordStarted    = "Started Discord synchronization task"
	msgExpiryStarted         = "Started expiration reminder task"
	msgStopping              = "Shutting down. See you soon!"

	msgWelcomePart1 = "Welcome to SwissRPG! I'm the bot that connects this server " +
		"with our Meetup group."
	msgWelcomeEmbedTitle   = "Getting started"
	msgWelcomeEmbedContent = "If you have a Meetup account, write \"link meetup\" to me in " +
		"this direct message and I'll connect it to your Discord profile. That way you get " +
		"access to your game channels automatically whenever you RSVP to one of our events."
)

func msgMeetupLinkingLink(url string) string {
	return fmt.Sprintf("Click the following link to connect your Meetup account "+
		"with your Discord profile:\n%s\nThis link is valid for one hour and can "+
		"only be used once.", url)
}

func msgAlreadyLinked(meetupName string) string {
	return fmt.Sprintf("You are already linked to the Meetup account \"%s\". If you "+
		"want to change that, unlink it first by writing \"unlink meetup\".", meetupName)
}

func msgAlreadyLinkedUnknownProfile() string {
	return "You are already linked to a Meetup account, but I could not look up its " +
		"profile right now. If you want to link a different account, write \"unlink meetup\" first."
}

func msgAddedNewHost(discordID string) string {
	return fmt.Sprintf("<@%s> is now a host of this channel.", discordID)
}

func msgWelcomeToChannel(discordID string) string {
	return fmt.Sprintf("Welcome <@%s>!", discordID)
}
