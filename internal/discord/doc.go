// Package discord connects the bot to the Discord gateway and implements
// the chat command surface: account linking, channel membership management
// and the organizer maintenance commands.
package discord
