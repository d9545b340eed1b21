// Package server is the HTTP face of the bot, served behind nginx on
// localhost: health and metrics endpoints, static assets, and the web half
// of the Meetup account linking flow.
package server
