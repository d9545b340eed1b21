// Package domain defines the core types and repository interfaces shared
// across the bot, the sync tasks, and the web server.
package domain
