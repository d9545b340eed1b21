// Package redis implements the Redis-backed repositories.
//
// Provides LinkRepo (Discord/Meetup account mapping), TokenRepo (web
// linking tokens), EventRepo (Meetup event mirror + series-to-channel
// mapping), and ChannelRepo (per-channel bookkeeping). Multi-key updates
// use WATCH transactions so concurrent writers cannot tear the mapping.
package redis
