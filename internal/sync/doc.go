// Package sync contains the recurring background tasks: mirroring Meetup
// events into Redis, reconciling Discord channels and roles with the
// mirrored events, and expiring channels whose games have ended.
package sync
