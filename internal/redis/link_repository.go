package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/AlpTkz/discord-bot/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const linkTxRetries = 3

// LinkRepo stores the Discord/Meetup account mapping in both directions.
type LinkRepo struct {
	rdb *goredis.Client
}

func NewLinkRepo(rdb *goredis.Client) *LinkRepo {
	return &LinkRepo{rdb: rdb}
}

func (r *LinkRepo) MeetupForDiscord(ctx context.Context, discordID string) (uint64, bool, error) {
	val, err := r.rdb.Get(ctx, keyDiscordToMeetup(discordID)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up meetup link: %w", err)
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt meetup link for discord user %s: %w", discordID, err)
	}
	return id, true, nil
}

func (r *LinkRepo) DiscordForMeetup(ctx context.Context, meetupID uint64) (string, bool, error) {
	val, err := r.rdb.Get(ctx, keyMeetupToDiscord(meetupID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up discord link: %w", err)
	}
	return val, true, nil
}

// Link sets the mapping in both directions inside a WATCH transaction: if
// either side gets linked between the read and the write, the transaction
// aborts and ErrAlreadyLinked is returned.
func (r *LinkRepo) Link(ctx context.Context, discordID string, meetupID uint64) error {
	d2m := keyDiscordToMeetup(discordID)
	m2d := keyMeetupToDiscord(meetupID)

	txn := func(tx *goredis.Tx) error {
		existingMeetup, err := tx.Get(ctx, d2m).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		existingDiscord, err := tx.Get(ctx, m2d).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if existingMeetup != "" || existingDiscord != "" {
			return domain.ErrAlreadyLinked
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SAdd(ctx, keyMeetupUsers, meetupID)
			pipe.SAdd(ctx, keyDiscordUsers, discordID)
			pipe.Set(ctx, d2m, meetupID, 0)
			pipe.Set(ctx, m2d, discordID, 0)
			return nil
		})
		return err
	}

	for i := 0; i < linkTxRetries; i++ {
		err := r.rdb.Watch(ctx, txn, d2m, m2d)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyLinked) {
				return domain.ErrAlreadyLinked
			}
			return fmt.Errorf("failed to link accounts: %w", err)
		}
		return nil
	}
	return domain.ErrAlreadyLinked
}

func (r *LinkRepo) Unlink(ctx context.Context, discordID string) (uint64, bool, error) {
	meetupID, linked, err := r.MeetupForDiscord(ctx, discordID)
	if err != nil {
		return 0, false, err
	}
	if !linked {
		return 0, false, nil
	}
	if err := r.rdb.Del(ctx, keyDiscordToMeetup(discordID), keyMeetupToDiscord(meetupID)).Err(); err != nil {
		return 0, false, fmt.Errorf("failed to unlink accounts: %w", err)
	}
	return meetupID, true, nil
}
