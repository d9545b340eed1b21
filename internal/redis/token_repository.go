package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// TokenRepo issues single-use tokens for the web based Meetup linking flow.
// A token is a capability: whoever presents it to the web server links the
// Discord account it was minted for.
type TokenRepo struct {
	rdb *goredis.Client
}

func NewTokenRepo(rdb *goredis.Client) *TokenRepo {
	return &TokenRepo{rdb: rdb}
}

func (r *TokenRepo) Create(ctx context.Context, discordID string, ttl time.Duration) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := r.rdb.Set(ctx, keyLinkingToken(token), discordID, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store linking token: %w", err)
	}
	return token, nil
}

func (r *TokenRepo) Resolve(ctx context.Context, token string) (string, bool, error) {
	discordID, err := r.rdb.Get(ctx, keyLinkingToken(token)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve linking token: %w", err)
	}
	return discordID, true, nil
}

func (r *TokenRepo) Consume(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, keyLinkingToken(token)).Err()
}
