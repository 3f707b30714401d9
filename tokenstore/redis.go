package tokenstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard/auth"
)

// Redis persists the credential in Redis, for deployments where the board
// daemon runs alongside shared infrastructure. Entries never expire; the
// credential manager owns their lifecycle.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed token store using the provided client.
func NewRedis(client *redis.Client) *Redis {
	if client == nil {
		panic("tokenstore.NewRedis: client is nil")
	}
	return &Redis{client: client}
}

func (r *Redis) Save(ctx context.Context, cred auth.Credential) error {
	expiry := strconv.FormatInt(cred.Expiry.UnixMilli(), 10)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, keyAccessToken, cred.AccessToken, 0)
		if cred.RefreshToken == "" {
			pipe.Del(ctx, keyRefreshToken)
		} else {
			pipe.Set(ctx, keyRefreshToken, cred.RefreshToken, 0)
		}
		pipe.Set(ctx, keyExpiry, expiry, 0)
		return nil
	})
	return err
}

func (r *Redis) Load(ctx context.Context) (auth.Credential, bool, error) {
	vals, err := r.client.MGet(ctx, keyAccessToken, keyRefreshToken, keyExpiry).Result()
	if err != nil {
		return auth.Credential{}, false, err
	}
	access, _ := vals[0].(string)
	expiryRaw, _ := vals[2].(string)
	if access == "" || expiryRaw == "" {
		return auth.Credential{}, false, nil
	}
	millis, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return auth.Credential{}, false, fmt.Errorf("parse stored expiry %q: %w", expiryRaw, err)
	}
	refresh, _ := vals[1].(string)
	return auth.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       time.UnixMilli(millis),
	}, true, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.client.Del(ctx, keyAccessToken, keyRefreshToken, keyExpiry).Err()
}
