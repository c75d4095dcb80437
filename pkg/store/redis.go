package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v9"
)

const KEY_DISABLED = "kbsync-disabled-%s"

type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(settings RedisSettings) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     settings.Address,
			Password: settings.Password,
			DB:       settings.DB,
		}),
	}
}

func disabledKey(id string) string {
	return fmt.Sprintf(KEY_DISABLED, id)
}

func (r *RedisStore) Disabled(ctx context.Context, id string) (bool, error) {
	_, err := r.client.Get(ctx, disabledKey(id)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	if !disabled {
		return r.client.Del(ctx, disabledKey(id)).Err()
	}

	return r.client.Set(
		ctx,
		disabledKey(id),
		// Value does not matter
		"1",
		0,
	).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
