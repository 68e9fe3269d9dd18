// Package lock provides a Redis lease used to keep escalation ticks from
// overlapping across replicas.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

type RedisLock struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

func New(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{Client: client, Key: key, TTL: ttl}
}

// TryLock sets the key only when absent. The returned unlock deletes it only
// while it still holds this caller's token.
func (l *RedisLock) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	if l == nil || l.Client == nil {
		return nil, false, errors.New("redis client not initialized")
	}
	if l.TTL <= 0 {
		return nil, false, errors.New("ttl must be > 0")
	}
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func(ctx context.Context) error {
		return l.Client.Eval(ctx, releaseScript, []string{l.Key}, token).Err()
	}
	return unlock, true, nil
}
