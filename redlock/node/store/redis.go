package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/git-hulk/go-redlock/redlock/node"
)

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Redis implements node.Node on a single Redis instance. SetIfAbsent goes
// through redislock, which sets the key and its expiry in one script.
type Redis struct {
	name   string
	client redislock.RedisClient
	locker *redislock.Client
}

// NewRedis creates a Redis node named name over client.
func NewRedis(name string, client redislock.RedisClient) *Redis {
	return &Redis{
		name:   name,
		client: client,
		locker: redislock.New(client),
	}
}

// Name returns the name of the Redis node.
func (r *Redis) Name() string {
	return r.name
}

// SetIfAbsent sets key to value for ttl if the key is free.
func (r *Redis) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		return false, node.ErrInvalidTTL
	}
	_, err := r.locker.Obtain(ctx, key, ttl, &redislock.Options{
		Token: value,
		// No retry strategy, the lock manager owns the retries
		RetryStrategy: redislock.NoRetry(),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CompareAndDelete deletes key if it still holds value.
func (r *Redis) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	deleted, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

// Ping checks the connection when the client supports it.
func (r *Redis) Ping(ctx context.Context) error {
	if c, ok := r.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	}); ok {
		return c.Ping(ctx).Err()
	}
	return nil
}

// Close closes the underlying client when it can be closed.
func (r *Redis) Close() error {
	if c, ok := r.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DialRedis creates one Redis node per URL (redis://[user:pass@]host:port/db).
func DialRedis(ctx context.Context, urls []string) ([]node.Node, error) {
	return dialAll(ctx, urls, func(url string) (node.Node, error) {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		return NewRedis(opts.Addr, redis.NewClient(opts)), nil
	})
}
