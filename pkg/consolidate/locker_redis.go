package consolidate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisReleaseScript deletes the lease only if this runner still owns
// it, so an expired lease taken over by another runner is never
// released out from under it.
// KEYS[1] = lease key (e.g. "vigil:consolidate:lock:cache.vary.honored")
// ARGV[1] = owner token
var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	redisLockPrefix      = "vigil:consolidate:lock:"
	defaultLeaseTTL      = 30 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
)

// RedisLocker implements GroupLocker with a Redis SET NX PX lease.
type RedisLocker struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a lease locker backed by Redis.
func NewRedisLocker(addr string, password string, db int) *RedisLocker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLocker{
		client: rdb,
		owner:  uuid.NewString(),
		ttl:    defaultLeaseTTL,
		retry:  defaultRetryInterval,
	}
}

// WithTTL overrides the lease TTL. The TTL bounds how long a crashed
// runner can hold a group hostage.
func (r *RedisLocker) WithTTL(ttl time.Duration) *RedisLocker {
	r.ttl = ttl
	return r
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	leaseKey := redisLockPrefix + key

	for {
		ok, err := r.client.SetNX(ctx, leaseKey, r.owner, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lease error: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = redisReleaseScript.Run(releaseCtx, r.client, []string{leaseKey}, r.owner).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

// Close releases the underlying client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}
