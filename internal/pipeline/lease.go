package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld means another process is running a cycle.
var ErrLeaseHeld = errors.New("cycle lease held by another process")

// Lease serializes cycles across processes.
type Lease interface {
	// Acquire takes the lease for ttl. It returns ErrLeaseHeld when another
	// holder has it. The returned release func is safe to call once.
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}

type RedisLeaseConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisLease is a SET NX PX lease with a random token; release deletes the
// key only while it still holds that token, so an expired lease taken over
// by someone else is left alone.
type RedisLease struct {
	client *redis.Client
	key    string
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLease(cfg RedisLeaseConfig) *RedisLease {
	return &RedisLease{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key: cfg.Key,
	}
}

// Ping checks connectivity.
func (l *RedisLease) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}, nil
}

func (l *RedisLease) Close() error { return l.client.Close() }
