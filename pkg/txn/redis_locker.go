package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tonkeeper/tongo/ton"
)

type RedisLockerConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	// LeaseTTL bounds how long a crashed holder blocks the account.
	LeaseTTL time.Duration
	// RetryEvery is the polling interval while the lease is taken.
	RetryEvery time.Duration
}

// RedisLocker serializes builders across processes sharing one wallet.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func NewRedisLocker(ctx context.Context, cfg RedisLockerConfig) (*RedisLocker, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("can not connect to redis: %w", err)
	}
	return newRedisLocker(client, cfg), nil
}

func newRedisLocker(client *redis.Client, cfg RedisLockerConfig) *RedisLocker {
	l := &RedisLocker{client: client, prefix: cfg.Prefix, ttl: cfg.LeaseTTL, retry: cfg.RetryEvery}
	if l.prefix == "" {
		l.prefix = "ton-agent"
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.retry <= 0 {
		l.retry = 100 * time.Millisecond
	}
	return l
}

func (l *RedisLocker) leaseKey(account ton.AccountID) string {
	return fmt.Sprintf("%s:lease:%s", l.prefix, account.ToRaw())
}

func (l *RedisLocker) flightKey(account ton.AccountID) string {
	return fmt.Sprintf("%s:flight:%s", l.prefix, account.ToRaw())
}

func (l *RedisLocker) Lock(ctx context.Context, account ton.AccountID) (func(), error) {
	key := l.leaseKey(account)
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("can not acquire lease: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			slog.Error("release account lease", "account", account.ToRaw(), "error", err)
		}
	}, nil
}

func (l *RedisLocker) LastFlight(ctx context.Context, account ton.AccountID) (*Flight, error) {
	raw, err := l.client.Get(ctx, l.flightKey(account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var f Flight
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (l *RedisLocker) RecordFlight(ctx context.Context, account ton.AccountID, f Flight) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	// the record is useless once valid_until has passed
	ttl := time.Until(f.ValidUntil) + time.Minute
	return l.client.Set(ctx, l.flightKey(account), raw, ttl).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
