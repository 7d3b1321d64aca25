// Package infra holds the go-redis v9 adapter shared by the Redis record
// store and the Redis event forwarder.
package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// RedisOptions configures the connection. Zero timeouts and pool size take
// the defaults below.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// GoRedisAdapter implements store.KV and events.ChannelPublisher.
type GoRedisAdapter struct {
	rdb *redis.Client
}

// NewGoRedisAdapter connects and pings; an unreachable server is an error
// so the caller can refuse to start with a redis store configured.
func NewGoRedisAdapter(ctx context.Context, o RedisOptions) (*GoRedisAdapter, error) {
	if o.PoolSize == 0 {
		o.PoolSize = 20
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 3 * time.Second
	}
	if o.IOTimeout == 0 {
		o.IOTimeout = 2 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.IOTimeout,
		WriteTimeout: o.IOTimeout,
		PoolSize:     o.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, o.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}

	slog.Info("[Redis] connected", "addr", o.Addr, "db", o.DB)
	return NewFromClient(rdb), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client) *GoRedisAdapter {
	return &GoRedisAdapter{rdb: rdb}
}

func (a *GoRedisAdapter) Close() error { return a.rdb.Close() }

// PutIndexed writes value under key and adds member to the set indexKey in
// one MULTI/EXEC, so an indexed id always has a record.
func (a *GoRedisAdapter) PutIndexed(ctx context.Context, key string, value []byte, indexKey, member string) error {
	_, err := a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, 0)
		p.SAdd(ctx, indexKey, member)
		return nil
	})
	return err
}

func (a *GoRedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := a.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	return val, err
}

// MGet returns the values of keys in order; a missing key yields nil.
func (a *GoRedisAdapter) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := a.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (a *GoRedisAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	return a.rdb.SMembers(ctx, key).Result()
}

// Publish implements events.ChannelPublisher.
func (a *GoRedisAdapter) Publish(ctx context.Context, channel string, message []byte) error {
	return a.rdb.Publish(ctx, channel, message).Err()
}
