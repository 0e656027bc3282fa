package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyTTL keeps a week of history for the rolling blog window plus a day of slack.
const keyTTL = 8 * 24 * time.Hour

// RedisStore keeps counters in Redis hashes keyed <prefix>:<date>:<bucket>.
// Increments are HINCRBY commands inside MULTI, so concurrent processes
// never lose updates.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}
	return NewRedisStore(client, opts.KeyPrefix), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "actiongate:usage"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(dateKey string, bucket Bucket) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, dateKey, bucket)
}

// Get reads one counter.
func (r *RedisStore) Get(ctx context.Context, dateKey string, bucket Bucket) (Counter, error) {
	vals, err := r.client.HMGet(ctx, r.key(dateKey, bucket), "count", "spend_minor").Result()
	if err != nil {
		return Counter{}, unavailable("get", err)
	}
	count, err := parseRedisInt(vals[0])
	if err != nil {
		return Counter{}, unavailable("get", err)
	}
	spend, err := parseRedisInt(vals[1])
	if err != nil {
		return Counter{}, unavailable("get", err)
	}
	return Counter{Count: count, Spend: fromMinor(spend)}, nil
}

// Increment adds delta atomically and refreshes the key TTL.
func (r *RedisStore) Increment(ctx context.Context, dateKey string, bucket Bucket, delta Counter) (Counter, error) {
	key := r.key(dateKey, bucket)
	var countCmd, spendCmd *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		countCmd = pipe.HIncrBy(ctx, key, "count", delta.Count)
		spendCmd = pipe.HIncrBy(ctx, key, "spend_minor", toMinor(delta.Spend))
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		return Counter{}, unavailable("increment", err)
	}
	return Counter{Count: countCmd.Val(), Spend: fromMinor(spendCmd.Val())}, nil
}

// Reset deletes every key under the store prefix.
func (r *RedisStore) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return unavailable("reset", err)
		}
	}
	if err := iter.Err(); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func parseRedisInt(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected redis value %T", v)
	}
}
