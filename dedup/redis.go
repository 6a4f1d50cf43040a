package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "policylens:dedup:"

// checkScript reads and marks the stored hash for one identity in a single
// atomic step, returning the prior state:
//
//	{"new", ""}        identity unseen, hash stored
//	{"unchanged", h}   stored hash equals the incoming one
//	{"updated", h}     stored hash differed and was replaced
var checkScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  redis.call('SET', KEYS[1], ARGV[1])
  return {'new', ''}
end
if cur == ARGV[1] then
  return {'unchanged', cur}
end
redis.call('SET', KEYS[1], ARGV[1])
return {'updated', cur}
`)

// RedisConfig configures the Redis-backed index.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces index keys; defaults to "policylens:dedup:".
	KeyPrefix string
}

// RedisIndex persists the dedup index in Redis so correctness spans process
// restarts. Atomicity comes from running the check as one Lua script.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

// NewRedisIndex connects and verifies connectivity before returning.
func NewRedisIndex(cfg RedisConfig) (*RedisIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisIndex{client: client, prefix: prefix}, nil
}

func (r *RedisIndex) key(identity string) string {
	return r.prefix + identity
}

func (r *RedisIndex) Check(ctx context.Context, identity, hash string) (CheckResult, error) {
	res, err := checkScript.Run(ctx, r.client, []string{r.key(identity)}, hash).Result()
	if err != nil {
		return CheckResult{}, fmt.Errorf("dedup check for %s: %w", identity, err)
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return CheckResult{}, fmt.Errorf("unexpected dedup script response %T: %v", res, res)
	}
	status, _ := parts[0].(string)
	prior, _ := parts[1].(string)

	switch Status(status) {
	case StatusNew, StatusUnchanged, StatusUpdated:
		return CheckResult{Status: Status(status), PriorHash: prior}, nil
	default:
		return CheckResult{}, fmt.Errorf("unexpected dedup status %q", status)
	}
}

func (r *RedisIndex) Restore(ctx context.Context, identity, priorHash string) error {
	if priorHash == "" {
		return r.client.Del(ctx, r.key(identity)).Err()
	}
	return r.client.Set(ctx, r.key(identity), priorHash, 0).Err()
}

// Count reports how many identities the index currently tracks. SCAN keeps
// this safe against large keyspaces.
func (r *RedisIndex) Count(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 1000).Result()
		if err != nil {
			return 0, err
		}
		total += int64(len(keys))
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (r *RedisIndex) Close() error {
	return r.client.Close()
}
