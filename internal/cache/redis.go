package cache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"marketglass/internal/domain"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "marketglass:doc:"

// SnapshotStore is the optional shared cache tier behind the in-memory
// store. Get returns (nil, nil) on a miss.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (*domain.Document, error)
	Set(ctx context.Context, key string, doc *domain.Document, ttl time.Duration) error
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
	parseRedisURL = redis.ParseURL
)

// RedisSnapshots stores serialized documents in Redis with the cache TTL as
// expiry, so staleness is enforced by the server and a cold process can
// skip its first scrape cycle.
type RedisSnapshots struct {
	client redisClient
}

// NewRedisSnapshots connects to Redis at addr, which may be a plain
// host:port or a redis:// URL.
func NewRedisSnapshots(ctx context.Context, addr string) (*RedisSnapshots, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := parseRedisURL(addr)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		return nil, err
	}
	log.Println("Connected to Redis")
	return &RedisSnapshots{client: client}, nil
}

func (r *RedisSnapshots) Get(ctx context.Context, key string) (*domain.Document, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *RedisSnapshots) Set(ctx context.Context, key string, doc *domain.Document, ttl time.Duration) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, snapshotKeyPrefix+key, data, ttl).Err()
}
