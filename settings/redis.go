package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps settings in a Redis hash. Hosts that run plugin containers
// on more than one machine use it to share plugin enablement centrally; the
// hash field names are the setting keys.
//
// Reads and writes go straight to Redis; Save is a no-op kept for Store
// symmetry.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
	key    string
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379/0").
	URL string

	// Namespace becomes the Redis hash key; defaults to "extensionsystem:settings".
	Namespace string
}

// NewRedisStore connects to Redis and returns a store over a single hash.
// The context bounds every subsequent operation of the store.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("settings: parse redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("settings: connect to redis: %w", err)
	}

	key := opts.Namespace
	if key == "" {
		key = "extensionsystem:settings"
	}

	return &RedisStore{client: client, ctx: ctx, key: key}, nil
}

// Value returns the string stored under key.
func (s *RedisStore) Value(key string) (string, bool) {
	v, err := s.client.HGet(s.ctx, s.key, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

// SetValue stores a string under key.
func (s *RedisStore) SetValue(key, value string) {
	s.client.HSet(s.ctx, s.key, key, value)
}

// StringList returns the list stored under key. Lists are JSON-encoded in the
// hash field.
func (s *RedisStore) StringList(key string) []string {
	v, err := s.client.HGet(s.ctx, s.key, "list:"+key).Result()
	if err != nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		return nil
	}
	return list
}

// SetStringList stores a list under key.
func (s *RedisStore) SetStringList(key string, values []string) {
	data, err := json.Marshal(values)
	if err != nil {
		return
	}
	s.client.HSet(s.ctx, s.key, "list:"+key, string(data))
}

// Remove deletes key from both value and list namespaces.
func (s *RedisStore) Remove(key string) {
	s.client.HDel(s.ctx, s.key, key, "list:"+key)
}

// Save is a no-op; RedisStore writes through on every mutation.
func (s *RedisStore) Save() error {
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return errors.New("settings: redis store not connected")
	}
	return s.client.Close()
}
