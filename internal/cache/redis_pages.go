// Package cache provides a Redis-backed cache for catalog pages.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog/api/internal/collection"
	"catalog/api/internal/loader"
)

// RedisPages stores serialized pages keyed by the normalized query.
type RedisPages struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPages creates a cache and verifies the connection.
func NewRedisPages(redisURL string, ttl time.Duration) (*RedisPages, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisPagesWithClient(client, ttl), nil
}

// NewRedisPagesWithClient wraps an existing client.
func NewRedisPagesWithClient(client *redis.Client, ttl time.Duration) *RedisPages {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisPages{
		client: client,
		prefix: "page:",
		ttl:    ttl,
	}
}

// Key normalizes a query so equal windows share an entry.
func (c *RedisPages) Key(resource string, q loader.Query) string {
	var b strings.Builder
	b.WriteString(c.prefix)
	b.WriteString(resource)
	b.WriteString(":")
	b.WriteString(q.SortField)
	b.WriteString(":")
	b.WriteString(q.SortDirection.String())
	b.WriteString(":")
	b.WriteString(strconv.Itoa(q.Offset))
	b.WriteString(":")
	b.WriteString(strconv.Itoa(q.Limit))

	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(":")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(q.Filter[k])
	}
	return b.String()
}

// Get returns the cached page; ok is false on a miss.
func (c *RedisPages) Get(ctx context.Context, key string) ([]collection.Item, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup page: %w", err)
	}

	var items []collection.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("unmarshal page: %w", err)
	}
	return items, true, nil
}

func (c *RedisPages) Set(ctx context.Context, key string, items []collection.Item) error {
	if items == nil {
		items = []collection.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save page: %w", err)
	}
	return nil
}

// Purge drops every cached page for resource.
func (c *RedisPages) Purge(ctx context.Context, resource string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+resource+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan pages: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("purge pages: %w", err)
	}
	return nil
}

func (c *RedisPages) Close() error {
	return c.client.Close()
}

func (c *RedisPages) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
