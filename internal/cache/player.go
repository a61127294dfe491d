// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// player.go provides a Valkey-backed cache of rendered player pages.
// A player page only depends on the slug and the site settings, so it is
// stored per slug and dropped when the video or the site settings change.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// playerKeyPrefix is the Valkey key prefix for cached player pages.
	playerKeyPrefix = "player:"

	// DefaultPlayerTTL is how long a rendered player page stays cached.
	DefaultPlayerTTL = 10 * time.Minute
)

// PlayerCache manages player page caching in Valkey. Errors are logged and
// treated as misses; the cache never fails a request.
type PlayerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlayerCache creates a new player cache backed by the given Valkey client.
func NewPlayerCache(client *redis.Client, ttl time.Duration) *PlayerCache {
	if ttl == 0 {
		ttl = DefaultPlayerTTL
	}
	return &PlayerCache{client: client, ttl: ttl}
}

// Get returns the cached page for slug.
func (pc *PlayerCache) Get(ctx context.Context, slug string) ([]byte, bool) {
	val, err := pc.client.Get(ctx, playerKeyPrefix+slug).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("player cache get error", "slug", slug, "error", err)
		return nil, false
	}
	slog.Debug("player cache hit", "slug", slug)
	return val, true
}

// Set stores the rendered page for slug with the configured TTL.
func (pc *PlayerCache) Set(ctx context.Context, slug string, html []byte) {
	if err := pc.client.Set(ctx, playerKeyPrefix+slug, html, pc.ttl).Err(); err != nil {
		slog.Warn("player cache set error", "slug", slug, "error", err)
	}
}

// Invalidate removes the cached pages for the given slugs.
func (pc *PlayerCache) Invalidate(ctx context.Context, slugs ...string) {
	if len(slugs) == 0 {
		return
	}
	keys := make([]string, len(slugs))
	for i, s := range slugs {
		keys[i] = playerKeyPrefix + s
	}
	if err := pc.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("player cache invalidate error", "slugs", slugs, "error", err)
	}
}

// InvalidateAll removes every cached player page by scanning for the prefix.
// Used when the site settings change, since every page shows them.
func (pc *PlayerCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := pc.client.Scan(ctx, cursor, playerKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("player cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := pc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("player cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("player cache cleared", "deleted", deleted)
	}
}
