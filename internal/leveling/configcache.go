package leveling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/ventryx/ventryx/internal/database/types"
)

// ConfigStore is the persistence surface the config cache reads through.
type ConfigStore interface {
	GetOrCreateConfig(ctx context.Context, guildID snowflake.ID) (*types.LevelConfig, error)
}

type configCacheEntry struct {
	config    *types.LevelConfig
	fetchedAt time.Time
}

// GuildConfigCache serves per-guild leveling settings with a time-boxed
// cache in front of the store. External writes to the config table are not
// observed until the TTL expires; that staleness window is accepted.
// Concurrent refills of the same guild race last-write-wins, which at worst
// duplicates a default-row insert handled by the store's conflict clause.
type GuildConfigCache struct {
	store   ConfigStore
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[snowflake.ID]configCacheEntry
}

// NewGuildConfigCache creates a cache over the given store with the given TTL.
func NewGuildConfigCache(store ConfigStore, ttl time.Duration) *GuildConfigCache {
	return &GuildConfigCache{
		store:   store,
		ttl:     ttl,
		entries: make(map[snowflake.ID]configCacheEntry),
	}
}

// Get returns the guild's settings, refreshing from the store when the
// cached copy is older than the TTL.
func (c *GuildConfigCache) Get(
	ctx context.Context, guildID snowflake.ID, now time.Time,
) (*types.LevelConfig, error) {
	c.mu.RLock()
	entry, ok := c.entries[guildID]
	c.mu.RUnlock()

	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.config, nil
	}

	cfg, err := c.store.GetOrCreateConfig(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh guild config: %w", err)
	}

	c.mu.Lock()
	c.entries[guildID] = configCacheEntry{config: cfg, fetchedAt: now}
	c.mu.Unlock()

	return cfg, nil
}

// Invalidate drops the cached entry for a guild. Used after local
// administrative updates so they take effect immediately.
func (c *GuildConfigCache) Invalidate(guildID snowflake.ID) {
	c.mu.Lock()
	delete(c.entries, guildID)
	c.mu.Unlock()
}
