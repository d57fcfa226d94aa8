package leveling

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// PendingMessageXP accumulates message activity for one member between
// flush cycles. Entries live only in process memory until flushed.
type PendingMessageXP struct {
	XPToAdd       int64
	MessageCount  int
	LastMessageAt time.Time
}

// MessageXPAggregator converts accepted message events into pending XP
// deltas keyed by member. Ingestion is cheap: a config lookup, the guard,
// and a map update.
type MessageXPAggregator struct {
	mu      sync.Mutex
	pending map[MemberKey]*PendingMessageXP
	guard   *SpamCooldownGuard
	configs *GuildConfigCache
	logger  *zap.Logger
}

// NewMessageXPAggregator creates an aggregator using the given guard and
// config cache.
func NewMessageXPAggregator(
	guard *SpamCooldownGuard, configs *GuildConfigCache, logger *zap.Logger,
) *MessageXPAggregator {
	return &MessageXPAggregator{
		pending: make(map[MemberKey]*PendingMessageXP),
		guard:   guard,
		configs: configs,
		logger:  logger.Named("message_xp"),
	}
}

// OnMessage records message activity for a member. Returns false without
// side effects when leveling is disabled for the guild or the guard rejects
// the message. A config read failure is returned to the caller; nothing is
// recorded in that case.
func (a *MessageXPAggregator) OnMessage(
	ctx context.Context, userID, guildID snowflake.ID, now time.Time,
) (bool, error) {
	cfg, err := a.configs.Get(ctx, guildID, now)
	if err != nil {
		return false, err
	}

	if !cfg.Enabled {
		return false, nil
	}

	key := NewMemberKey(guildID, userID)
	if !a.guard.Allow(key, cfg.MessageCooldown(), now) {
		return false, nil
	}

	xp := int64(RandomMessageXP(cfg.XPPerMessage, cfg.XPPerMessageVariance))

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.pending[key]
	if !ok {
		entry = &PendingMessageXP{}
		a.pending[key] = entry
	}

	entry.XPToAdd += xp
	entry.MessageCount++
	entry.LastMessageAt = now

	return true, nil
}

// Drain atomically takes ownership of all pending entries, leaving a fresh
// map behind. Activity arriving mid-flush lands in the new map and is
// picked up by the next cycle.
func (a *MessageXPAggregator) Drain() map[MemberKey]*PendingMessageXP {
	a.mu.Lock()
	defer a.mu.Unlock()

	drained := a.pending
	a.pending = make(map[MemberKey]*PendingMessageXP)

	return drained
}

// Requeue merges a delta back into the pending map after a failed flush
// write so it is retried next cycle instead of being lost.
func (a *MessageXPAggregator) Requeue(key MemberKey, delta *PendingMessageXP) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.pending[key]
	if !ok {
		a.pending[key] = delta
		return
	}

	entry.XPToAdd += delta.XPToAdd
	entry.MessageCount += delta.MessageCount

	if delta.LastMessageAt.After(entry.LastMessageAt) {
		entry.LastMessageAt = delta.LastMessageAt
	}
}

// PendingCount returns the number of members with unflushed message XP.
func (a *MessageXPAggregator) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}
