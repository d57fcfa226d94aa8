package leveling

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/setup/config"
	"go.uber.org/zap"
)

// guardPruneAfter is how long a member may be silent before their spam and
// cooldown tracking state is dropped.
const guardPruneAfter = 10 * time.Minute

// LevelStore is the persistence surface the flush coordinator writes
// through. There is no transaction around the read-modify-write of total
// XP; per-key upserts are best effort.
type LevelStore interface {
	GetUserLevel(ctx context.Context, userID, guildID snowflake.ID) (*types.UserLevel, error)
	UpsertUserLevel(ctx context.Context, record *types.UserLevel) error
}

// FlushSummary reports what one flush cycle accomplished.
type FlushSummary struct {
	RunID          uuid.UUID
	MessageUpdates int
	VoiceUpdates   int
	// Requeued counts deltas whose store write failed and which were put
	// back for the next cycle instead of being discarded.
	Requeued int
	LevelUps []LevelUpEvent
}

// FlushCoordinator periodically drains the message aggregator and voice
// tracker into the store, detects level transitions and hands them to the
// dispatcher. Store writes are sequential; a delta that fails to persist is
// requeued rather than lost.
type FlushCoordinator struct {
	messages   *MessageXPAggregator
	voice      *VoiceSessionTracker
	configs    *GuildConfigCache
	guard      *SpamCooldownGuard
	store      LevelStore
	dispatcher *LevelUpDispatcher
	settings   config.Leveling
	logger     *zap.Logger
}

// NewFlushCoordinator wires a coordinator over the engine's components.
func NewFlushCoordinator(
	messages *MessageXPAggregator,
	voice *VoiceSessionTracker,
	configs *GuildConfigCache,
	guard *SpamCooldownGuard,
	store LevelStore,
	dispatcher *LevelUpDispatcher,
	settings config.Leveling,
	logger *zap.Logger,
) *FlushCoordinator {
	return &FlushCoordinator{
		messages:   messages,
		voice:      voice,
		configs:    configs,
		guard:      guard,
		store:      store,
		dispatcher: dispatcher,
		settings:   settings,
		logger:     logger.Named("flush"),
	}
}

// Run executes flush cycles on the configured interval until the context
// is cancelled, then runs one final cycle on a fresh deadline so pending
// aggregates are not abandoned at shutdown.
func (f *FlushCoordinator) Run(ctx context.Context) {
	interval := f.settings.BatchUpdateInterval()

	f.logger.Info("Flush coordinator started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Running final flush before shutdown")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), f.settings.FlushTimeout())
			f.runOnce(shutdownCtx)
			cancel()

			return
		case <-ticker.C:
			f.runOnce(ctx)
		}
	}
}

// runOnce performs a single cycle under the per-run deadline and
// dispatches any level-ups it produced.
func (f *FlushCoordinator) runOnce(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, f.settings.FlushTimeout())
	defer cancel()

	summary := f.Flush(flushCtx, time.Now())

	if summary.MessageUpdates > 0 || summary.VoiceUpdates > 0 || summary.Requeued > 0 {
		f.logger.Info("Flush cycle complete",
			zap.String("runID", summary.RunID.String()),
			zap.Int("messageUpdates", summary.MessageUpdates),
			zap.Int("voiceUpdates", summary.VoiceUpdates),
			zap.Int("requeued", summary.Requeued),
			zap.Int("levelUps", len(summary.LevelUps)))
	}

	f.dispatcher.Dispatch(flushCtx, summary.LevelUps)
}

// Flush drains both aggregators as of the given time. Safe to call with no
// pending activity: it returns an empty summary and touches the store not
// at all. Two consecutive flushes with no intervening activity apply
// nothing twice.
func (f *FlushCoordinator) Flush(ctx context.Context, now time.Time) *FlushSummary {
	summary := &FlushSummary{RunID: uuid.New()}

	f.drainMessages(ctx, summary)
	f.drainVoice(ctx, now, summary)

	f.guard.Prune(guardPruneAfter, now)

	return summary
}

// drainMessages persists every pending message delta. Failed writes are
// merged back into the pending map for the next cycle.
func (f *FlushCoordinator) drainMessages(ctx context.Context, summary *FlushSummary) {
	drained := f.messages.Drain()

	for key, delta := range drained {
		if ctx.Err() != nil {
			f.messages.Requeue(key, delta)
			summary.Requeued++

			continue
		}

		levelUp, err := f.applyXP(ctx, key, delta.XPToAdd, delta.LastMessageAt)
		if err != nil {
			f.logger.Warn("Failed to persist message XP, requeueing",
				zap.Stringer("member", key),
				zap.Int64("xp", delta.XPToAdd),
				zap.Error(err))
			f.messages.Requeue(key, delta)
			summary.Requeued++

			continue
		}

		summary.MessageUpdates++

		if levelUp != nil {
			summary.LevelUps = append(summary.LevelUps, *levelUp)
		}
	}
}

// drainVoice persists the owed segment of every tracked voice session.
// Ended sessions are removed once paid; active sessions advance their
// credited watermark and stay tracked. Tier offsets are session-relative,
// so a long session keeps decaying across flush segments.
func (f *FlushCoordinator) drainVoice(ctx context.Context, now time.Time, summary *FlushSummary) {
	maxSession := f.settings.MaxVoiceSession()

	for _, key := range f.voice.snapshotKeys() {
		if ctx.Err() != nil {
			summary.Requeued++
			continue
		}

		segStart, segEnd, ended, ok := f.voice.beginFlush(key, now, maxSession)
		if !ok {
			continue
		}

		if segEnd <= segStart {
			// Nothing new to pay. Ended sessions with everything
			// credited can be dropped.
			if ended {
				f.voice.discardEnded(key)
			}

			continue
		}

		cfg, err := f.configs.Get(ctx, key.GuildID, now)
		if err != nil {
			f.logger.Warn("Failed to load guild config for voice flush, retrying next cycle",
				zap.Stringer("member", key),
				zap.Error(err))

			summary.Requeued++

			continue
		}

		xp := VoiceXP(segStart, segEnd, cfg.XPPerVoiceMinute)
		if xp == 0 {
			// Segment too small to earn a whole point. Ended entries
			// are done; active ones keep accumulating until the
			// segment is worth something.
			if ended {
				f.voice.discardEnded(key)
			}

			continue
		}

		levelUp, err := f.applyXP(ctx, key, xp, time.Time{})
		if err != nil {
			f.logger.Warn("Failed to persist voice XP, retrying next cycle",
				zap.Stringer("member", key),
				zap.Int64("xp", xp),
				zap.Error(err))

			summary.Requeued++

			continue
		}

		f.voice.completeFlush(key, now, segEnd)

		summary.VoiceUpdates++

		if levelUp != nil {
			summary.LevelUps = append(summary.LevelUps, *levelUp)
		}
	}
}

// applyXP performs the read-modify-write for one member: load the current
// record, add the delta, recompute the level and upsert. Returns the
// level-up event when a boundary was crossed.
func (f *FlushCoordinator) applyXP(
	ctx context.Context, key MemberKey, deltaXP int64, lastMessageAt time.Time,
) (*LevelUpEvent, error) {
	record, err := f.store.GetUserLevel(ctx, key.UserID, key.GuildID)
	if err != nil {
		return nil, err
	}

	var oldXP int64
	if record != nil {
		oldXP = record.TotalXP

		if lastMessageAt.IsZero() {
			lastMessageAt = record.LastMessageAt
		}
	}

	newXP := oldXP + deltaXP

	updated := &types.UserLevel{
		UserID:        key.UserID,
		GuildID:       key.GuildID,
		TotalXP:       newXP,
		Level:         LevelForTotalXP(newXP),
		LastMessageAt: lastMessageAt,
	}

	if err := f.store.UpsertUserLevel(ctx, updated); err != nil {
		return nil, err
	}

	if newLevel, leveledUp := CheckLevelUp(oldXP, newXP); leveledUp {
		return &LevelUpEvent{
			UserID:   key.UserID,
			GuildID:  key.GuildID,
			NewLevel: newLevel,
		}, nil
	}

	return nil, nil //nolint:nilnil // no level-up is the common case
}
