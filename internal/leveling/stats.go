package leveling

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"github.com/ventryx/ventryx/internal/database/types"
	"go.uber.org/zap"
)

// StatsStore is the persistence surface for level/XP queries.
type StatsStore interface {
	GetUserLevel(ctx context.Context, userID, guildID snowflake.ID) (*types.UserLevel, error)
	GetLeaderboard(ctx context.Context, guildID snowflake.ID, limit int) ([]*types.UserLevel, error)
}

// UserStats is the progress view returned to reporting collaborators.
type UserStats struct {
	Level           int
	TotalXP         int64
	CurrentXP       int64
	RequiredXP      int64
	ProgressPercent float64
}

// StatsService answers level and leaderboard queries. Leaderboard pages
// are cached briefly in Redis since they are the most expensive read and
// tolerate staleness of a flush interval.
type StatsService struct {
	store  StatsStore
	cache  rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsService creates a stats service. The cache client may be nil, in
// which case every leaderboard query goes to the store.
func NewStatsService(
	store StatsStore, cache rueidis.Client, ttl time.Duration, logger *zap.Logger,
) *StatsService {
	return &StatsService{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("stats"),
	}
}

// GetUserStats returns a member's level progress. Members without a record
// are reported as level 1 with zero XP.
func (s *StatsService) GetUserStats(
	ctx context.Context, userID, guildID snowflake.ID,
) (*UserStats, error) {
	record, err := s.store.GetUserLevel(ctx, userID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}

	var totalXP int64
	if record != nil {
		totalXP = record.TotalXP
	}

	level := LevelForTotalXP(totalXP)
	currentXP := totalXP - TotalXPForLevel(level)
	requiredXP := XPForLevel(level + 1)

	progress := float64(currentXP) / float64(requiredXP) * 100
	if progress > 100 {
		progress = 100
	}

	return &UserStats{
		Level:           level,
		TotalXP:         totalXP,
		CurrentXP:       currentXP,
		RequiredXP:      requiredXP,
		ProgressPercent: progress,
	}, nil
}

// GetLeaderboard returns the guild's top members by total XP.
func (s *StatsService) GetLeaderboard(
	ctx context.Context, guildID snowflake.ID, limit int,
) ([]*types.UserLevel, error) {
	cacheKey := fmt.Sprintf("leaderboard:%d:%d", guildID, limit)

	if cached, ok := s.leaderboardFromCache(ctx, cacheKey); ok {
		return cached, nil
	}

	records, err := s.store.GetLeaderboard(ctx, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	s.storeLeaderboardInCache(ctx, cacheKey, records)

	return records, nil
}

func (s *StatsService) leaderboardFromCache(
	ctx context.Context, key string,
) ([]*types.UserLevel, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Do(ctx, s.cache.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			s.logger.Debug("Leaderboard cache read failed", zap.Error(err))
		}

		return nil, false
	}

	var records []*types.UserLevel
	if err := sonic.Unmarshal(data, &records); err != nil {
		s.logger.Debug("Failed to decode cached leaderboard", zap.Error(err))
		return nil, false
	}

	return records, true
}

func (s *StatsService) storeLeaderboardInCache(
	ctx context.Context, key string, records []*types.UserLevel,
) {
	if s.cache == nil {
		return
	}

	data, err := sonic.Marshal(records)
	if err != nil {
		s.logger.Debug("Failed to encode leaderboard for cache", zap.Error(err))
		return
	}

	err = s.cache.Do(ctx, s.cache.B().Set().
		Key(key).
		Value(rueidis.BinaryString(data)).
		Ex(s.ttl).
		Build()).
		Error()
	if err != nil {
		s.logger.Debug("Leaderboard cache write failed", zap.Error(err))
	}
}
