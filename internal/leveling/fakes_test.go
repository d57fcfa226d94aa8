package leveling_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/leveling"
)

var errStoreDown = errors.New("store down")

// fakeConfigStore serves guild configs from memory, creating a stock config
// on first access the way the real model does.
type fakeConfigStore struct {
	mu      sync.Mutex
	configs map[snowflake.ID]*types.LevelConfig
	err     error
	calls   int
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{configs: make(map[snowflake.ID]*types.LevelConfig)}
}

func (s *fakeConfigStore) put(cfg *types.LevelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[cfg.GuildID] = cfg
}

func (s *fakeConfigStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func (s *fakeConfigStore) GetOrCreateConfig(
	_ context.Context, guildID snowflake.ID,
) (*types.LevelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	cfg, ok := s.configs[guildID]
	if !ok {
		cfg = &types.LevelConfig{
			GuildID:              guildID,
			Enabled:              true,
			XPPerMessage:         15,
			XPPerMessageVariance: 0,
			XPPerVoiceMinute:     5,
			MessageCooldownSecs:  60,
		}
		s.configs[guildID] = cfg
	}

	return cfg, nil
}

// fakeLevelStore keeps user level records in memory and can be switched
// into a failing mode to exercise requeue paths.
type fakeLevelStore struct {
	mu         sync.Mutex
	records    map[leveling.MemberKey]*types.UserLevel
	failWrites bool
	upserts    int
}

func newFakeLevelStore() *fakeLevelStore {
	return &fakeLevelStore{records: make(map[leveling.MemberKey]*types.UserLevel)}
}

func (s *fakeLevelStore) setFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failWrites = fail
}

func (s *fakeLevelStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upserts
}

func (s *fakeLevelStore) record(userID, guildID snowflake.ID) *types.UserLevel {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[leveling.NewMemberKey(guildID, userID)]
	if !ok {
		return nil
	}

	clone := *record

	return &clone
}

func (s *fakeLevelStore) GetUserLevel(
	_ context.Context, userID, guildID snowflake.ID,
) (*types.UserLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[leveling.NewMemberKey(guildID, userID)]
	if !ok {
		return nil, nil //nolint:nilnil // absent record, not an error
	}

	clone := *record

	return &clone, nil
}

func (s *fakeLevelStore) UpsertUserLevel(_ context.Context, record *types.UserLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return errStoreDown
	}

	clone := *record
	s.records[leveling.NewMemberKey(record.GuildID, record.UserID)] = &clone
	s.upserts++

	return nil
}

func (s *fakeLevelStore) GetLeaderboard(
	_ context.Context, guildID snowflake.ID, limit int,
) ([]*types.UserLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*types.UserLevel

	for _, record := range s.records {
		if record.GuildID == guildID {
			clone := *record
			records = append(records, &clone)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].TotalXP > records[j].TotalXP
	})

	if len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}
