package leveling

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// VoiceSessionState describes where a tracked session is in its lifecycle.
type VoiceSessionState int

const (
	// VoiceSessionNone means the member has no tracked session.
	VoiceSessionNone VoiceSessionState = iota
	// VoiceSessionActive means the session clock is running.
	VoiceSessionActive
	// VoiceSessionPaused means the member is still connected but the clock
	// is frozen (pause-on-mute policy).
	VoiceSessionPaused
	// VoiceSessionEnded means the session finished and awaits its final flush.
	VoiceSessionEnded
)

// PendingVoiceSession tracks one member's voice presence between flush
// cycles. Active time is measured as banked + the current running stretch,
// so pauses simply stop session time from advancing. Credited is the
// watermark of active time already persisted by earlier flush segments;
// everything between Credited and the current elapsed time is still owed.
type PendingVoiceSession struct {
	// StartedAt is the start of the current running stretch. Zero while
	// paused or after the session ends.
	StartedAt time.Time
	// Banked is active time accumulated before the current stretch.
	Banked time.Duration
	// Credited is the portion of active time already persisted.
	Credited time.Duration
	// LastFlushAt is when the entry was last visited by a flush cycle.
	LastFlushAt time.Time
	// Ended marks the session as awaiting its final flush.
	Ended bool
}

// Elapsed returns the total active session time as of now.
func (s *PendingVoiceSession) Elapsed(now time.Time) time.Duration {
	elapsed := s.Banked
	if !s.StartedAt.IsZero() {
		elapsed += now.Sub(s.StartedAt)
	}

	return elapsed
}

// State derives the lifecycle state from the entry's fields.
func (s *PendingVoiceSession) State() VoiceSessionState {
	switch {
	case s.Ended:
		return VoiceSessionEnded
	case !s.StartedAt.IsZero():
		return VoiceSessionActive
	default:
		return VoiceSessionPaused
	}
}

// VoiceSessionTracker maintains the per-member voice session state machine.
// Participant counting and the minimum-member threshold live in the event
// glue, which calls Join/Leave for every affected member; the tracker's job
// is to never double-start or double-count an interval.
type VoiceSessionTracker struct {
	mu          sync.Mutex
	sessions    map[MemberKey]*PendingVoiceSession
	pauseOnMute bool
	logger      *zap.Logger
}

// NewVoiceSessionTracker creates a tracker. When pauseOnMute is set, muted
// members stop accruing session time until they resume.
func NewVoiceSessionTracker(pauseOnMute bool, logger *zap.Logger) *VoiceSessionTracker {
	return &VoiceSessionTracker{
		sessions:    make(map[MemberKey]*PendingVoiceSession),
		pauseOnMute: pauseOnMute,
		logger:      logger.Named("voice"),
	}
}

// Join starts a session for the member. Idempotent: a member with a live
// session keeps it, so duplicate join events cannot double-start the clock.
func (t *VoiceSessionTracker) Join(key MemberKey, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.sessions[key]; ok && !existing.Ended {
		t.logger.Debug("Ignoring join for member with live session",
			zap.Stringer("member", key))
		return
	}

	// Rejoining before the previous session's final flush reuses the
	// entry: the owed time stays, and the clock resumes from the old
	// session's tier position rather than double-paying the early tiers.
	if existing, ok := t.sessions[key]; ok && existing.Ended {
		existing.Ended = false
		existing.StartedAt = now

		return
	}

	t.sessions[key] = &PendingVoiceSession{
		StartedAt:   now,
		LastFlushAt: now,
	}
}

// Leave ends the member's session. When the member was not in a channel
// that qualifies for XP, the entry is discarded without persisting.
func (t *VoiceSessionTracker) Leave(key MemberKey, wasInValidChannel bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.sessions[key]
	if !ok {
		return
	}

	if !wasInValidChannel {
		delete(t.sessions, key)
		return
	}

	if entry.Ended {
		return
	}

	if !entry.StartedAt.IsZero() {
		entry.Banked += now.Sub(entry.StartedAt)
		entry.StartedAt = time.Time{}
	}

	entry.Ended = true

	t.logger.Debug("Ended voice session",
		zap.Stringer("member", key),
		zap.Duration("sessionTime", entry.Banked))
}

// Pause freezes the session clock for a muted member. No-op unless the
// pause-on-mute policy is enabled and the member has a running session.
func (t *VoiceSessionTracker) Pause(key MemberKey, wasInValidChannel bool, now time.Time) {
	if !t.pauseOnMute {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.sessions[key]
	if !ok || entry.Ended || entry.StartedAt.IsZero() {
		return
	}

	if !wasInValidChannel {
		delete(t.sessions, key)
		return
	}

	entry.Banked += now.Sub(entry.StartedAt)
	entry.StartedAt = time.Time{}
}

// Resume restarts the clock for a paused member.
func (t *VoiceSessionTracker) Resume(key MemberKey, now time.Time) {
	if !t.pauseOnMute {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.sessions[key]
	if !ok || entry.Ended || !entry.StartedAt.IsZero() {
		return
	}

	entry.StartedAt = now
}

// State returns the member's current session state.
func (t *VoiceSessionTracker) State(key MemberKey) VoiceSessionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.sessions[key]
	if !ok {
		return VoiceSessionNone
	}

	return entry.State()
}

// snapshotKeys returns the tracked member keys so a flush can walk entries
// without holding the lock across store writes.
func (t *VoiceSessionTracker) snapshotKeys() []MemberKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]MemberKey, 0, len(t.sessions))
	for key := range t.sessions {
		keys = append(keys, key)
	}

	return keys
}

// beginFlush inspects one entry under the lock and returns the segment of
// active time owed as offsets from the session start, along with whether
// the entry has ended. The entry is not mutated; the flush confirms or
// abandons the segment after the store write.
func (t *VoiceSessionTracker) beginFlush(
	key MemberKey, now time.Time, maxSession time.Duration,
) (segStart, segEnd time.Duration, ended, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.sessions[key]
	if !exists {
		return 0, 0, false, false
	}

	elapsed := entry.Elapsed(now)

	// Garbage-collect entries that never accrued anything.
	if !entry.Ended && entry.StartedAt.IsZero() && entry.Banked == 0 {
		delete(t.sessions, key)
		return 0, 0, false, false
	}

	segStart = entry.Credited
	segEnd = min(elapsed, maxSession)

	return segStart, segEnd, entry.Ended, true
}

// completeFlush advances the member's credited watermark after a
// successful store write, removing ended entries. Failed writes skip this
// call so the owed segment is retried next cycle.
func (t *VoiceSessionTracker) completeFlush(key MemberKey, now time.Time, credited time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.sessions[key]
	if !ok {
		return
	}

	if entry.Ended {
		delete(t.sessions, key)
		return
	}

	entry.Credited = credited
	entry.LastFlushAt = now
}

// discardEnded removes an ended entry that has nothing left to persist.
func (t *VoiceSessionTracker) discardEnded(key MemberKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.sessions[key]; ok && entry.Ended {
		delete(t.sessions, key)
	}
}

// PendingCount returns the number of tracked voice entries.
func (t *VoiceSessionTracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.sessions)
}
