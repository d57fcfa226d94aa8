package leveling

import (
	"sync"
	"time"
)

// SpamCooldownGuard gates message activity with two independent checks: a
// sliding-window spam limit and a per-user cooldown. Only accepted messages
// count toward either check, so a rejected burst cannot extend its own
// punishment.
type SpamCooldownGuard struct {
	mu           sync.Mutex
	window       time.Duration
	maxPerWindow int
	timestamps   map[MemberKey][]time.Time
	lastAccepted map[MemberKey]time.Time
}

// NewSpamCooldownGuard creates a guard with the given sliding window length
// and the number of accepted messages allowed inside it.
func NewSpamCooldownGuard(window time.Duration, maxPerWindow int) *SpamCooldownGuard {
	return &SpamCooldownGuard{
		window:       window,
		maxPerWindow: maxPerWindow,
		timestamps:   make(map[MemberKey][]time.Time),
		lastAccepted: make(map[MemberKey]time.Time),
	}
}

// Allow reports whether a message at the given time should earn XP. The
// spam window is evaluated first, then the per-guild cooldown; tracking
// state is only mutated when the message is accepted.
func (g *SpamCooldownGuard) Allow(key MemberKey, cooldown time.Duration, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Drop window entries that have aged out.
	cutoff := now.Add(-g.window)
	recent := g.timestamps[key][:0]

	for _, ts := range g.timestamps[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	g.timestamps[key] = recent

	if len(recent) >= g.maxPerWindow {
		return false
	}

	if last, ok := g.lastAccepted[key]; ok && now.Sub(last) < cooldown {
		return false
	}

	g.timestamps[key] = append(recent, now)
	g.lastAccepted[key] = now

	return true
}

// Prune drops tracking state for members with no accepted message within
// the given duration. Called from the flush cycle to keep the maps bounded.
func (g *SpamCooldownGuard) Prune(olderThan time.Duration, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-olderThan)

	for key, last := range g.lastAccepted {
		if last.Before(cutoff) {
			delete(g.lastAccepted, key)
			delete(g.timestamps, key)
		}
	}
}
