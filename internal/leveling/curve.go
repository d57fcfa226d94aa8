package leveling

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BaseLevelXP is the XP requirement for reaching level 2. Level 1 is free.
const BaseLevelXP = 250

// Voice XP accrues at full rate for the first half hour of a session and
// decays in steps afterwards. Tiers are measured from the start of the
// session, not from the start of a flush segment.
var voiceTiers = []struct {
	upTo       float64 // exclusive upper bound in minutes, +Inf for the last tier
	multiplier float64
}{
	{30, 1.0},
	{60, 0.8},
	{120, 0.6},
	{180, 0.4},
	{math.Inf(1), 0.2},
}

// curveCache memoizes per-level requirements and cumulative totals. The
// requirement for level n is derived incrementally from level n-1, so the
// cache always holds a contiguous prefix.
var curveCache = struct {
	mu         sync.Mutex
	perLevel   []int64 // perLevel[i] = XP required to go from level i+1 to i+2
	cumulative []int64 // cumulative[i] = total XP required to reach level i+2
}{}

// growthMultiplier returns the factor by which the per-level requirement
// grows when advancing to the given level. The factor shrinks at level
// thresholds to keep grind time bounded at high levels.
func growthMultiplier(level int) float64 {
	switch {
	case level <= 10:
		return 1.5
	case level <= 25:
		return 1.4
	case level <= 50:
		return 1.3
	default:
		return 1.15
	}
}

// extendCurveLocked grows the memoized curve until it covers the given level.
// Callers must hold curveCache.mu.
func extendCurveLocked(level int) {
	if len(curveCache.perLevel) == 0 {
		curveCache.perLevel = append(curveCache.perLevel, BaseLevelXP)
		curveCache.cumulative = append(curveCache.cumulative, BaseLevelXP)
	}

	for next := len(curveCache.perLevel) + 2; next <= level; next++ {
		prev := curveCache.perLevel[len(curveCache.perLevel)-1]
		req := int64(math.Floor(float64(prev) * growthMultiplier(next)))
		curveCache.perLevel = append(curveCache.perLevel, req)
		curveCache.cumulative = append(curveCache.cumulative, curveCache.cumulative[len(curveCache.cumulative)-1]+req)
	}
}

// XPForLevel returns the XP required to advance from the previous level to
// the given level. Levels at or below 1 require nothing.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}

	curveCache.mu.Lock()
	defer curveCache.mu.Unlock()

	extendCurveLocked(level)

	return curveCache.perLevel[level-2]
}

// TotalXPForLevel returns the cumulative XP required to reach the given level
// from zero.
func TotalXPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}

	curveCache.mu.Lock()
	defer curveCache.mu.Unlock()

	extendCurveLocked(level)

	return curveCache.cumulative[level-2]
}

// LevelForTotalXP returns the highest level whose cumulative requirement is
// covered by the given total XP. The walk is bounded because every level
// costs at least BaseLevelXP.
func LevelForTotalXP(totalXP int64) int {
	level := 1
	for TotalXPForLevel(level+1) <= totalXP {
		level++
	}

	return level
}

// CheckLevelUp reports whether moving from oldXP to newXP crosses a level
// boundary, returning the new level when it does.
func CheckLevelUp(oldXP, newXP int64) (int, bool) {
	oldLevel := LevelForTotalXP(oldXP)
	newLevel := LevelForTotalXP(newXP)

	if newLevel > oldLevel {
		return newLevel, true
	}

	return 0, false
}

// RandomMessageXP returns a uniformly distributed XP amount in
// [base-variance, base+variance] inclusive.
func RandomMessageXP(base, variance int) int {
	if variance <= 0 {
		return base
	}

	return base - variance + rand.Intn(2*variance+1)
}

// VoiceXP computes the XP earned for a segment of a voice session. The
// segment is described by its start and end offsets from the beginning of
// the session so tier multipliers always follow session time, even when a
// long session is persisted across multiple flush segments. Minutes that
// cross a tier boundary contribute proportionally to each side, and the
// result is floored once at the end to avoid compounding rounding loss.
func VoiceXP(segmentStart, segmentEnd time.Duration, xpPerMinute int) int64 {
	if segmentEnd <= segmentStart || xpPerMinute <= 0 {
		return 0
	}

	startMin := segmentStart.Minutes()
	endMin := segmentEnd.Minutes()

	var xp float64

	tierStart := 0.0
	for _, tier := range voiceTiers {
		lo := math.Max(startMin, tierStart)
		hi := math.Min(endMin, tier.upTo)

		if hi > lo {
			xp += (hi - lo) * float64(xpPerMinute) * tier.multiplier
		}

		tierStart = tier.upTo
		if tierStart >= endMin {
			break
		}
	}

	return int64(math.Floor(xp))
}
