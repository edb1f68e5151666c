// Package progression holds the pure leveling and streak computations.
// Nothing in this package performs I/O; all state lives in the caller.
package progression

import "math"

// DefaultStreakBonusPerDay is the canonical EXP bonus per consecutive
// reading day applied on top of page EXP.
const DefaultStreakBonusPerDay = 10

// levelTable fixes the EXP thresholds for levels 1-5. Levels beyond 5
// grow by a factor of 1.5 per level, rounded.
var levelTable = [...]int{0, 100, 250, 500, 1000}

// ExpForLevel returns the cumulative EXP required to reach a level.
// The result is a strictly increasing step function of level.
func ExpForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	if level <= len(levelTable) {
		return levelTable[level-1]
	}
	exp := levelTable[len(levelTable)-1]
	for l := len(levelTable) + 1; l <= level; l++ {
		exp = int(math.Round(float64(exp) * 1.5))
	}
	return exp
}

// LevelFromExp returns the largest level whose threshold does not exceed exp
func LevelFromExp(exp int) int {
	if exp < 0 {
		return 1
	}
	level := 1
	for ExpForLevel(level+1) <= exp {
		level++
	}
	return level
}

// ExpToNextLevel returns the EXP still missing to reach the next level
func ExpToNextLevel(exp, level int) int {
	remaining := ExpForLevel(level+1) - exp
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LevelProgressPercent returns how far into the current level bracket exp
// sits, clamped to [0, 100]. A zero-width bracket counts as complete.
func LevelProgressPercent(exp, level int) int {
	floor := ExpForLevel(level)
	ceil := ExpForLevel(level + 1)
	if ceil <= floor {
		return 100
	}
	percent := int(math.Round(float64(exp-floor) / float64(ceil-floor) * 100))
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// ExpFromPages converts a reading session into EXP: one point per page plus
// a streak bonus of bonusPerDay per consecutive reading day.
func ExpFromPages(pagesRead, streakDays, bonusPerDay int) int {
	if pagesRead < 0 {
		pagesRead = 0
	}
	exp := pagesRead
	if streakDays > 0 && bonusPerDay > 0 {
		exp += streakDays * bonusPerDay
	}
	return exp
}
