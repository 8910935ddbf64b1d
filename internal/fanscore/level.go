package fanscore

const (
	MinLevel = 1
	MaxLevel = 10000

	levelUnit = 100
)

// LevelThreshold is the cumulative exp needed to reach level (0 for level 0).
func LevelThreshold(level int) int {
	total := 0
	for k := 1; k <= level; k++ {
		total += k * k * levelUnit
	}
	return total
}

// CalculateLevel converts cumulative exp into a level and the exp earned toward the next one.
// Reaching level L costs L²×100 on top of the previous threshold, so level 1 needs 100,
// level 2 needs 500 and level 3 needs 1400. Viewers below the first threshold are level 1.
func CalculateLevel(exp int) (level int, remainder int) {
	if exp < 0 {
		exp = 0
	}
	rem := exp
	for level < MaxLevel {
		cost := (level + 1) * (level + 1) * levelUnit
		if rem < cost {
			break
		}
		rem -= cost
		level++
	}
	if level < MinLevel {
		return MinLevel, exp
	}
	return level, rem
}
