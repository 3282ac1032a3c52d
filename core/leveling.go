package core

import "math"

// LevelCurve maps accumulated XP to a level using a geometric cost
// progression: reaching level L+1 from level L costs
// floor(BaseXP * GrowthFactor^(L-1)) XP. The curve is injectable so
// alternative progressions can be tested; DefaultCurve matches production.
type LevelCurve struct {
	BaseXP       int64   `json:"base_xp"`
	GrowthFactor float64 `json:"growth_factor"`
}

// DefaultCurve returns the production leveling parameters.
func DefaultCurve() LevelCurve {
	return LevelCurve{BaseXP: 100, GrowthFactor: 1.4}
}

// XPForLevel returns the XP cost of advancing from level to level+1.
// Levels below 1 cost nothing.
func (c LevelCurve) XPForLevel(level int64) int64 {
	if level < 1 {
		return 0
	}
	return int64(math.Floor(float64(c.BaseXP) * math.Pow(c.GrowthFactor, float64(level-1))))
}

// TotalXPForLevel returns the total XP needed to reach level from zero.
// TotalXPForLevel(1) == 0.
func (c LevelCurve) TotalXPForLevel(level int64) int64 {
	var total int64
	for l := int64(1); l < level; l++ {
		total += c.XPForLevel(l)
	}
	return total
}

// LevelForXP returns the largest level whose total cost does not exceed xp.
// Negative XP clamps to level 1. Pure and side-effect-free; called after
// every XP mutation to keep User.Level consistent with User.XP.
func (c LevelCurve) LevelForXP(xp int64) int64 {
	if xp < 0 {
		return 1
	}
	level := int64(1)
	total := int64(0)
	for {
		next := total + c.XPForLevel(level)
		if xp < next {
			return level
		}
		level++
		total = next
	}
}
