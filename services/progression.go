package services

import (
	"math"
)

// LevelConfig: XP needed for *next* level (e.g., level 1 → 2 needs BaseXPPerLevel * 1^1.2)
const BaseXPPerLevel = 100

// XPForNextLevel returns XP required to reach level+1 from current level
// e.g., XPForNextLevel(1) = XP to go from L1 → L2
func XPForNextLevel(currentLevel int) int64 {
	if currentLevel < 1 {
		currentLevel = 1
	}
	// L_n = floor(BaseXPPerLevel * n^1.2)
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(currentLevel), 1.2))
}

// LevelForXP returns the level reached with totalXP accumulated from level 1.
func LevelForXP(totalXP int64) int {
	level := 1
	var spent int64
	for {
		next := XPForNextLevel(level)
		if totalXP < spent+next {
			return level
		}
		spent += next
		level++
	}
}

// RankThresholds: levels required before rank-up
// e.g., Bronze→Silver at level 10, Silver→Gold at level 25, etc.
var RankThresholds = map[int]int{ // rank → min level
	1: 1,   // Bronze (start)
	2: 10,  // Silver
	3: 25,  // Gold
	4: 50,  // Platinum
	5: 100, // Diamond
}

func determineRank(level int) int {
	for rank := 5; rank >= 1; rank-- {
		if level >= RankThresholds[rank] {
			return rank
		}
	}
	return 1
}

func RankName(rank int) string {
	switch rank {
	case 1:
		return "Bronze"
	case 2:
		return "Silver"
	case 3:
		return "Gold"
	case 4:
		return "Platinum"
	case 5:
		return "Diamond"
	default:
		if rank > 5 {
			return "Legend"
		}
		return "Bronze"
	}
}
