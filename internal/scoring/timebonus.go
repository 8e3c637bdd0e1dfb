package scoring

import "time"

type bonusStep struct {
	upTo  time.Duration
	bonus int
}

var timeBonusTable = []bonusStep{
	{60 * time.Second, 100},
	{120 * time.Second, 90},
	{180 * time.Second, 80},
	{300 * time.Second, 70},
}

const timeBonusFloor = 40

// TimeBonus maps elapsed round time onto the fixed step table.
func TimeBonus(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	for _, s := range timeBonusTable {
		if elapsed <= s.upTo {
			return s.bonus
		}
	}
	return timeBonusFloor
}
