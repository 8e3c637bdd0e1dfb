package rating

import "math"

const (
	KFactor       = 32
	ForfeitPoints = 25
	DefaultRating = 1000
)

// Result is a player's outcome for one duel.
type Result string

const (
	Win  Result = "WIN"
	Loss Result = "LOSS"
	Draw Result = "DRAW"
)

// Expected returns the logistic win expectation of a player rated r against opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

// Delta returns the points the winner gains (and the loser gives up).
func Delta(winnerRating, loserRating int) int {
	return int(math.Round(KFactor * (1 - Expected(winnerRating, loserRating))))
}

// Settle decides results and rating deltas for players A and B from their final totals.
func Settle(ratingA, ratingB, totalA, totalB int) (results [2]Result, deltas [2]int) {
	switch {
	case totalA > totalB:
		d := Delta(ratingA, ratingB)
		return [2]Result{Win, Loss}, [2]int{d, -d}
	case totalB > totalA:
		d := Delta(ratingB, ratingA)
		return [2]Result{Loss, Win}, [2]int{-d, d}
	default:
		return [2]Result{Draw, Draw}, [2]int{0, 0}
	}
}

// ForfeitSettle ignores ratings and scores: the forfeiting side always pays the fixed penalty.
func ForfeitSettle(forfeiter int) (results [2]Result, deltas [2]int) {
	if forfeiter == 0 {
		return [2]Result{Loss, Win}, [2]int{-ForfeitPoints, ForfeitPoints}
	}
	return [2]Result{Win, Loss}, [2]int{ForfeitPoints, -ForfeitPoints}
}
