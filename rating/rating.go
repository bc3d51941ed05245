// Package rating computes Elo-style win probabilities and rating deltas.
// Pure functions, no dependencies.
package rating

import "math"

// K is the Elo K-factor applied to every settled match.
const K = 32

// WinProbability01 returns the probability in [0, 1] that a player rated
// `player` beats a player rated `opponent`.
func WinProbability01(player, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-player)/400))
}

// WinProbability returns the win probability as a 0-100 percentage,
// suitable for display.
func WinProbability(player, opponent int) float64 {
	return WinProbability01(player, opponent) * 100
}

// Delta returns the signed rating change for a player rated `player` against
// an opponent rated `opponent`, given whether the player won.
// The two deltas of a match are computed independently from each side's
// perspective; rounding means they need not sum to zero.
func Delta(player, opponent int, won bool) int {
	expected := WinProbability01(player, opponent)
	score := 0.0
	if won {
		score = 1.0
	}
	return int(math.Round(K * (score - expected)))
}

// Apply adds delta to a rating, flooring the result at floor so ratings
// cannot decline without bound. The floor comes from configuration
// (MIN_RATING).
func Apply(current, delta, floor int) int {
	next := current + delta
	if next < floor {
		return floor
	}
	return next
}
