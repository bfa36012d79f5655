// Package rating implements the Elo-derived, damped rating update applied
// after every contest. The engine is pure: given the participants' prior
// ratings, assigned ranks, and contest history counts, it produces the new
// ratings deterministically.
package rating

import (
	"math"
)

const (
	searchLow        = 0
	searchHigh       = 4000
	searchIterations = 50
)

// Player is one contest participant as seen by the engine.
type Player struct {
	UserID         string
	Rating         int
	Rank           int
	ContestsPlayed int
}

// Update is the computed rating change for one player.
type Update struct {
	UserID       string
	RatingBefore int
	RatingAfter  int
	Delta        int
}

// winProbability is the Elo probability that a beats b.
func winProbability(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// expectedRank is 1 plus the expected number of opponents who beat a player
// rated r.
func expectedRank(r float64, others []float64) float64 {
	rank := 1.0
	for _, other := range others {
		rank += winProbability(other, r)
	}
	return rank
}

// targetRating binary-searches for the rating whose expected rank against
// the field equals targetRank.
func targetRating(targetRank float64, others []float64) float64 {
	lo, hi := float64(searchLow), float64(searchHigh)
	for i := 0; i < searchIterations; i++ {
		mid := (lo + hi) / 2
		if expectedRank(mid, others) < targetRank {
			// Expected rank shrinks as rating grows; too low a rank means
			// the candidate rating is too high.
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2
}

// dampingFactor shrinks updates for experienced players, floored at 2/9.
func dampingFactor(contestsPlayed int) float64 {
	f := 1.0 / (2.0 + 0.5*float64(contestsPlayed))
	if f < 2.0/9.0 {
		return 2.0 / 9.0
	}
	return f
}

// Compute returns the rating update for every player. The result is a pure
// function of the inputs: running it twice on the same slice yields
// identical updates.
func Compute(players []Player) []Update {
	updates := make([]Update, len(players))

	for i, p := range players {
		others := make([]float64, 0, len(players)-1)
		for j, other := range players {
			if j == i {
				continue
			}
			others = append(others, float64(other.Rating))
		}

		expected := expectedRank(float64(p.Rating), others)
		// Geometric mean of expected and actual rank seeds the target.
		meanRank := math.Sqrt(expected * float64(p.Rank))
		target := targetRating(meanRank, others)

		f := dampingFactor(p.ContestsPlayed)
		after := int(math.Round(float64(p.Rating) + f*(target-float64(p.Rating))))

		updates[i] = Update{
			UserID:       p.UserID,
			RatingBefore: p.Rating,
			RatingAfter:  after,
			Delta:        after - p.Rating,
		}
	}

	return updates
}
