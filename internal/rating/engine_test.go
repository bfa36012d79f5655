package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWinProbability(t *testing.T) {
	// Equal ratings: coin flip.
	assert.InDelta(t, 0.5, winProbability(1500, 1500), 1e-9)

	// 400 points of advantage is ~10:1.
	assert.InDelta(t, 10.0/11.0, winProbability(1900, 1500), 1e-9)

	// Complementary.
	assert.InDelta(t, 1.0, winProbability(1600, 1400)+winProbability(1400, 1600), 1e-9)
}

func TestExpectedRank(t *testing.T) {
	// Alone in the field: always rank 1.
	assert.InDelta(t, 1.0, expectedRank(1500, nil), 1e-9)

	// Against two equals: 1 + 0.5 + 0.5 = 2.
	assert.InDelta(t, 2.0, expectedRank(1500, []float64{1500, 1500}), 1e-9)

	// A much stronger player expects a rank near 1.
	top := expectedRank(2800, []float64{1200, 1300, 1400})
	assert.Less(t, top, 1.1)
}

func TestTargetRatingInvertsExpectedRank(t *testing.T) {
	others := []float64{1200, 1500, 1800, 2100}
	for _, r := range []float64{1000, 1400, 1900} {
		want := expectedRank(r, others)
		got := targetRating(want, others)
		assert.InDelta(t, r, got, 1.0, "targetRating should invert expectedRank near %v", r)
	}
}

func TestDampingFactor(t *testing.T) {
	// A first-timer moves half the distance.
	assert.InDelta(t, 0.5, dampingFactor(0), 1e-9)

	// Damping decreases with experience.
	assert.Greater(t, dampingFactor(1), dampingFactor(3))

	// Floored at 2/9 for veterans.
	assert.InDelta(t, 2.0/9.0, dampingFactor(100), 1e-9)
	assert.InDelta(t, 2.0/9.0, dampingFactor(10), 1e-9)
}

func TestComputeIdempotent(t *testing.T) {
	players := []Player{
		{UserID: "a", Rating: 1500, Rank: 1, ContestsPlayed: 3},
		{UserID: "b", Rating: 1400, Rank: 2, ContestsPlayed: 0},
		{UserID: "c", Rating: 1700, Rank: 3, ContestsPlayed: 10},
	}

	first := Compute(players)
	second := Compute(players)
	require.Equal(t, first, second)
}

func TestComputeWinnerGainsLoserDrops(t *testing.T) {
	players := []Player{
		{UserID: "underdog", Rating: 1200, Rank: 1, ContestsPlayed: 0},
		{UserID: "favorite", Rating: 1800, Rank: 2, ContestsPlayed: 0},
	}

	updates := Compute(players)
	require.Len(t, updates, 2)

	assert.Positive(t, updates[0].Delta, "underdog beating the favorite should gain rating")
	assert.Negative(t, updates[1].Delta, "favorite losing to the underdog should drop rating")
	assert.Equal(t, updates[0].RatingBefore+updates[0].Delta, updates[0].RatingAfter)
	assert.Equal(t, updates[1].RatingBefore+updates[1].Delta, updates[1].RatingAfter)
}

func TestComputeSoloParticipant(t *testing.T) {
	updates := Compute([]Player{{UserID: "only", Rating: 1500, Rank: 1, ContestsPlayed: 2}})
	require.Len(t, updates, 1)
	assert.Equal(t, 1500, updates[0].RatingBefore)
}

func TestComputeTiedRanksSameInputsSameOutputs(t *testing.T) {
	players := []Player{
		{UserID: "a", Rating: 1500, Rank: 1, ContestsPlayed: 1},
		{UserID: "b", Rating: 1500, Rank: 1, ContestsPlayed: 1},
	}
	updates := Compute(players)
	require.Len(t, updates, 2)
	assert.Equal(t, updates[0].Delta, updates[1].Delta,
		"identical players with identical ranks should get identical deltas")
}

func TestTitleFor(t *testing.T) {
	tests := []struct {
		rating int
		title  string
	}{
		{2500, TitleLegendaryGrandmaster},
		{2400, TitleLegendaryGrandmaster},
		{2399, TitleGrandmaster},
		{2100, TitleGrandmaster},
		{1950, TitleMaster},
		{1600, TitleCandidateMaster},
		{1450, TitleExpert},
		{1200, TitleSpecialist},
		{1199, TitleNewbie},
		{0, TitleNewbie},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.title, TitleFor(tt.rating), "max_rating %d", tt.rating)
	}
}
