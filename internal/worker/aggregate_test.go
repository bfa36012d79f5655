package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-prep-platform/internal/contest"
)

func TestBatchTotalsInvariants(t *testing.T) {
	var totals batchTotals
	totals.add(contest.Result{IsCorrect: true, Marks: 4}, 10)
	totals.add(contest.Result{IsCorrect: true, Marks: 4}, 20)
	totals.add(contest.Result{IsCorrect: false, Marks: -1}, 5)

	row := totals.leaderboardRow("user-1", "contest-1", 5, 1200)

	assert.Equal(t, 7, row.Score)
	assert.Equal(t, 3, row.Attempted)
	assert.Equal(t, 2, row.Correct)
	assert.Equal(t, 1, row.Incorrect)
	assert.Equal(t, row.Attempted, row.Correct+row.Incorrect)
	assert.Equal(t, 2, row.Unattempted)
	assert.Equal(t, row.TotalQuestions-row.Attempted, row.Unattempted)
	assert.Equal(t, 35, row.TotalTime)
	assert.InDelta(t, 2.0/3.0*100, row.Accuracy, 1e-9)
}

func TestBatchTotalsPerfectScore(t *testing.T) {
	var totals batchTotals
	totals.add(contest.Result{IsCorrect: true, Marks: 4}, 10)
	totals.add(contest.Result{IsCorrect: true, Marks: 4}, 20)

	row := totals.leaderboardRow("u", "c", 2, 1500)

	assert.Equal(t, 8, row.Score)
	assert.Equal(t, 0, row.Unattempted)
	assert.InDelta(t, 100.0, row.Accuracy, 1e-9)
	assert.Equal(t, 30, row.TotalTime)
	assert.Equal(t, 0, row.Rank, "rank belongs to the grading worker")
	assert.Equal(t, 1500, row.RatingBefore)
	assert.Equal(t, 1500, row.RatingAfter)
	assert.Equal(t, 0, row.RatingDelta)
}

func TestBatchTotalsEmpty(t *testing.T) {
	var totals batchTotals
	row := totals.leaderboardRow("u", "c", 10, 1200)

	assert.Equal(t, 0, row.Attempted)
	assert.Equal(t, 10, row.Unattempted)
	assert.Zero(t, row.Accuracy, "accuracy is 0 when nothing was attempted")
}

func TestBatchTotalsUnattemptedNeverNegative(t *testing.T) {
	var totals batchTotals
	for i := 0; i < 4; i++ {
		totals.add(contest.Result{IsCorrect: true, Marks: 1}, 1)
	}

	// More attempts than linked questions can happen when a client submits
	// ids outside the contest; the invariant 0 <= unattempted still holds.
	row := totals.leaderboardRow("u", "c", 2, 1200)
	require.GreaterOrEqual(t, row.Unattempted, 0)
}

func TestBatchTotalsNegativeMarking(t *testing.T) {
	var totals batchTotals
	totals.add(contest.Result{IsCorrect: false, Marks: -2}, 5)
	totals.add(contest.Result{IsCorrect: false, Marks: -1}, 5)

	row := totals.leaderboardRow("u", "c", 4, 1200)
	assert.Equal(t, -3, row.Score)
	assert.Equal(t, 2, row.Incorrect)
	assert.Zero(t, row.Accuracy)
}
