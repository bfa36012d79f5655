package worker

import (
	"exam-prep-platform/internal/contest"
)

// batchTotals accumulates per-batch leaderboard inputs as attempts are
// evaluated. It is the pure core of the aggregator, kept free of SQL so the
// leaderboard invariants are unit-testable.
type batchTotals struct {
	Score     int
	Attempted int
	Correct   int
	Incorrect int
	TotalTime int
}

func (t *batchTotals) add(res contest.Result, timeTaken int) {
	t.Score += res.Marks
	t.Attempted++
	if res.IsCorrect {
		t.Correct++
	} else {
		t.Incorrect++
	}
	t.TotalTime += timeTaken
}

// leaderboardRow materializes the aggregate into the single (user, contest)
// row. Rank stays 0; the grading worker owns it. Rating fields start at the
// user's current rating with a zero delta.
func (t *batchTotals) leaderboardRow(userID, contestID string, totalQuestions, ratingBefore int) *contest.LeaderboardRow {
	unattempted := totalQuestions - t.Attempted
	if unattempted < 0 {
		unattempted = 0
	}

	accuracy := 0.0
	if t.Attempted > 0 {
		accuracy = float64(t.Correct) / float64(t.Attempted) * 100
	}

	return &contest.LeaderboardRow{
		UserID:         userID,
		ContestID:      contestID,
		Score:          t.Score,
		TotalQuestions: totalQuestions,
		Attempted:      t.Attempted,
		Unattempted:    unattempted,
		Correct:        t.Correct,
		Incorrect:      t.Incorrect,
		TotalTime:      t.TotalTime,
		Accuracy:       accuracy,
		RatingBefore:   ratingBefore,
		RatingAfter:    ratingBefore,
		RatingDelta:    0,
		Rank:           0,
		Missed:         false,
	}
}
