package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"exam-prep-platform/internal/rating"
	"exam-prep-platform/pkg/database"
)

// ErrContestNotFound is returned when a contest id resolves to no row.
var ErrContestNotFound = errors.New("contest not found")

// Repo is the SQL repository for contests, questions, attempts, and
// leaderboard rows.
type Repo struct {
	db *database.DB
}

// NewRepo creates a contest repository over the shared pool.
func NewRepo(db *database.DB) *Repo {
	return &Repo{db: db}
}

// Begin starts a transaction for batch processing.
func (r *Repo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Pool.Begin(ctx)
}

// CreateQuestion inserts one question. The id is assigned when empty.
func (r *Repo) CreateQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO questions (id, type, marks, integer_answer, mcq_options, mcq_correct_option, scq_options, scq_correct_option)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, q.ID, q.Type, q.Marks, q.IntegerAnswer, q.MCQOptions, intsToInt32(q.MCQCorrectOption), q.SCQOptions, intPtrToInt32(q.SCQCorrectOption))
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

// GetQuestionsByIDs bulk-loads questions and keys them by id. Missing ids are
// simply absent from the result; callers decide how to treat them.
func (r *Repo) GetQuestionsByIDs(ctx context.Context, ids []string) (map[string]*Question, error) {
	if len(ids) == 0 {
		return map[string]*Question{}, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, type, marks, integer_answer, mcq_options, mcq_correct_option, scq_options, scq_correct_option, created_at
		FROM questions
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	defer rows.Close()

	questions := make(map[string]*Question, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions[q.ID] = q
	}
	return questions, rows.Err()
}

// GetContestQuestions loads the full question rows linked to a contest.
func (r *Repo) GetContestQuestions(ctx context.Context, contestID string) ([]*Question, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT q.id, q.type, q.marks, q.integer_answer, q.mcq_options, q.mcq_correct_option, q.scq_options, q.scq_correct_option, q.created_at
		FROM questions q
		JOIN contest_questions cq ON cq.question_id = q.id
		WHERE cq.contest_id = $1
		ORDER BY q.created_at
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contest questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateContest inserts the contest and its question links in one transaction.
func (r *Repo) CreateContest(ctx context.Context, c *Contest) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusNotStarted
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO contests (id, name, total_time, status, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Name, c.TotalTime, c.Status, c.StartsAt, c.EndsAt)
	if err != nil {
		return fmt.Errorf("failed to insert contest: %w", err)
	}

	for _, qid := range c.QuestionIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO contest_questions (contest_id, question_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, c.ID, qid)
		if err != nil {
			return fmt.Errorf("failed to link question %s: %w", qid, err)
		}
	}

	return tx.Commit(ctx)
}

// GetContest loads a contest with its question ids.
func (r *Repo) GetContest(ctx context.Context, id string) (*Contest, error) {
	var c Contest
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, total_time, status, starts_at, ends_at, created_at
		FROM contests WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.TotalTime, &c.Status, &c.StartsAt, &c.EndsAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContestNotFound
		}
		return nil, fmt.Errorf("failed to load contest: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT question_id FROM contest_questions WHERE contest_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load contest question links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var qid string
		if err := rows.Scan(&qid); err != nil {
			return nil, err
		}
		c.QuestionIDs = append(c.QuestionIDs, qid)
	}
	return &c, rows.Err()
}

// CountContestQuestions returns the number of contest-question links.
func (r *Repo) CountContestQuestions(ctx context.Context, contestID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM contest_questions WHERE contest_id = $1
	`, contestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count contest questions: %w", err)
	}
	return n, nil
}

// TransitionContestStatus moves a contest from one status to the next.
// Returns false when the contest was not in the expected status, which keeps
// transitions monotonic under duplicate task delivery.
func (r *Repo) TransitionContestStatus(ctx context.Context, id string, from, to ContestStatus) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE contests SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to transition contest status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertAttempt appends one attempt inside a batch transaction.
func (r *Repo) InsertAttempt(ctx context.Context, tx pgx.Tx, a *Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO attempts (id, user_id, question_id, user_answer, is_correct, marks_obtained, time_taken, hint_used, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.UserID, a.QuestionID, a.UserAnswer, a.IsCorrect, a.MarksObtained, a.TimeTaken, a.HintUsed, a.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// GetUserRating reads a user's current rating inside a batch transaction.
func (r *Repo) GetUserRating(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	var rating int
	err := tx.QueryRow(ctx, `SELECT current_rating FROM users WHERE id = $1`, userID).Scan(&rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user %s not found", userID)
		}
		return 0, fmt.Errorf("failed to load user rating: %w", err)
	}
	return rating, nil
}

// UpsertLeaderboardRow writes the single (user, contest) aggregate. Rank is
// left untouched on update; the grading worker owns it.
func (r *Repo) UpsertLeaderboardRow(ctx context.Context, tx pgx.Tx, row *LeaderboardRow) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO leaderboard (
			id, user_id, contest_id, score, total_questions, attempted, unattempted,
			correct, incorrect, total_time, accuracy, rating_before, rating_after,
			rating_delta, rank, missed, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, $15, NOW())
		ON CONFLICT (user_id, contest_id) DO UPDATE SET
			score = EXCLUDED.score,
			total_questions = EXCLUDED.total_questions,
			attempted = EXCLUDED.attempted,
			unattempted = EXCLUDED.unattempted,
			correct = EXCLUDED.correct,
			incorrect = EXCLUDED.incorrect,
			total_time = EXCLUDED.total_time,
			accuracy = EXCLUDED.accuracy,
			rating_before = EXCLUDED.rating_before,
			rating_after = EXCLUDED.rating_after,
			rating_delta = EXCLUDED.rating_delta,
			missed = EXCLUDED.missed,
			updated_at = NOW()
	`, row.ID, row.UserID, row.ContestID, row.Score, row.TotalQuestions, row.Attempted,
		row.Unattempted, row.Correct, row.Incorrect, row.TotalTime, row.Accuracy,
		row.RatingBefore, row.RatingAfter, row.RatingDelta, row.Missed)
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard row: %w", err)
	}
	return nil
}

// Leaderboard loads every row for a contest ordered by score descending.
func (r *Repo) Leaderboard(ctx context.Context, contestID string) ([]*LeaderboardRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, contest_id, score, total_questions, attempted, unattempted,
		       correct, incorrect, total_time, accuracy, rating_before, rating_after,
		       rating_delta, rank, missed
		FROM leaderboard
		WHERE contest_id = $1
		ORDER BY score DESC, total_time ASC
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	defer rows.Close()

	var board []*LeaderboardRow
	for rows.Next() {
		var row LeaderboardRow
		err := rows.Scan(
			&row.ID, &row.UserID, &row.ContestID, &row.Score, &row.TotalQuestions,
			&row.Attempted, &row.Unattempted, &row.Correct, &row.Incorrect,
			&row.TotalTime, &row.Accuracy, &row.RatingBefore, &row.RatingAfter,
			&row.RatingDelta, &row.Rank, &row.Missed,
		)
		if err != nil {
			return nil, err
		}
		board = append(board, &row)
	}
	return board, rows.Err()
}

// ContestsPlayed counts a user's leaderboard rows excluding the given
// contest; this is the damping input for the rating engine.
func (r *Repo) ContestsPlayed(ctx context.Context, userID, excludeContestID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leaderboard WHERE user_id = $1 AND contest_id <> $2
	`, userID, excludeContestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count contests played: %w", err)
	}
	return n, nil
}

// RatingResult is one participant's grading outcome to persist.
type RatingResult struct {
	RowID        string
	UserID       string
	Rank         int
	RatingBefore int
	RatingAfter  int
	RatingDelta  int
}

// ApplyRatings persists ranks and rating updates for a whole contest in one
// transaction. Re-running with the same inputs writes the same values: max
// ratings only ever move up and current ratings are plain overwrites.
func (r *Repo) ApplyRatings(ctx context.Context, contestID string, results []RatingResult) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin grading transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, res := range results {
		_, err := tx.Exec(ctx, `
			UPDATE leaderboard
			SET rank = $2, rating_before = $3, rating_after = $4, rating_delta = $5, updated_at = NOW()
			WHERE id = $1
		`, res.RowID, res.Rank, res.RatingBefore, res.RatingAfter, res.RatingDelta)
		if err != nil {
			return fmt.Errorf("failed to update leaderboard row %s: %w", res.RowID, err)
		}

		var maxRating int
		err = tx.QueryRow(ctx, `
			SELECT max_rating FROM users WHERE id = $1 FOR UPDATE
		`, res.UserID).Scan(&maxRating)
		if err != nil {
			return fmt.Errorf("failed to lock user %s: %w", res.UserID, err)
		}
		if res.RatingAfter > maxRating {
			maxRating = res.RatingAfter
		}

		_, err = tx.Exec(ctx, `
			UPDATE users SET current_rating = $2, max_rating = $3, title = $4 WHERE id = $1
		`, res.UserID, res.RatingAfter, maxRating, rating.TitleFor(maxRating))
		if err != nil {
			return fmt.Errorf("failed to update rating for user %s: %w", res.UserID, err)
		}
	}

	return tx.Commit(ctx)
}

func scanQuestion(rows pgx.Rows) (*Question, error) {
	var (
		q          Question
		mcqCorrect []int32
		scqCorrect *int32
	)
	err := rows.Scan(&q.ID, &q.Type, &q.Marks, &q.IntegerAnswer, &q.MCQOptions,
		&mcqCorrect, &q.SCQOptions, &scqCorrect, &q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}
	q.MCQCorrectOption = int32sToInts(mcqCorrect)
	if scqCorrect != nil {
		v := int(*scqCorrect)
		q.SCQCorrectOption = &v
	}
	return &q, nil
}

func intsToInt32(in []int) []int32 {
	if in == nil {
		return nil
	}
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func int32sToInts(in []int32) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func intPtrToInt32(in *int) *int32 {
	if in == nil {
		return nil
	}
	v := int32(*in)
	return &v
}
