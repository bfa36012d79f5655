package contest

import (
	"time"
)

// QuestionType enumerates the four gradable question shapes.
type QuestionType string

const (
	TypeInteger QuestionType = "INTEGER"
	TypeMCQ     QuestionType = "MCQ"
	TypeSCQ     QuestionType = "SCQ"
	TypeMatch   QuestionType = "MATCH"
)

// ContestStatus is the contest lifecycle state. Transitions are monotonic:
// not_started -> active -> finished.
type ContestStatus string

const (
	StatusNotStarted ContestStatus = "not_started"
	StatusActive     ContestStatus = "active"
	StatusFinished   ContestStatus = "finished"
)

// Question is the gradable unit. Exactly one answer-field group is populated
// per type; option indices are zero-based.
type Question struct {
	ID               string       `json:"id"`
	Type             QuestionType `json:"type"`
	Marks            int          `json:"marks"`
	IntegerAnswer    *int64       `json:"integer_answer,omitempty"`
	MCQOptions       []string     `json:"mcq_options,omitempty"`
	MCQCorrectOption []int        `json:"mcq_correct_option,omitempty"`
	SCQOptions       []string     `json:"scq_options,omitempty"`
	SCQCorrectOption *int         `json:"scq_correct_option,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Contest is a scheduled timed event over a bag of questions.
type Contest struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	TotalTime   int           `json:"total_time"`
	Status      ContestStatus `json:"status"`
	StartsAt    time.Time     `json:"starts_at"`
	EndsAt      time.Time     `json:"ends_at"`
	CreatedAt   time.Time     `json:"created_at"`
	QuestionIDs []string      `json:"question_ids,omitempty"`
}

// Attempt is the append-only record of one evaluated answer. Created only by
// submission workers, never mutated after insert.
type Attempt struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	QuestionID    string    `json:"question_id"`
	UserAnswer    []string  `json:"user_answer"`
	IsCorrect     bool      `json:"is_correct"`
	MarksObtained int       `json:"marks_obtained"`
	TimeTaken     int       `json:"time_taken"`
	HintUsed      bool      `json:"hint_used"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

// LeaderboardRow is the single mutable aggregate per (user, contest).
// Submission workers own every field except rank; the grading worker owns
// rank, rating_after, and rating_delta.
type LeaderboardRow struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	ContestID      string  `json:"contest_id"`
	Score          int     `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	Attempted      int     `json:"attempted"`
	Unattempted    int     `json:"unattempted"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	TotalTime      int     `json:"total_time"`
	Accuracy       float64 `json:"accuracy"`
	RatingBefore   int     `json:"rating_before"`
	RatingAfter    int     `json:"rating_after"`
	RatingDelta    int     `json:"rating_delta"`
	Rank           int     `json:"rank"`
	Missed         bool    `json:"missed"`
}

// Submission is one answer inside a queued batch.
type Submission struct {
	QuestionID string   `json:"question_id"`
	UserAnswer []string `json:"user_answer"`
	TimeTaken  int      `json:"time_taken"`
	HintUsed   bool     `json:"hint_used,omitempty"`
}

// Batch is one submission queue entry: all of one user's submissions for one
// contest in one message.
type Batch struct {
	ContestID   string       `json:"contest_id"`
	UserID      string       `json:"user_id"`
	Submissions []Submission `json:"submissions"`
}
