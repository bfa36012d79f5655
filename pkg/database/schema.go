package database

import (
	"context"
	"fmt"
)

// schema is the idempotent DDL applied at startup. Statements run in order;
// every statement tolerates re-execution.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		phone TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		current_rating INTEGER NOT NULL DEFAULT 1200,
		max_rating INTEGER NOT NULL DEFAULT 1200,
		title TEXT NOT NULL DEFAULT 'Newbie',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		refresh_token_hash TEXT NOT NULL,
		push_token TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at TIMESTAMPTZ NOT NULL,
		last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS questions (
		id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		marks INTEGER NOT NULL,
		integer_answer BIGINT,
		mcq_options TEXT[],
		mcq_correct_option INTEGER[],
		scq_options TEXT[],
		scq_correct_option INTEGER,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS contests (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		total_time INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'not_started',
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS contest_questions (
		contest_id UUID NOT NULL REFERENCES contests(id),
		question_id UUID NOT NULL REFERENCES questions(id),
		PRIMARY KEY (contest_id, question_id)
	)`,

	`CREATE TABLE IF NOT EXISTS attempts (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		question_id UUID NOT NULL REFERENCES questions(id),
		user_answer TEXT[] NOT NULL DEFAULT '{}',
		is_correct BOOLEAN NOT NULL,
		marks_obtained INTEGER NOT NULL,
		time_taken INTEGER NOT NULL DEFAULT 0,
		hint_used BOOLEAN NOT NULL DEFAULT FALSE,
		attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts(user_id)`,

	`CREATE TABLE IF NOT EXISTS leaderboard (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id),
		contest_id UUID NOT NULL REFERENCES contests(id),
		score INTEGER NOT NULL DEFAULT 0,
		total_questions INTEGER NOT NULL DEFAULT 0,
		attempted INTEGER NOT NULL DEFAULT 0,
		unattempted INTEGER NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0,
		incorrect INTEGER NOT NULL DEFAULT 0,
		total_time INTEGER NOT NULL DEFAULT 0,
		accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
		rating_before INTEGER NOT NULL DEFAULT 0,
		rating_after INTEGER NOT NULL DEFAULT 0,
		rating_delta INTEGER NOT NULL DEFAULT 0,
		rank INTEGER NOT NULL DEFAULT 0,
		missed BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, contest_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leaderboard_contest ON leaderboard(contest_id, score DESC)`,
}

// EnsureSchema applies the DDL. Safe to run from every binary at startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
