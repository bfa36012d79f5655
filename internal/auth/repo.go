package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"exam-prep-platform/pkg/database"
)

// Sentinel lookup errors.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Repo is the SQL repository for users and sessions.
type Repo struct {
	db *database.DB
}

var _ Store = (*Repo)(nil)

// NewRepo creates an auth repository over the shared pool.
func NewRepo(db *database.DB) *Repo {
	return &Repo{db: db}
}

// CreateUser inserts a user. The id is assigned when empty.
func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id, phone, name, password_hash, role, current_rating, max_rating, title, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Phone, u.Name, u.PasswordHash, u.Role, u.CurrentRating, u.MaxRating, u.Title, u.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByPhone loads a user for login.
func (r *Repo) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	return r.getUser(ctx, `WHERE phone = $1`, phone)
}

// GetUserByID loads a user for authorization.
func (r *Repo) GetUserByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

func (r *Repo) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, phone, name, password_hash, role, current_rating, max_rating, title, is_active, created_at
		FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Phone, &u.Name, &u.PasswordHash, &u.Role, &u.CurrentRating,
		&u.MaxRating, &u.Title, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// CreateSession inserts a fresh session row.
func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_hash, push_token, is_active, expires_at, last_active)
		VALUES ($1, $2, $3, $4, TRUE, $5, NOW())
	`, s.ID, s.UserID, s.RefreshTokenHash, s.PushToken, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (r *Repo) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, refresh_token_hash, push_token, is_active, expires_at, last_active, created_at
		FROM sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.PushToken, &s.IsActive,
		&s.ExpiresAt, &s.LastActive, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &s, nil
}

// ActiveSessionID returns the id of the user's currently active session, or
// "" when none exists.
func (r *Repo) ActiveSessionID(ctx context.Context, userID string) (string, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id FROM sessions
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load active session: %w", err)
	}
	return id, nil
}

// DeactivateOtherSessions marks every session of the user inactive except
// keepID, in a single statement.
func (r *Repo) DeactivateOtherSessions(ctx context.Context, userID, keepID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND id <> $2 AND is_active
	`, userID, keepID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	return nil
}

// DeactivateSession marks one session inactive and clears its push token.
func (r *Repo) DeactivateSession(ctx context.Context, sessionID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE, push_token = NULL WHERE id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

// TouchSession records activity on a session.
func (r *Repo) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE sessions SET last_active = $2 WHERE id = $1
	`, sessionID, at)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}
