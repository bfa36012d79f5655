package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"exam-prep-platform/internal/rating"
	"exam-prep-platform/pkg/kv"
)

// ErrInvalidCredentials is returned on a failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

const initialRating = 1200

// TokenPair is the login/refresh response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// Store is the user/session persistence surface the service and the
// authorizer operate on. *Repo is the production implementation.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ActiveSessionID(ctx context.Context, userID string) (string, error)
	DeactivateOtherSessions(ctx context.Context, userID, keepID string) error
	DeactivateSession(ctx context.Context, sessionID string) error
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
}

// Service implements registration, login with session rotation, refresh,
// and logout over the user/session tables and the KV session mirror.
type Service struct {
	repo           Store
	store          *kv.Store
	issuer         *TokenIssuer
	sessionTTL     time.Duration
	forceLogoutTTL time.Duration
}

// NewService wires the auth service.
func NewService(repo Store, store *kv.Store, issuer *TokenIssuer, sessionTTL, forceLogoutTTL time.Duration) *Service {
	return &Service{
		repo:           repo,
		store:          store,
		issuer:         issuer,
		sessionTTL:     sessionTTL,
		forceLogoutTTL: forceLogoutTTL,
	}
}

// Register creates a user with the initial rating and the Newbie title.
func (s *Service) Register(ctx context.Context, phone, password, name string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Phone:         phone,
		Name:          name,
		PasswordHash:  string(hash),
		Role:          "student",
		CurrentRating: initialRating,
		MaxRating:     initialRating,
		Title:         rating.TitleFor(initialRating),
		IsActive:      true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates phone+password and rotates the active session: a new
// session row is inserted, all other sessions are deactivated in one batch,
// the KV active-session mirror is overwritten, and the displaced session is
// marked for force logout.
func (s *Service) Login(ctx context.Context, phone, password string, pushToken *string) (*TokenPair, error) {
	user, err := s.repo.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	oldSessionID, err := s.repo.ActiveSessionID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		UserID:    user.ID,
		PushToken: pushToken,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}
	// The session id is minted before the tokens so both tokens can carry it.
	session.ID = newSessionID()

	refreshToken, err := s.issuer.Mint(KindRefresh, user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.issuer.Mint(KindAccess, user.ID, session.ID)
	if err != nil {
		return nil, err
	}

	session.RefreshTokenHash = hashToken(refreshToken)
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.repo.DeactivateOtherSessions(ctx, user.ID, session.ID); err != nil {
		return nil, err
	}

	pipe := s.store.Client.Pipeline()
	pipe.Set(ctx, kv.ActiveSessionKey(user.ID), session.ID, s.issuer.RefreshTTL())
	if oldSessionID != "" && oldSessionID != session.ID {
		pipe.Set(ctx, kv.ForceLogoutKey(oldSessionID), "true", s.forceLogoutTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to update session keys: %w", err)
	}

	if oldSessionID != "" {
		log.Printf("User %s logged in, displacing session %s", user.ID, oldSessionID)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// session must still be the active one and its stored hash must match.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, KindRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session, err := s.repo.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !session.IsActive || session.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	if session.RefreshTokenHash != hashToken(refreshToken) {
		return nil, ErrInvalidToken
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	accessToken, err := s.issuer.Mint(KindAccess, session.UserID, session.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.TouchSession(ctx, session.ID, time.Now()); err != nil {
		log.Printf("Failed to touch session %s: %v", session.ID, err)
	}

	return &TokenPair{AccessToken: accessToken}, nil
}

// Logout deactivates the session, clears its push token, and removes the
// KV active-session mirror.
func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.repo.DeactivateSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.Client.Del(ctx, kv.ActiveSessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear active session key: %w", err)
	}
	return nil
}

func newSessionID() string {
	return uuid.NewString()
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
