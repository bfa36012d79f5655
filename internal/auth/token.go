package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes access from refresh tokens via the "type" claim.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// ErrInvalidToken covers malformed, expired, and wrong-kind tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the signed claims carried by both token kinds.
type Claims struct {
	SessionID string    `json:"session_id"`
	Kind      TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies the platform's JWTs.
type TokenIssuer struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates an issuer with the given HMAC key and lifetimes.
func NewTokenIssuer(signingKey string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		signingKey: []byte(signingKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Mint signs a token of the given kind for (user, session).
func (ti *TokenIssuer) Mint(kind TokenKind, userID, sessionID string) (string, error) {
	ttl := ti.accessTTL
	if kind == KindRefresh {
		ttl = ti.refreshTTL
	}

	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and checks its kind. Expired, malformed, or
// wrong-kind tokens all return ErrInvalidToken.
func (ti *TokenIssuer) Parse(tokenString string, wantKind TokenKind) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != wantKind {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshTTL exposes the refresh lifetime for session KV mirror expiry.
func (ti *TokenIssuer) RefreshTTL() time.Duration {
	return ti.refreshTTL
}
