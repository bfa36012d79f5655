package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"exam-prep-platform/pkg/kv"
)

type contextKey string

const userContextKey contextKey = "auth.user"

// Error codes surfaced to clients on 401 responses.
const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeSessionExpired = "SESSION_EXPIRED"
)

// Authorizer resolves bearer tokens to users while enforcing the
// single-active-session rule and force-logout markers.
type Authorizer struct {
	repo   Store
	store  *kv.Store
	issuer *TokenIssuer
}

// NewAuthorizer wires the session authorizer.
func NewAuthorizer(repo Store, store *kv.Store, issuer *TokenIssuer) *Authorizer {
	return &Authorizer{repo: repo, store: store, issuer: issuer}
}

// UserFromContext returns the authenticated user placed by Middleware.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey).(*User)
	return u, ok
}

// Middleware authenticates every request. Each step is necessary: token
// decode, claim extraction, the force-logout/active-session KV pipeline, and
// the user load. Failure of any step rejects the request with 401.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, code, err := a.Authorize(r.Context(), bearerToken(r))
		if err != nil {
			writeAuthError(w, code)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

// RequireAdmin allows only admin users through. Must run after Middleware.
func (a *Authorizer) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user.Role != RoleAdmin {
			writeAuthError(w, CodeUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authorize runs the full token-to-user resolution. The returned code is one
// of CodeUnauthorized or CodeSessionExpired when err is non-nil.
func (a *Authorizer) Authorize(ctx context.Context, token string) (*User, string, error) {
	if token == "" {
		return nil, CodeUnauthorized, ErrInvalidToken
	}

	claims, err := a.issuer.Parse(token, KindAccess)
	if err != nil {
		return nil, CodeUnauthorized, err
	}
	userID, sessionID := claims.Subject, claims.SessionID

	// One round-trip for both session checks.
	pipe := a.store.Client.Pipeline()
	forceLogout := pipe.Exists(ctx, kv.ForceLogoutKey(sessionID))
	activeSession := pipe.Get(ctx, kv.ActiveSessionKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !isRedisNil(err) {
		return nil, CodeUnauthorized, err
	}

	if forceLogout.Val() > 0 {
		// Consume the marker so the displaced device is told exactly once.
		if err := a.store.Client.Del(ctx, kv.ForceLogoutKey(sessionID)).Err(); err != nil {
			log.Printf("Failed to delete force-logout marker for session %s: %v", sessionID, err)
		}
		return nil, CodeSessionExpired, errors.New("session superseded")
	}

	active, err := activeSession.Result()
	if err != nil || active != sessionID {
		return nil, CodeSessionExpired, errors.New("session not active")
	}

	user, err := a.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, CodeUnauthorized, err
	}
	if !user.IsActive {
		return nil, CodeUnauthorized, errors.New("user inactive")
	}

	return user, "", nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func writeAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
