package auth

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-prep-platform/pkg/kv"
)

// memStore is an in-memory Store; the KV side of the session checks runs
// against real Redis.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*User
	byPhone  map[string]*User
	sessions map[string]*Session
	order    map[string][]string // user id -> session ids, oldest first
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*User),
		byPhone:  make(map[string]*User),
		sessions: make(map[string]*Session),
		order:    make(map[string][]string),
	}
}

func (m *memStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = u
	m.byPhone[u.Phone] = u
	return nil
}

func (m *memStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byPhone[phone]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *memStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.IsActive = true
	s.CreatedAt = time.Now()
	m.sessions[s.ID] = s
	m.order[s.UserID] = append(m.order[s.UserID], s.ID)
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *memStore) ActiveSessionID(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.order[userID]
	for i := len(ids) - 1; i >= 0; i-- {
		if m.sessions[ids[i]].IsActive {
			return ids[i], nil
		}
	}
	return "", nil
}

func (m *memStore) DeactivateOtherSessions(ctx context.Context, userID, keepID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.ID != keepID {
			s.IsActive = false
		}
	}
	return nil
}

func (m *memStore) DeactivateSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.IsActive = false
		s.PushToken = nil
	}
	return nil
}

func (m *memStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.LastActive = at
	}
	return nil
}

// testKV connects to TEST_REDIS_URL or skips.
func testKV(t *testing.T) *kv.Store {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set; skipping redis integration test")
	}
	store, err := kv.Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestSessionExclusivity drives the full rotation sequence: a second login
// displaces the first session, the displaced token's next call fails with
// SESSION_EXPIRED exactly once via the force-logout marker, and every later
// call fails via the active-session mismatch.
func TestSessionExclusivity(t *testing.T) {
	store := testKV(t)
	ctx := context.Background()

	mem := newMemStore()
	issuer := NewTokenIssuer("test-signing-key", time.Minute, time.Hour)
	svc := NewService(mem, store, issuer, time.Hour, 5*time.Minute)
	authorizer := NewAuthorizer(mem, store, issuer)

	phone := "phone-" + uuid.NewString()
	user, err := svc.Register(ctx, phone, "correct-horse", "Test User")
	require.NoError(t, err)
	t.Cleanup(func() { store.Client.Del(ctx, kv.ActiveSessionKey(user.ID)) })

	first, err := svc.Login(ctx, phone, "correct-horse", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Client.Del(ctx, kv.ForceLogoutKey(first.SessionID)) })

	got, code, err := authorizer.Authorize(ctx, first.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Equal(t, user.ID, got.ID)

	second, err := svc.Login(ctx, phone, "correct-horse", nil)
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)

	// Displaced token: rejected via the force-logout marker, which is
	// consumed so the device is told exactly once.
	_, code, err = authorizer.Authorize(ctx, first.AccessToken)
	require.Error(t, err)
	assert.Equal(t, CodeSessionExpired, code)

	exists, err := store.Client.Exists(ctx, kv.ForceLogoutKey(first.SessionID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// Still rejected afterwards: the active-session mirror names the new
	// session.
	_, code, err = authorizer.Authorize(ctx, first.AccessToken)
	require.Error(t, err)
	assert.Equal(t, CodeSessionExpired, code)

	// The displaced refresh token is dead too: its session row was
	// deactivated by the rotation.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The new session keeps working.
	got, code, err = authorizer.Authorize(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.Equal(t, user.ID, got.ID)
}

// TestLogoutClearsActiveSession verifies that logout removes the KV mirror so
// the logged-out token no longer authorizes.
func TestLogoutClearsActiveSession(t *testing.T) {
	store := testKV(t)
	ctx := context.Background()

	mem := newMemStore()
	issuer := NewTokenIssuer("test-signing-key", time.Minute, time.Hour)
	svc := NewService(mem, store, issuer, time.Hour, 5*time.Minute)
	authorizer := NewAuthorizer(mem, store, issuer)

	phone := "phone-" + uuid.NewString()
	user, err := svc.Register(ctx, phone, "correct-horse", "Test User")
	require.NoError(t, err)
	t.Cleanup(func() { store.Client.Del(ctx, kv.ActiveSessionKey(user.ID)) })

	pair, err := svc.Login(ctx, phone, "correct-horse", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID, pair.SessionID))

	_, code, err := authorizer.Authorize(ctx, pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, CodeSessionExpired, code)
}
