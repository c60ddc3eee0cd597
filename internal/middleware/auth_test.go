package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/auth"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/middleware"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/model"
)

// Minimal in-memory stores, same semantics as the SQL repositories.

type memEntry struct {
	userID    uint64
	kind      string
	revokedAt *time.Time
	expiresAt time.Time
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

func newMemLedger() *memLedger { return &memLedger{entries: map[string]*memEntry{}} }

func (l *memLedger) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[hash] = &memEntry{userID: userID, kind: "refresh", expiresAt: exp}
	return nil
}

func (l *memLedger) HasActiveRefresh(_ context.Context, hash string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[hash]
	return ok && e.kind == "refresh" && e.revokedAt == nil && time.Now().UTC().Before(e.expiresAt), nil
}

func (l *memLedger) IsRevoked(_ context.Context, hash string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[hash]
	return ok && e.revokedAt != nil && time.Now().UTC().Before(e.expiresAt), nil
}

func (l *memLedger) Blacklist(_ context.Context, userID uint64, hash, kind string, exp time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	if e, ok := l.entries[hash]; ok {
		if e.revokedAt != nil {
			return false, nil
		}
		e.revokedAt = &now
		return true, nil
	}
	l.entries[hash] = &memEntry{userID: userID, kind: kind, revokedAt: &now, expiresAt: exp}
	return true, nil
}

func (l *memLedger) DeleteRefreshForUser(_ context.Context, userID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for h, e := range l.entries {
		if e.userID == userID && e.kind == "refresh" && e.revokedAt == nil {
			delete(l.entries, h)
		}
	}
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[uint64]model.User
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, errors.New("user not found")
	}
	return u, nil
}

func (m *memUsers) put(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func newTestEngine(users *memUsers) *auth.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return auth.NewEngine(logger, users, newMemLedger(),
		"access-secret-for-tests", "refresh-secret-for-tests",
		15*time.Minute, 7*24*time.Hour)
}

func doAuthenticated(t *testing.T, engine *auth.Engine, token string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	reached := false
	h := middleware.Authenticate(engine)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, reached
}

func TestAuthenticateMissingHeader(t *testing.T) {
	users := &memUsers{users: map[uint64]model.User{}}
	rec, reached := doAuthenticated(t, newTestEngine(users), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	users := &memUsers{users: map[uint64]model.User{}}
	rec, reached := doAuthenticated(t, newTestEngine(users), "definitely-not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestAuthenticateValidToken(t *testing.T) {
	u := model.User{ID: 7, Role: model.RoleUser, IsActive: true}
	users := &memUsers{users: map[uint64]model.User{u.ID: u}}
	engine := newTestEngine(users)

	pair, err := engine.Issue(context.Background(), u)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := middleware.Authenticate(engine)(func(c echo.Context) error {
		assert.Equal(t, uint64(7), middleware.UserID(c))
		assert.Equal(t, model.RoleUser, c.Get(middleware.CtxRole))
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateRevokedToken(t *testing.T) {
	u := model.User{ID: 7, Role: model.RoleUser, IsActive: true}
	users := &memUsers{users: map[uint64]model.User{u.ID: u}}
	engine := newTestEngine(users)

	pair, err := engine.Issue(context.Background(), u)
	require.NoError(t, err)
	require.NoError(t, engine.Revoke(context.Background(), pair.AccessToken, u.ID, auth.KindAccess))

	// Signature still verifies; the ledger is what rejects it.
	rec, reached := doAuthenticated(t, engine, pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func runAuthorize(t *testing.T, role any, allowed ...string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if role != nil {
		c.Set(middleware.CtxRole, role)
	}

	reached := false
	h := middleware.Authorize(allowed...)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, reached
}

func TestAuthorize(t *testing.T) {
	// Role not in the allowed set.
	rec, reached := runAuthorize(t, model.RoleUser, model.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)

	// Empty set means any authenticated identity.
	rec, reached = runAuthorize(t, model.RoleUser)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)

	// Matching role passes.
	rec, reached = runAuthorize(t, model.RoleAdmin, model.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)

	// No identity attached at all: unauthenticated, not forbidden.
	rec, reached = runAuthorize(t, nil, model.RoleAdmin)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

// A promotion does not touch tokens issued before it: the role inside an
// access token is a snapshot from issuance and stays in force until a
// fresh token is issued.
func TestRoleSnapshotSurvivesPromotion(t *testing.T) {
	u := model.User{ID: 7, Role: model.RoleUser, IsActive: true}
	users := &memUsers{users: map[uint64]model.User{u.ID: u}}
	engine := newTestEngine(users)

	pair, err := engine.Issue(context.Background(), u)
	require.NoError(t, err)

	adminOnly := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	chain := middleware.Authenticate(engine)(middleware.Authorize(model.RoleAdmin)(adminOnly))

	do := func(token string) int {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		require.NoError(t, chain(e.NewContext(req, rec)))
		return rec.Code
	}

	// Plain user is forbidden.
	assert.Equal(t, http.StatusForbidden, do(pair.AccessToken))

	// Promote the user in the store; the old token still says "user".
	u.Role = model.RoleAdmin
	users.put(u)
	assert.Equal(t, http.StatusForbidden, do(pair.AccessToken))

	// Only a freshly issued token carries the new role.
	fresh, err := engine.Issue(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(fresh.AccessToken))
}
