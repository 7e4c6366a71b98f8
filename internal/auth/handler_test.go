package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ampere-erp/ampere-erp/internal/auth"
	"github.com/ampere-erp/ampere-erp/internal/shared"
	_ "github.com/ampere-erp/ampere-erp/testing"
)

type stubRepo struct {
	users   map[string]*auth.User
	created []string
	deleted []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if u, ok := s.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.created = append(s.created, id)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type authFixture struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
	redis    *miniredis.Miniredis
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{users: map[string]*auth.User{
		"gustavo@ampere.test":  {ID: 1, Email: "gustavo@ampere.test", FullName: "Gustavo", PasswordHash: string(hashed), IsActive: true},
		"contador@ampere.test": {ID: 7, Email: "contador@ampere.test", PasswordHash: string(hashed), IsActive: true},
		"inativo@ampere.test":  {ID: 2, Email: "inativo@ampere.test", PasswordHash: string(hashed), IsActive: false},
	}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "ampere_session", time.Hour, false)
	service := auth.NewService(repo, shared.DefaultOwnershipGroup())
	handler := auth.NewHandler(nil, service, sessions, shared.NewCSRFManager("csrfsecret"))
	return authFixture{handler: handler, sessions: sessions, repo: repo, redis: mr}
}

// serve runs the request through the auth routes with a fresh session and
// commits it afterwards.
func (f authFixture) serve(t *testing.T, req *http.Request, sess *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	if sess == nil {
		var err error
		sess, err = f.sessions.Load(req.Context(), req)
		require.NoError(t, err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	r := chiRouter(f.handler)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req.WithContext(ctx))
	require.NoError(t, f.sessions.Commit(ctx, httptest.NewRecorder(), sess))
	return rr
}

func loginRequest(email, password string) *http.Request {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginRotatesSessionAndReturnsToken(t *testing.T) {
	f := newAuthFixture(t)
	req := loginRequest("gustavo@ampere.test", "correctpass")
	sess, err := f.sessions.Load(req.Context(), req)
	require.NoError(t, err)
	before := sess.ID

	rr := f.serve(t, req, sess)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var profile auth.Profile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.Equal(t, int64(1), profile.ID)
	assert.True(t, profile.Partner)
	assert.NotEmpty(t, profile.CSRFToken)
	assert.Equal(t, profile.CSRFToken, sess.Get(shared.CSRFSessionKey))

	assert.NotEqual(t, before, sess.ID)
	assert.Equal(t, "1", sess.User())
	assert.True(t, f.redis.Exists("session:"+sess.ID))
	assert.Equal(t, []string{sess.ID}, f.repo.created)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	for _, tc := range []struct {
		email, password string
		status          int
	}{
		{"gustavo@ampere.test", "wrongpass", http.StatusUnauthorized},
		{"ninguem@ampere.test", "correctpass", http.StatusUnauthorized},
		{"inativo@ampere.test", "correctpass", http.StatusUnauthorized},
		{"contador@ampere.test", "correctpass", http.StatusForbidden},
		{"not-an-email", "correctpass", http.StatusUnprocessableEntity},
	} {
		rr := f.serve(t, loginRequest(tc.email, tc.password), nil)
		assert.Equal(t, tc.status, rr.Code, tc.email)
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
	assert.Empty(t, f.repo.created)
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newAuthFixture(t)
	req := loginRequest("gustavo@ampere.test", "correctpass")
	sess, err := f.sessions.Load(req.Context(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, f.serve(t, req, sess).Code)
	id := sess.ID

	rr := f.serve(t, httptest.NewRequest(http.MethodPost, "/auth/logout", nil), sess)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, f.redis.Exists("session:"+id))
	assert.Equal(t, []string{id}, f.repo.deleted)
}

func TestMeRequiresPartner(t *testing.T) {
	f := newAuthFixture(t)

	rr := f.serve(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	outsider, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	outsider.SetUser("7")
	rr = f.serve(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil), outsider)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	partner, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	partner.SetUser("1")
	rr = f.serve(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil), partner)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"gustavo@ampere.test"`)
	assert.Contains(t, rr.Body.String(), `"csrfToken"`)
}
