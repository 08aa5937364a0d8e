package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/point10xdev/ERP-Rebuild/internal/auth"
	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
	_ "github.com/point10xdev/ERP-Rebuild/testing"
)

type stubRepo struct {
	account *auth.Account
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if s.account == nil || s.account.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.account, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

type stubRoles struct {
	roles []scholarship.Role
}

func (s *stubRoles) Roles(ctx context.Context, facultyID int64) ([]scholarship.Role, error) {
	return s.roles, nil
}

func (s *stubRoles) HasRole(ctx context.Context, facultyID int64, role scholarship.Role) (bool, error) {
	for _, r := range s.roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

func newAuthHandler(t *testing.T, repo auth.Repository, roles auth.RoleDirectory) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(repo), roles, sessionManager)
	return handler, sessionManager
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hashed)
}

func jsonRequest(t *testing.T, sm *shared.SessionManager, method, target string, body any) (*http.Request, *shared.Session) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func serve(handler *auth.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router := testRouterFor(handler)
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginScholar(t *testing.T) {
	repo := &stubRepo{account: &auth.Account{
		ID: 1, Email: "scholar@test.local", Name: "S. One",
		PasswordHash: hashPassword(t, "correctpass"),
		ScholarID:    7,
	}}
	handler, sm := newAuthHandler(t, repo, &stubRoles{})

	req, sess := jsonRequest(t, sm, http.MethodPost, "/auth/login",
		map[string]string{"email": "scholar@test.local", "password": "correctpass"})
	rec := serve(handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		UserID    int64 `json:"user_id"`
		ScholarID int64 `json:"scholar_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.UserID)
	require.Equal(t, int64(7), resp.ScholarID)

	actor, ok := sess.Actor()
	require.True(t, ok)
	require.True(t, actor.IsScholar())
}

func TestLoginFacultySingleRoleAutoselects(t *testing.T) {
	repo := &stubRepo{account: &auth.Account{
		ID: 2, Email: "hod@test.local", Name: "H. Dept",
		PasswordHash: hashPassword(t, "correctpass"),
		FacultyID:    20,
	}}
	handler, sm := newAuthHandler(t, repo, &stubRoles{roles: []scholarship.Role{scholarship.RoleHOD}})

	req, sess := jsonRequest(t, sm, http.MethodPost, "/auth/login",
		map[string]string{"email": "hod@test.local", "password": "correctpass"})
	rec := serve(handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	actor, ok := sess.Actor()
	require.True(t, ok)
	require.Equal(t, "HOD", actor.ActingRole)
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{account: &auth.Account{
		ID: 1, Email: "user@test.local",
		PasswordHash: hashPassword(t, "correctpass"),
	}}
	handler, sm := newAuthHandler(t, repo, &stubRoles{})

	req, _ := jsonRequest(t, sm, http.MethodPost, "/auth/login",
		map[string]string{"email": "user@test.local", "password": "wrongpass1"})
	rec := serve(handler, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req, _ = jsonRequest(t, sm, http.MethodPost, "/auth/login",
		map[string]string{"email": "nobody@test.local", "password": "correctpass"})
	rec = serve(handler, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{}, &stubRoles{})

	req, _ := jsonRequest(t, sm, http.MethodPost, "/auth/login",
		map[string]string{"email": "not-an-email", "password": "short"})
	rec := serve(handler, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectRole(t *testing.T) {
	roles := &stubRoles{roles: []scholarship.Role{scholarship.RoleFaculty, scholarship.RoleDean}}
	handler, sm := newAuthHandler(t, &stubRepo{}, roles)

	req, sess := jsonRequest(t, sm, http.MethodPost, "/auth/role", map[string]string{"role": "DEAN"})
	sess.SetActor(shared.Actor{UserID: 2, FacultyID: 20, ActingRole: "FAC"})
	rec := serve(handler, req)

	require.Equal(t, http.StatusOK, rec.Code)
	actor, _ := sess.Actor()
	require.Equal(t, "DEAN", actor.ActingRole)

	// unassigned role is refused
	req, sess = jsonRequest(t, sm, http.MethodPost, "/auth/role", map[string]string{"role": "HOD"})
	sess.SetActor(shared.Actor{UserID: 2, FacultyID: 20})
	rec = serve(handler, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// scholars have no roles to select
	req, sess = jsonRequest(t, sm, http.MethodPost, "/auth/role", map[string]string{"role": "FAC"})
	sess.SetActor(shared.Actor{UserID: 1, ScholarID: 7})
	rec = serve(handler, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogout(t *testing.T) {
	handler, sm := newAuthHandler(t, &stubRepo{}, &stubRoles{})

	req, sess := jsonRequest(t, sm, http.MethodPost, "/auth/logout", nil)
	sess.SetActor(shared.Actor{UserID: 1, ScholarID: 7})
	rec := serve(handler, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func testRouterFor(handler *auth.Handler) chi.Router {
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}
