package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieltswriter/ieltswriter/internal/users"
)

type fakeUserRepo struct {
	byID map[uuid.UUID]*users.User
}

func (f *fakeUserRepo) Create(_ context.Context, u *users.User) error {
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	return f.byID[id], nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, _ := f.GetByEmail(ctx, email)
	return u != nil, nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := f.byID[id]
	delete(f.byID, id)
	return ok, nil
}

func (f *fakeUserRepo) Count(context.Context) (int64, error) {
	return int64(len(f.byID)), nil
}

type endedSession struct {
	userID    uuid.UUID
	sessionID string
}

func newTestHandler(t *testing.T) (*Handler, *Service, *[]endedSession) {
	t.Helper()
	svc, _ := newTestService(t)
	userSvc := users.NewService(&fakeUserRepo{byID: map[uuid.UUID]*users.User{}}, "admin@example.com")

	var ended []endedSession
	hook := func(_ context.Context, userID uuid.UUID, sessionID string) {
		ended = append(ended, endedSession{userID, sessionID})
	}
	return NewHandler(svc, userSvc, hook), svc, &ended
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw)))
	return w
}

func decodeTokens(t *testing.T, w *httptest.ResponseRecorder) TokenPair {
	t.Helper()
	var resp struct {
		Data TokenPair `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Data
}

func withAuth(svc *Service, token string, next http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	Middleware(svc)(next).ServeHTTP(w, r)
	return w
}

func TestHandler_RegisterLoginAndRoles(t *testing.T) {
	h, svc, _ := newTestHandler(t)

	w := postJSON(t, h.Register, RegisterRequest{Email: "admin@example.com", Password: "password123"})
	require.Equal(t, http.StatusCreated, w.Code)
	pair := decodeTokens(t, w)
	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, string(users.RoleAdmin), claims.Role)

	w = postJSON(t, h.Register, RegisterRequest{Email: "admin@example.com", Password: "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(t, h.Login, LoginRequest{Email: "admin@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, h.Login, LoginRequest{Email: "admin@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_RegisterValidation(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := postJSON(t, h.Register, RegisterRequest{Email: "not-an-email", Password: "password123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, h.Register, RegisterRequest{Email: "a@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_LogoutRunsSessionHooks(t *testing.T) {
	h, svc, ended := newTestHandler(t)

	w := postJSON(t, h.Register, RegisterRequest{Email: "student@example.com", Password: "password123"})
	require.Equal(t, http.StatusCreated, w.Code)
	pair := decodeTokens(t, w)
	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)

	w = withAuth(svc, pair.AccessToken, h.Logout)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, *ended, 1)
	assert.Equal(t, claims.UserID, (*ended)[0].userID.String())
	assert.Equal(t, claims.SessionID, (*ended)[0].sessionID)

	w = postJSON(t, h.Refresh, RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_DeleteAccount(t *testing.T) {
	h, svc, ended := newTestHandler(t)

	w := postJSON(t, h.Register, RegisterRequest{Email: "leaver@example.com", Password: "password123"})
	require.Equal(t, http.StatusCreated, w.Code)
	pair := decodeTokens(t, w)

	w = withAuth(svc, pair.AccessToken, h.DeleteAccount)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, *ended, 1)

	w = postJSON(t, h.Login, LoginRequest{Email: "leaver@example.com", Password: "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = withAuth(svc, pair.AccessToken, h.DeleteAccount)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequireRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	admin, err := svc.StartSession(ctx, uuid.NewString(), "a@example.com", "admin")
	require.NoError(t, err)
	student, err := svc.StartSession(ctx, uuid.NewString(), "s@example.com", "user")
	require.NoError(t, err)

	w := withAuth(svc, admin.AccessToken, RequireRole("admin")(ok).ServeHTTP)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = withAuth(svc, student.AccessToken, RequireRole("admin")(ok).ServeHTTP)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
