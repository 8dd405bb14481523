package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filetrack/internal/adapters/http/middleware"
	"filetrack/internal/adapters/logger"
	"filetrack/internal/application"
	"filetrack/internal/domain"
	"filetrack/internal/infrastructure/auth"
	"filetrack/internal/infrastructure/events"
	"filetrack/internal/infrastructure/kv"
	"filetrack/internal/infrastructure/store"
)

type server struct {
	e      *echo.Echo
	center *application.NotificationCenter
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	log := logger.Nop()
	st, err := store.Open(ctx, kv.NewMemory(), time.Now())
	require.NoError(t, err)

	authz := application.NewAuthorizationService(st, log)
	files := application.NewFileService(st, authz, events.Nop{}, log, 0)
	users := application.NewUserService(st, authz, auth.BcryptHasher{}, log)
	roles := application.NewRoleService(st, authz, log)
	center := application.NewNotificationCenter(st, log, time.Minute)
	sessions := application.NewSessionService(st, auth.BcryptHasher{}, center, log)

	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	authMW, err := middleware.AuthMiddleware(middleware.ModeToken, issuer, sessions)
	require.NoError(t, err)

	e := NewRouter(Handlers{
		Session:       NewSessionHandler(sessions, issuer, log),
		Files:         NewFilesHandler(files, log),
		Users:         NewUsersHandler(users, authz, log),
		Roles:         NewRolesHandler(roles, authz, log),
		Notifications: NewNotificationsHandler(center),
	}, Middleware{
		Auth:          authMW,
		RequestLogger: middleware.RequestLogger(log),
	})
	return &server{e: e, center: center}
}

func (s *server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) login(t *testing.T, username string) string {
	t.Helper()
	rec := s.do(t, stdhttp.MethodPost, "/login", "", map[string]string{"username": username, "password": "password"})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Token string         `json:"token"`
		User  domain.Session `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	assert.Equal(t, username, out.User.Username)
	return out.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestErrorStatus(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidInput:         stdhttp.StatusBadRequest,
		domain.ErrDuplicateUsername:    stdhttp.StatusBadRequest,
		domain.ErrInvalidCredentials:   stdhttp.StatusUnauthorized,
		domain.ErrNoSession:            stdhttp.StatusUnauthorized,
		domain.ErrPermissionDenied:     stdhttp.StatusForbidden,
		domain.ErrProtectedRole:        stdhttp.StatusForbidden,
		domain.ErrNotFound:             stdhttp.StatusNotFound,
		domain.ErrConfirmationRequired: stdhttp.StatusPreconditionRequired,
		domain.ErrTooManyAttempts:      stdhttp.StatusTooManyRequests,
		context.Canceled:               stdhttp.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, errorStatus(err), err.Error())
	}
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, stdhttp.StatusOK, s.do(t, stdhttp.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, stdhttp.StatusUnauthorized, s.do(t, stdhttp.MethodGet, "/files", "", nil).Code)
	assert.Equal(t, stdhttp.StatusUnauthorized, s.do(t, stdhttp.MethodGet, "/files", "garbage", nil).Code)

	token := s.login(t, "officerA")
	rec := s.do(t, stdhttp.MethodGet, "/session", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "user-2", decode[domain.Session](t, rec).ID)

	perms := s.do(t, stdhttp.MethodGet, "/permissions", token, nil)
	require.Equal(t, stdhttp.StatusOK, perms.Code)
	assert.Len(t, decode[[]map[string]string](t, perms), len(domain.AllPermissions))
}

func TestRouter_LoginFailures(t *testing.T) {
	s := newServer(t)
	bad := map[string]string{"username": "admin", "password": "nope"}

	for i := 0; i < 5; i++ {
		assert.Equal(t, stdhttp.StatusUnauthorized, s.do(t, stdhttp.MethodPost, "/login", "", bad).Code)
	}
	assert.Equal(t, stdhttp.StatusTooManyRequests, s.do(t, stdhttp.MethodPost, "/login", "", bad).Code)
}

func TestRouter_OfficerWorkflow(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "officerA")

	rec := s.do(t, stdhttp.MethodGet, "/files", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	cards := decode[[]application.FileCard](t, rec)
	require.Len(t, cards, 2, "officers only see their own files")

	rec = s.do(t, stdhttp.MethodGet, "/files/file-1", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusSeen, decode[domain.FileRecord](t, rec).Status)

	rec = s.do(t, stdhttp.MethodPost, "/files/file-1/reply/begin", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusUnderProcess, decode[domain.FileRecord](t, rec).Status)

	assert.Equal(t, stdhttp.StatusBadRequest, s.do(t, stdhttp.MethodPost, "/files/file-1/reply", token, map[string]string{"text": " "}).Code)

	rec = s.do(t, stdhttp.MethodPost, "/files/file-1/reply", token, map[string]any{
		"text":       "Done.",
		"attachment": map[string]string{"name": "note.txt", "content": "data:text/plain;base64,aGk="},
	})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusSubmitted, decode[domain.FileRecord](t, rec).Status)

	assert.Equal(t, stdhttp.StatusNotFound, s.do(t, stdhttp.MethodGet, "/files/file-404", token, nil).Code)
	assert.Equal(t, stdhttp.StatusForbidden, s.do(t, stdhttp.MethodPost, "/files", token, map[string]string{"name": "x", "description": "y", "deadline": "2030-01-01"}).Code)
	assert.Equal(t, stdhttp.StatusForbidden, s.do(t, stdhttp.MethodGet, "/users", token, nil).Code)
	assert.Equal(t, stdhttp.StatusForbidden, s.do(t, stdhttp.MethodGet, "/users/assignable", token, nil).Code)

	assert.Equal(t, stdhttp.StatusNoContent, s.do(t, stdhttp.MethodPost, "/logout", token, nil).Code)
}

func TestRouter_AdminManagesFilesAndUsers(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "admin")

	assert.Equal(t, stdhttp.StatusBadRequest, s.do(t, stdhttp.MethodPost, "/files", token, map[string]string{"name": "x", "description": "y", "deadline": "soon"}).Code)
	rec := s.do(t, stdhttp.MethodPost, "/files", token, map[string]string{"name": "Audit", "description": "Quarterly audit", "deadline": "2030-01-01"})
	require.Equal(t, stdhttp.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.FileRecord](t, rec)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.True(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Equal(created.Deadline), created.Deadline)

	rec = s.do(t, stdhttp.MethodPost, "/files/forward", token, map[string]any{"fileIds": []string{created.ID}, "userIds": []string{"user-2", "user-3"}})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, stdhttp.MethodGet, "/files/search?q=audit", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Len(t, decode[[]application.FileCard](t, rec), 1)

	rec = s.do(t, stdhttp.MethodGet, "/files/summary", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, 6, decode[application.Summary](t, rec).Total)

	rec = s.do(t, stdhttp.MethodGet, "/users/assignable", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	for _, u := range decode[[]domain.User](t, rec) {
		assert.Empty(t, u.PasswordHash)
	}

	newUser := map[string]string{"name": "Dana", "username": "dana", "password": "pw", "roleId": "role-officer"}
	require.Equal(t, stdhttp.StatusCreated, s.do(t, stdhttp.MethodPost, "/users", token, newUser).Code)
	assert.Equal(t, stdhttp.StatusBadRequest, s.do(t, stdhttp.MethodPost, "/users", token, newUser).Code)

	assert.Equal(t, stdhttp.StatusPreconditionRequired, s.do(t, stdhttp.MethodDelete, "/users/user-4", token, nil).Code)
	assert.Equal(t, stdhttp.StatusNoContent, s.do(t, stdhttp.MethodDelete, "/users/user-4?confirm=true", token, nil).Code)
	assert.Equal(t, stdhttp.StatusNotFound, s.do(t, stdhttp.MethodDelete, "/users/user-4?confirm=true", token, nil).Code)

	rec = s.do(t, stdhttp.MethodGet, "/roles/creatable", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	for _, r := range decode[[]domain.Role](t, rec) {
		assert.NotEqual(t, "role-super-admin", r.ID)
	}
	assert.Equal(t, stdhttp.StatusForbidden, s.do(t, stdhttp.MethodGet, "/roles/deletable", token, nil).Code)
}

func TestRouter_SuperAdminManagesRoles(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "superadmin")

	rec := s.do(t, stdhttp.MethodPost, "/roles", token, map[string]any{"name": "Clerk", "permissions": []string{"CAN_UPLOAD_FILE"}})
	require.Equal(t, stdhttp.StatusCreated, rec.Code, rec.Body.String())
	clerk := decode[domain.Role](t, rec)

	rec = s.do(t, stdhttp.MethodPut, "/roles/"+clerk.ID, token, map[string]any{"name": "Senior Clerk", "permissions": []string{"CAN_UPLOAD_FILE", "CAN_FORWARD_FILE"}})
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "Senior Clerk", decode[domain.Role](t, rec).Name)

	assert.Equal(t, stdhttp.StatusForbidden, s.do(t, stdhttp.MethodDelete, "/roles/role-super-admin?confirm=true", token, nil).Code)
	assert.Equal(t, stdhttp.StatusBadRequest, s.do(t, stdhttp.MethodPost, "/roles", token, map[string]any{"name": "Super Admin"}).Code)

	rec = s.do(t, stdhttp.MethodGet, "/roles/deletable", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Role](t, rec), 3)

	assert.Equal(t, stdhttp.StatusNoContent, s.do(t, stdhttp.MethodDelete, "/roles/"+clerk.ID+"?confirm=1", token, nil).Code)

	rec = s.do(t, stdhttp.MethodGet, "/roles", token, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Role](t, rec), 3)
}

func TestParseDeadline(t *testing.T) {
	got, ok := parseDeadline(" 2030-01-01 ")
	require.True(t, ok)
	assert.True(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Equal(got), got)

	got, ok = parseDeadline("2030-01-01T17:30:00+02:00")
	require.True(t, ok)
	assert.True(t, time.Date(2030, 1, 1, 15, 30, 0, 0, time.UTC).Equal(got), got)

	_, ok = parseDeadline("01/01/2030")
	assert.False(t, ok)
}

func TestRouter_LogoutRevokesToken(t *testing.T) {
	s := newServer(t)
	officer := s.login(t, "officerA")
	second := s.login(t, "officerA")

	require.Equal(t, stdhttp.StatusOK, s.do(t, stdhttp.MethodGet, "/files", officer, nil).Code)
	require.Equal(t, stdhttp.StatusNoContent, s.do(t, stdhttp.MethodPost, "/logout", officer, nil).Code)

	assert.Equal(t, stdhttp.StatusUnauthorized, s.do(t, stdhttp.MethodGet, "/files", officer, nil).Code)
	assert.Equal(t, stdhttp.StatusUnauthorized, s.do(t, stdhttp.MethodGet, "/session", officer, nil).Code)
	assert.Equal(t, stdhttp.StatusUnauthorized, s.do(t, stdhttp.MethodPost, "/logout", officer, nil).Code)

	assert.Equal(t, stdhttp.StatusOK, s.do(t, stdhttp.MethodGet, "/files", second, nil).Code)
}

func TestRouter_DeletedUserTokenIsRejected(t *testing.T) {
	s := newServer(t)
	officer := s.login(t, "officerC")
	admin := s.login(t, "admin")

	require.Equal(t, stdhttp.StatusNoContent, s.do(t, stdhttp.MethodDelete, "/users/user-4?confirm=true", admin, nil).Code)
	assert.Equal(t, stdhttp.StatusUnauthorized, s.do(t, stdhttp.MethodGet, "/files", officer, nil).Code)
}

func TestRouter_Notifications(t *testing.T) {
	s := newServer(t)
	officer := s.login(t, "officerB")
	admin := s.login(t, "admin")

	rec := s.do(t, stdhttp.MethodPost, "/files/file-1/forward", admin, map[string]any{"userIds": []string{"user-3"}})
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, s.center.Refresh(context.Background()))

	rec = s.do(t, stdhttp.MethodGet, "/notifications", officer, nil)
	require.Equal(t, stdhttp.StatusOK, rec.Code)
	notes := decode[[]domain.Notification](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, "file-1", notes[0].FileID)

	assert.Equal(t, stdhttp.StatusNoContent, s.do(t, stdhttp.MethodDelete, "/notifications/"+notes[0].ID, officer, nil).Code)
	assert.Equal(t, stdhttp.StatusNotFound, s.do(t, stdhttp.MethodDelete, "/notifications/"+notes[0].ID, officer, nil).Code)
}
