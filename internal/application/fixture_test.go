package application

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"filetrack/internal/adapters/logger"
	"filetrack/internal/domain"
	"filetrack/internal/infrastructure/kv"
	"filetrack/internal/infrastructure/store"
)

var seededAt = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

var (
	superAdmin = domain.Session{ID: "user-1", Name: "Super Admin User", Username: "superadmin", RoleID: "role-super-admin"}
	officerA   = domain.Session{ID: "user-2", Name: "Officer A", Username: "officerA", RoleID: "role-officer"}
	officerB   = domain.Session{ID: "user-3", Name: "Officer B", Username: "officerB", RoleID: "role-officer"}
	adminUser  = domain.Session{ID: "user-5", Name: "Admin User", Username: "admin", RoleID: "role-admin"}
)

type publisherMock struct{ mock.Mock }

func (m *publisherMock) Publish(ctx context.Context, event domain.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

func (fakeHasher) Verify(hash, plain string) bool {
	return strings.TrimPrefix(hash, "hashed:") == plain && strings.HasPrefix(hash, "hashed:")
}

type fixture struct {
	ctx      context.Context
	store    *store.Store
	events   *publisherMock
	authz    *AuthorizationService
	files    *FileService
	users    *UserService
	roles    *RoleService
	center   *NotificationCenter
	sessions *SessionService
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, kv.NewMemory(), seededAt)
	require.NoError(t, err)

	log := logger.Nop()
	events := new(publisherMock)
	events.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	f := &fixture{ctx: ctx, store: st, events: events, now: seededAt}
	clock := func() time.Time { return f.now }

	f.authz = NewAuthorizationService(st, log)
	f.files = NewFileService(st, f.authz, events, log, 0)
	f.files.now = clock
	ids := 0
	f.files.newID = func() string {
		ids++
		return "test-" + string(rune('a'+ids-1))
	}
	f.users = NewUserService(st, f.authz, fakeHasher{}, log)
	f.roles = NewRoleService(st, f.authz, log)
	f.center = NewNotificationCenter(st, log, DefaultNotificationTTL)
	f.center.now = clock
	f.sessions = NewSessionService(st, fakeHasher{}, f.center, log)
	f.sessions.now = clock
	return f
}

func (f *fixture) file(t *testing.T, id string) domain.FileRecord {
	t.Helper()
	files, err := f.store.Files(f.ctx)
	require.NoError(t, err)
	for _, file := range files {
		if file.ID == id {
			return file
		}
	}
	t.Fatalf("file %s not found", id)
	return domain.FileRecord{}
}

func (f *fixture) user(t *testing.T, id string) (domain.User, bool) {
	t.Helper()
	users, err := f.store.Users(f.ctx)
	require.NoError(t, err)
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

// putFile appends a file created by creator and assigned to assignees.
func (f *fixture) putFile(t *testing.T, id, creator string, status domain.Status, deadline time.Time, assignees ...string) {
	t.Helper()
	err := f.store.UpdateFiles(f.ctx, func(files []domain.FileRecord) ([]domain.FileRecord, error) {
		return append(files, domain.FileRecord{
			ID:          id,
			Name:        "File " + id,
			Description: "desc " + id,
			UploadDate:  f.now,
			Deadline:    deadline,
			Status:      status,
			AssignedTo:  assignees,
			History:     []domain.HistoryEntry{{Action: domain.ActionCreated, User: creator, Timestamp: f.now}},
		}), nil
	})
	require.NoError(t, err)
}
