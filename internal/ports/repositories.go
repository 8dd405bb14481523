package ports

import (
	"context"
	"time"

	"filetrack/internal/domain"
)

// KV is the raw persistence medium: one JSON blob per key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store is the typed view over KV. The Update* methods run fn under a single
// writer lock; fn returning a nil slice and nil error leaves the key untouched.
type Store interface {
	Users(ctx context.Context) ([]domain.User, error)
	PutUsers(ctx context.Context, users []domain.User) error
	UpdateUsers(ctx context.Context, fn func([]domain.User) ([]domain.User, error)) error

	Roles(ctx context.Context) ([]domain.Role, error)
	PutRoles(ctx context.Context, roles []domain.Role) error
	UpdateRoles(ctx context.Context, fn func([]domain.Role) ([]domain.Role, error)) error

	Files(ctx context.Context) ([]domain.FileRecord, error)
	PutFiles(ctx context.Context, files []domain.FileRecord) error
	UpdateFiles(ctx context.Context, fn func([]domain.FileRecord) ([]domain.FileRecord, error)) error

	Session(ctx context.Context) (domain.Session, bool, error)
	SetSession(ctx context.Context, s domain.Session) error
	ClearSession(ctx context.Context) error

	RevokeToken(ctx context.Context, r domain.Revocation, now time.Time) error
	TokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.AuditEvent) error
}
