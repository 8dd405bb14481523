package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

const (
	KeyFiles       = "files"
	KeyUsers       = "users"
	KeyRoles       = "roles"
	KeyCurrentUser = "currentUser"
	KeyRevoked     = "revokedTokens"
)

// Store keeps the three collections and the session as JSON blobs in a KV.
// Every write path goes through mu, so read-modify-write callers never lose
// updates to each other.
type Store struct {
	kv ports.KV
	mu sync.Mutex
}

var _ ports.Store = (*Store)(nil)

// Open seeds any missing collection and normalizes legacy roles.
func Open(ctx context.Context, kv ports.KV, now time.Time) (*Store, error) {
	s := &Store{kv: kv}
	if err := s.seed(ctx, now); err != nil {
		return nil, err
	}
	if err := s.UpdateRoles(ctx, func(roles []domain.Role) ([]domain.Role, error) {
		normalized, changed := domain.NormalizeRoles(roles)
		if !changed {
			return nil, nil
		}
		return normalized, nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) seed(ctx context.Context, now time.Time) error {
	defaults := []struct {
		key  string
		data any
	}{
		{KeyRoles, DefaultRoles()},
		{KeyUsers, DefaultUsers()},
		{KeyFiles, DefaultFiles(now)},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defaults {
		_, ok, err := s.kv.Get(ctx, d.key)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := s.write(ctx, d.key, d.data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string, out any) error {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, raw)
}

func (s *Store) Users(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := s.read(ctx, KeyUsers, &users)
	return users, err
}

func (s *Store) PutUsers(ctx context.Context, users []domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, KeyUsers, nonNil(users))
}

func (s *Store) UpdateUsers(ctx context.Context, fn func([]domain.User) ([]domain.User, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := []domain.User{}
	if err := s.read(ctx, KeyUsers, &users); err != nil {
		return err
	}
	next, err := fn(users)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return s.write(ctx, KeyUsers, next)
}

func (s *Store) Roles(ctx context.Context) ([]domain.Role, error) {
	roles := []domain.Role{}
	err := s.read(ctx, KeyRoles, &roles)
	return roles, err
}

func (s *Store) PutRoles(ctx context.Context, roles []domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, KeyRoles, nonNil(roles))
}

func (s *Store) UpdateRoles(ctx context.Context, fn func([]domain.Role) ([]domain.Role, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := []domain.Role{}
	if err := s.read(ctx, KeyRoles, &roles); err != nil {
		return err
	}
	next, err := fn(roles)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return s.write(ctx, KeyRoles, next)
}

func (s *Store) Files(ctx context.Context) ([]domain.FileRecord, error) {
	files := []domain.FileRecord{}
	err := s.read(ctx, KeyFiles, &files)
	return files, err
}

func (s *Store) PutFiles(ctx context.Context, files []domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, KeyFiles, nonNil(files))
}

// UpdateFiles persists whatever fn returns. A nil slice with a nil error means
// nothing changed and skips the write.
func (s *Store) UpdateFiles(ctx context.Context, fn func([]domain.FileRecord) ([]domain.FileRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := []domain.FileRecord{}
	if err := s.read(ctx, KeyFiles, &files); err != nil {
		return err
	}
	next, err := fn(files)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return s.write(ctx, KeyFiles, next)
}

func (s *Store) Session(ctx context.Context) (domain.Session, bool, error) {
	raw, ok, err := s.kv.Get(ctx, KeyCurrentUser)
	if err != nil || !ok || len(raw) == 0 || string(raw) == "null" {
		return domain.Session{}, false, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, false, fmt.Errorf("store: decode %s: %w", KeyCurrentUser, err)
	}
	if sess.ID == "" {
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (s *Store) SetSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, KeyCurrentUser, sess)
}

func (s *Store) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, KeyCurrentUser)
}

// RevokeToken records r and drops revocations whose tokens have expired by now.
func (s *Store) RevokeToken(ctx context.Context, r domain.Revocation, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := []domain.Revocation{}
	if err := s.read(ctx, KeyRevoked, &revoked); err != nil {
		return err
	}
	revoked = slices.DeleteFunc(revoked, func(x domain.Revocation) bool {
		return !x.ExpiresAt.After(now) || x.TokenID == r.TokenID
	})
	return s.write(ctx, KeyRevoked, append(revoked, r))
}

func (s *Store) TokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked := []domain.Revocation{}
	if err := s.read(ctx, KeyRevoked, &revoked); err != nil {
		return false, err
	}
	return slices.ContainsFunc(revoked, func(x domain.Revocation) bool { return x.TokenID == tokenID }), nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
