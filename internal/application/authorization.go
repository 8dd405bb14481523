package application

import (
	"context"
	"slices"

	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

// directory is one consistent read of users and roles that policy checks run
// against.
type directory struct {
	users []domain.User
	roles []domain.Role
}

func (d directory) role(roleID string) (domain.Role, bool) {
	for _, r := range d.roles {
		if r.ID == roleID {
			return r, true
		}
	}
	return domain.Role{}, false
}

func (d directory) user(userID string) (domain.User, bool) {
	for _, u := range d.users {
		if u.ID == userID {
			return u, true
		}
	}
	return domain.User{}, false
}

func (d directory) kind(roleID string) domain.RoleKind {
	r, _ := d.role(roleID)
	return r.Kind
}

func (d directory) hasPermission(actor domain.Session, p domain.Permission) bool {
	if actor.ID == "" {
		return false
	}
	r, ok := d.role(actor.RoleID)
	return ok && r.Has(p)
}

func (d directory) canChangeRole(actor domain.Session) bool {
	return actor.ID != "" && d.kind(actor.RoleID) == domain.RoleKindSuperAdmin
}

func (d directory) canManage(actor domain.Session, target domain.User) bool {
	if actor.ID == "" || target.ID == actor.ID {
		return false
	}
	actorRole, ok := d.role(actor.RoleID)
	if !ok {
		return false
	}
	targetRole, ok := d.role(target.RoleID)
	if !ok || targetRole.Kind == domain.RoleKindSuperAdmin {
		return false
	}
	switch actorRole.Kind {
	case domain.RoleKindSuperAdmin:
		return true
	case domain.RoleKindAdmin:
		return targetRole.Kind == domain.RoleKindAdmin || targetRole.Kind == domain.RoleKindOfficer
	default:
		return false
	}
}

func (d directory) creatableRoles(actor domain.Session) []domain.Role {
	out := []domain.Role{}
	if actor.ID == "" {
		return out
	}
	switch d.kind(actor.RoleID) {
	case domain.RoleKindSuperAdmin:
		for _, r := range d.roles {
			if !r.Protected() {
				out = append(out, r)
			}
		}
	case domain.RoleKindAdmin:
		for _, r := range d.roles {
			if r.Kind == domain.RoleKindAdmin || r.Kind == domain.RoleKindOfficer {
				out = append(out, r)
			}
		}
	}
	return out
}

func (d directory) assignableRoles() []domain.Role {
	out := []domain.Role{}
	for _, r := range d.roles {
		if !r.Protected() {
			out = append(out, r)
		}
	}
	return out
}

func (d directory) assignableUser(u domain.User) bool {
	k := d.kind(u.RoleID)
	return k == domain.RoleKindAdmin || k == domain.RoleKindOfficer
}

func (d directory) assignableUsers() []domain.User {
	out := []domain.User{}
	for _, u := range d.users {
		if d.assignableUser(u) {
			out = append(out, u.Redacted())
		}
	}
	return out
}

// canReply resolves the file's creator by display name, first match wins.
func (d directory) canReply(f domain.FileRecord) bool {
	creator, ok := f.Creator()
	if !ok {
		return false
	}
	idx := slices.IndexFunc(d.users, func(u domain.User) bool { return u.Name == creator })
	if idx < 0 {
		return false
	}
	k := d.kind(d.users[idx].RoleID)
	return k == domain.RoleKindAdmin || k == domain.RoleKindSuperAdmin
}

func (d directory) userNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, ok := d.user(id); ok {
			names = append(names, u.Name)
		} else {
			names = append(names, domain.UnknownUserName)
		}
	}
	return names
}

type AuthorizationService struct {
	store  ports.Store
	logger ports.Logger
}

func NewAuthorizationService(store ports.Store, logger ports.Logger) *AuthorizationService {
	return &AuthorizationService{store: store, logger: logger}
}

func (s *AuthorizationService) directory(ctx context.Context) (directory, error) {
	users, err := s.store.Users(ctx)
	if err != nil {
		return directory{}, err
	}
	roles, err := s.store.Roles(ctx)
	if err != nil {
		return directory{}, err
	}
	return directory{users: users, roles: roles}, nil
}

func (s *AuthorizationService) HasPermission(ctx context.Context, actor domain.Session, p domain.Permission) (bool, error) {
	if actor.ID == "" {
		return false, nil
	}
	d, err := s.directory(ctx)
	if err != nil {
		return false, err
	}
	return d.hasPermission(actor, p), nil
}

// Require returns ErrNoSession without an actor and ErrPermissionDenied when
// the actor's role lacks p.
func (s *AuthorizationService) Require(ctx context.Context, actor domain.Session, p domain.Permission) error {
	if actor.ID == "" {
		return domain.ErrNoSession
	}
	ok, err := s.HasPermission(ctx, actor, p)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn(ctx, "permission denied", "user_id", actor.ID, "permission", string(p))
		return domain.ErrPermissionDenied
	}
	return nil
}

func (s *AuthorizationService) CanChangeRole(ctx context.Context, actor domain.Session) (bool, error) {
	d, err := s.directory(ctx)
	if err != nil {
		return false, err
	}
	return d.canChangeRole(actor), nil
}

func (s *AuthorizationService) CanManage(ctx context.Context, actor domain.Session, targetUserID string) (bool, error) {
	d, err := s.directory(ctx)
	if err != nil {
		return false, err
	}
	target, ok := d.user(targetUserID)
	if !ok {
		return false, domain.ErrNotFound
	}
	return d.canManage(actor, target), nil
}

func (s *AuthorizationService) CreatableRoles(ctx context.Context, actor domain.Session) ([]domain.Role, error) {
	d, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}
	return d.creatableRoles(actor), nil
}

// AssignableRoles lists the roles a user may be moved to. The protected role
// is never among them.
func (s *AuthorizationService) AssignableRoles(ctx context.Context) ([]domain.Role, error) {
	d, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}
	return d.assignableRoles(), nil
}

func (s *AuthorizationService) DeletableRoles(ctx context.Context) ([]domain.Role, error) {
	return s.AssignableRoles(ctx)
}

// AssignableUsers lists forward targets with credentials stripped.
func (s *AuthorizationService) AssignableUsers(ctx context.Context) ([]domain.User, error) {
	d, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}
	return d.assignableUsers(), nil
}

func (s *AuthorizationService) CanReply(ctx context.Context, f domain.FileRecord) (bool, error) {
	d, err := s.directory(ctx)
	if err != nil {
		return false, err
	}
	return d.canReply(f), nil
}
