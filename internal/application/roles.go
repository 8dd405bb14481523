package application

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

type RoleInput struct {
	Name        string              `json:"name"`
	Permissions []domain.Permission `json:"permissions"`
}

type RoleService struct {
	store  ports.Store
	authz  *AuthorizationService
	logger ports.Logger
	newID  func() string
}

func NewRoleService(store ports.Store, authz *AuthorizationService, logger ports.Logger) *RoleService {
	return &RoleService{store: store, authz: authz, logger: logger, newID: uuid.NewString}
}

func (s *RoleService) List(ctx context.Context, actor domain.Session) ([]domain.Role, error) {
	if err := s.authz.Require(ctx, actor, domain.PermManageRoles); err != nil {
		return nil, err
	}
	return s.store.Roles(ctx)
}

func normalizeRoleInput(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, domain.ErrInvalidInput
	}
	perms := make([]domain.Permission, 0, len(in.Permissions))
	for _, p := range in.Permissions {
		if !p.Valid() {
			return in, domain.ErrInvalidInput
		}
		if !slices.Contains(perms, p) {
			perms = append(perms, p)
		}
	}
	in.Permissions = perms
	return in, nil
}

func roleNameTaken(roles []domain.Role, name, exceptID string) bool {
	return slices.ContainsFunc(roles, func(r domain.Role) bool {
		return r.ID != exceptID && strings.EqualFold(strings.TrimSpace(r.Name), name)
	})
}

func (s *RoleService) Create(ctx context.Context, actor domain.Session, in RoleInput) (domain.Role, error) {
	if err := s.authz.Require(ctx, actor, domain.PermManageRoles); err != nil {
		return domain.Role{}, err
	}
	in, err := normalizeRoleInput(in)
	if err != nil {
		return domain.Role{}, err
	}
	if domain.ReservedRoleName(in.Name) {
		return domain.Role{}, domain.ErrInvalidInput
	}
	role := domain.Role{ID: "role-" + s.newID(), Name: in.Name, Permissions: in.Permissions}
	err = s.store.UpdateRoles(ctx, func(roles []domain.Role) ([]domain.Role, error) {
		if roleNameTaken(roles, role.Name, "") {
			return nil, domain.ErrInvalidInput
		}
		return append(roles, role), nil
	})
	if err != nil {
		return domain.Role{}, err
	}
	s.logger.Info(ctx, "role created", "user_id", actor.ID, "role_id", role.ID)
	return role, nil
}

// Update renames a role and replaces its permissions. The protected role only
// accepts an update that leaves it unchanged.
func (s *RoleService) Update(ctx context.Context, actor domain.Session, roleID string, in RoleInput) (domain.Role, error) {
	if err := s.authz.Require(ctx, actor, domain.PermManageRoles); err != nil {
		return domain.Role{}, err
	}
	in, err := normalizeRoleInput(in)
	if err != nil {
		return domain.Role{}, err
	}
	var updated domain.Role
	err = s.store.UpdateRoles(ctx, func(roles []domain.Role) ([]domain.Role, error) {
		idx := slices.IndexFunc(roles, func(r domain.Role) bool { return r.ID == roleID })
		if idx < 0 {
			return nil, domain.ErrNotFound
		}
		r := roles[idx]
		if r.Protected() {
			if in.Name != r.Name || !samePermissions(r.Permissions, in.Permissions) {
				return nil, domain.ErrProtectedRole
			}
			updated = r
			return nil, nil
		}
		if domain.ReservedRoleName(in.Name) || roleNameTaken(roles, in.Name, roleID) {
			return nil, domain.ErrInvalidInput
		}
		r.Name = in.Name
		r.Permissions = in.Permissions
		roles[idx] = r
		updated = r
		return roles, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrProtectedRole) {
			s.logger.Warn(ctx, "protected role change refused", "user_id", actor.ID, "role_id", roleID)
		}
		return domain.Role{}, err
	}
	s.logger.Info(ctx, "role updated", "user_id", actor.ID, "role_id", roleID)
	return updated, nil
}

// Delete removes a role. Users holding it keep the dangling id and lose every
// permission.
func (s *RoleService) Delete(ctx context.Context, actor domain.Session, roleID string, confirm ConfirmFunc) error {
	if err := s.authz.Require(ctx, actor, domain.PermManageRoles); err != nil {
		return err
	}
	roles, err := s.store.Roles(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(roles, func(r domain.Role) bool { return r.ID == roleID })
	if idx < 0 {
		return domain.ErrNotFound
	}
	if roles[idx].Protected() {
		s.logger.Warn(ctx, "protected role delete refused", "user_id", actor.ID, "role_id", roleID)
		return domain.ErrProtectedRole
	}
	if !confirmed(confirm, DeleteRolePrompt) {
		return domain.ErrConfirmationRequired
	}
	err = s.store.UpdateRoles(ctx, func(roles []domain.Role) ([]domain.Role, error) {
		out := make([]domain.Role, 0, len(roles))
		for _, r := range roles {
			if r.ID == roleID && !r.Protected() {
				continue
			}
			out = append(out, r)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "role deleted", "user_id", actor.ID, "role_id", roleID)
	return nil
}

func samePermissions(a, b []domain.Permission) bool {
	if len(a) != len(b) {
		return false
	}
	for _, p := range a {
		if !slices.Contains(b, p) {
			return false
		}
	}
	return true
}
