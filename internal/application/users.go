package application

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

const (
	DeleteUserPrompt = "Are you sure you want to delete this user? This cannot be undone and may affect file history."
	DeleteRolePrompt = "Are you sure you want to delete this role? This cannot be undone."
)

// ConfirmFunc asks the acting user to approve a destructive change.
type ConfirmFunc func(prompt string) bool

func confirmed(confirm ConfirmFunc, prompt string) bool {
	return confirm != nil && confirm(prompt)
}

// Confirm answers every prompt with ok, for callers that collected the
// approval up front.
func Confirm(ok bool) ConfirmFunc {
	return func(string) bool { return ok }
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

type UserInput struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	RoleID   string `json:"roleId"`
}

// UserRow is a user as the management screen lists it.
type UserRow struct {
	domain.User
	RoleName   string `json:"roleName"`
	Manageable bool   `json:"manageable"`
}

type UserService struct {
	store  ports.Store
	authz  *AuthorizationService
	hasher PasswordHasher
	logger ports.Logger
	newID  func() string
}

func NewUserService(store ports.Store, authz *AuthorizationService, hasher PasswordHasher, logger ports.Logger) *UserService {
	return &UserService{store: store, authz: authz, hasher: hasher, logger: logger, newID: uuid.NewString}
}

func (s *UserService) List(ctx context.Context, actor domain.Session) ([]UserRow, error) {
	if err := s.authz.Require(ctx, actor, domain.PermManageUsers); err != nil {
		return nil, err
	}
	d, err := s.authz.directory(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]UserRow, 0, len(d.users))
	for _, u := range d.users {
		roleName := domain.UnknownUserName
		if r, ok := d.role(u.RoleID); ok {
			roleName = r.Name
		}
		rows = append(rows, UserRow{User: u.Redacted(), RoleName: roleName, Manageable: d.canManage(actor, u)})
	}
	return rows, nil
}

func (s *UserService) Create(ctx context.Context, actor domain.Session, in UserInput) (domain.User, error) {
	if err := s.authz.Require(ctx, actor, domain.PermManageUsers); err != nil {
		return domain.User{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	if in.Name == "" || in.Username == "" || in.Password == "" || in.RoleID == "" {
		return domain.User{}, domain.ErrInvalidInput
	}
	d, err := s.authz.directory(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if !slices.ContainsFunc(d.creatableRoles(actor), func(r domain.Role) bool { return r.ID == in.RoleID }) {
		s.logger.Warn(ctx, "role not creatable", "user_id", actor.ID, "role_id", in.RoleID)
		return domain.User{}, domain.ErrPermissionDenied
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           "user-" + s.newID(),
		Name:         in.Name,
		Username:     in.Username,
		PasswordHash: hash,
		RoleID:       in.RoleID,
	}
	err = s.store.UpdateUsers(ctx, func(users []domain.User) ([]domain.User, error) {
		if usernameTaken(users, u.Username, "") {
			return nil, domain.ErrDuplicateUsername
		}
		return append(users, u), nil
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info(ctx, "user created", "user_id", actor.ID, "target_id", u.ID, "role_id", u.RoleID)
	return u.Redacted(), nil
}

// Update edits a managed user. An empty password keeps the current one and an
// empty role id keeps the current role.
func (s *UserService) Update(ctx context.Context, actor domain.Session, userID string, in UserInput) (domain.User, error) {
	if err := s.authz.Require(ctx, actor, domain.PermManageUsers); err != nil {
		return domain.User{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	if in.Name == "" || in.Username == "" {
		return domain.User{}, domain.ErrInvalidInput
	}
	d, err := s.authz.directory(ctx)
	if err != nil {
		return domain.User{}, err
	}
	target, ok := d.user(userID)
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	if !d.canManage(actor, target) {
		s.logger.Warn(ctx, "user not manageable", "user_id", actor.ID, "target_id", userID)
		return domain.User{}, domain.ErrPermissionDenied
	}
	if in.RoleID != "" && in.RoleID != target.RoleID {
		if !d.canChangeRole(actor) {
			return domain.User{}, domain.ErrPermissionDenied
		}
		r, ok := d.role(in.RoleID)
		if !ok {
			return domain.User{}, domain.ErrInvalidInput
		}
		if r.Protected() {
			return domain.User{}, domain.ErrPermissionDenied
		}
	}
	var hash string
	if in.Password != "" {
		if hash, err = s.hasher.Hash(in.Password); err != nil {
			return domain.User{}, err
		}
	}

	var updated domain.User
	err = s.store.UpdateUsers(ctx, func(users []domain.User) ([]domain.User, error) {
		idx := slices.IndexFunc(users, func(u domain.User) bool { return u.ID == userID })
		if idx < 0 {
			return nil, domain.ErrNotFound
		}
		if usernameTaken(users, in.Username, userID) {
			return nil, domain.ErrDuplicateUsername
		}
		u := users[idx]
		u.Name = in.Name
		u.Username = in.Username
		if in.RoleID != "" {
			u.RoleID = in.RoleID
		}
		if hash != "" {
			u.PasswordHash = hash
			u.LegacyPassword = ""
		}
		users[idx] = u
		updated = u
		return users, nil
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info(ctx, "user updated", "user_id", actor.ID, "target_id", userID)
	return updated.Redacted(), nil
}

// Delete removes a managed user. File history keeps the user's name.
func (s *UserService) Delete(ctx context.Context, actor domain.Session, userID string, confirm ConfirmFunc) error {
	if err := s.authz.Require(ctx, actor, domain.PermManageUsers); err != nil {
		return err
	}
	ok, err := s.authz.CanManage(ctx, actor, userID)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn(ctx, "user not manageable", "user_id", actor.ID, "target_id", userID)
		return domain.ErrPermissionDenied
	}
	if !confirmed(confirm, DeleteUserPrompt) {
		return domain.ErrConfirmationRequired
	}
	err = s.store.UpdateUsers(ctx, func(users []domain.User) ([]domain.User, error) {
		out := make([]domain.User, 0, len(users))
		for _, u := range users {
			if u.ID != userID {
				out = append(out, u)
			}
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "user deleted", "user_id", actor.ID, "target_id", userID)
	return nil
}

func usernameTaken(users []domain.User, username, exceptID string) bool {
	return slices.ContainsFunc(users, func(u domain.User) bool {
		return u.Username == username && u.ID != exceptID
	})
}
