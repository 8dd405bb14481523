package http

import (
	"errors"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"filetrack/internal/adapters/http/middleware"
	"filetrack/internal/application"
	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrDuplicateUsername):
		return stdhttp.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrNoSession):
		return stdhttp.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied), errors.Is(err, domain.ErrProtectedRole):
		return stdhttp.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return stdhttp.StatusNotFound
	case errors.Is(err, domain.ErrConfirmationRequired):
		return stdhttp.StatusPreconditionRequired
	case errors.Is(err, domain.ErrTooManyAttempts):
		return stdhttp.StatusTooManyRequests
	default:
		return stdhttp.StatusInternalServerError
	}
}

func handleError(c echo.Context, logger ports.Logger, err error) error {
	status := errorStatus(err)
	if status == stdhttp.StatusInternalServerError {
		logger.Error(c.Request().Context(), "request failed", "path", c.Path(), "error", err)
		return c.JSON(status, map[string]string{"error": "internal error"})
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func invalidPayload(c echo.Context) error {
	return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid payload"})
}

func actor(c echo.Context) domain.Session {
	sess, _ := middleware.SessionFrom(c)
	return sess
}

func confirmParam(c echo.Context) application.ConfirmFunc {
	ok, err := strconv.ParseBool(c.QueryParam("confirm"))
	return application.Confirm(err == nil && ok)
}

type TokenIssuer interface {
	Issue(s domain.Session) (string, error)
}

type SessionHandler struct {
	sessions *application.SessionService
	tokens   TokenIssuer
	logger   ports.Logger
}

func NewSessionHandler(sessions *application.SessionService, tokens TokenIssuer, logger ports.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens, logger: logger}
}

func (h *SessionHandler) Login(c echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	sess, err := h.sessions.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	token, err := h.tokens.Issue(sess)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, map[string]any{"token": token, "user": sess})
}

func (h *SessionHandler) Logout(c echo.Context) error {
	if err := h.sessions.Logout(c.Request().Context(), actor(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

func (h *SessionHandler) Current(c echo.Context) error {
	return c.JSON(stdhttp.StatusOK, actor(c))
}

type FilesHandler struct {
	files  *application.FileService
	logger ports.Logger
}

func NewFilesHandler(files *application.FileService, logger ports.Logger) *FilesHandler {
	return &FilesHandler{files: files, logger: logger}
}

// parseDeadline accepts RFC 3339 timestamps and plain dates from a date
// picker. A plain date means midnight UTC at the start of that day.
func parseDeadline(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (h *FilesHandler) List(c echo.Context) error {
	cards, err := h.files.List(c.Request().Context(), actor(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, cards)
}

func (h *FilesHandler) Summary(c echo.Context) error {
	summary, err := h.files.Summary(c.Request().Context(), actor(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, summary)
}

func (h *FilesHandler) Search(c echo.Context) error {
	cards, err := h.files.Search(c.Request().Context(), actor(c), c.QueryParam("q"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, cards)
}

func (h *FilesHandler) Create(c echo.Context) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Deadline    string `json:"deadline"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	deadline, ok := parseDeadline(req.Deadline)
	if !ok {
		return c.JSON(stdhttp.StatusBadRequest, map[string]string{"error": "invalid deadline"})
	}
	f, err := h.files.Create(c.Request().Context(), actor(c), application.NewFile{
		Name:        req.Name,
		Description: req.Description,
		Deadline:    deadline,
	})
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusCreated, f)
}

func (h *FilesHandler) View(c echo.Context) error {
	f, err := h.files.View(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, f)
}

func (h *FilesHandler) BeginReply(c echo.Context) error {
	f, err := h.files.BeginReply(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, f)
}

func (h *FilesHandler) Reply(c echo.Context) error {
	var req application.ReplyInput
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	f, err := h.files.Reply(c.Request().Context(), actor(c), c.Param("id"), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, f)
}

func (h *FilesHandler) Forward(c echo.Context) error {
	var req struct {
		UserIDs []string `json:"userIds"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	f, err := h.files.Forward(c.Request().Context(), actor(c), c.Param("id"), req.UserIDs)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, f)
}

func (h *FilesHandler) BulkForward(c echo.Context) error {
	var req struct {
		FileIDs []string `json:"fileIds"`
		UserIDs []string `json:"userIds"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	files, err := h.files.BulkForward(c.Request().Context(), actor(c), req.FileIDs, req.UserIDs)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, files)
}

type UsersHandler struct {
	users  *application.UserService
	authz  *application.AuthorizationService
	logger ports.Logger
}

func NewUsersHandler(users *application.UserService, authz *application.AuthorizationService, logger ports.Logger) *UsersHandler {
	return &UsersHandler{users: users, authz: authz, logger: logger}
}

func (h *UsersHandler) List(c echo.Context) error {
	rows, err := h.users.List(c.Request().Context(), actor(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, rows)
}

func (h *UsersHandler) Create(c echo.Context) error {
	var req application.UserInput
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	u, err := h.users.Create(c.Request().Context(), actor(c), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusCreated, u)
}

func (h *UsersHandler) Update(c echo.Context) error {
	var req application.UserInput
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	u, err := h.users.Update(c.Request().Context(), actor(c), c.Param("id"), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, u)
}

func (h *UsersHandler) Delete(c echo.Context) error {
	if err := h.users.Delete(c.Request().Context(), actor(c), c.Param("id"), confirmParam(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

func (h *UsersHandler) Assignable(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.authz.Require(ctx, actor(c), domain.PermForwardFile); err != nil {
		return handleError(c, h.logger, err)
	}
	users, err := h.authz.AssignableUsers(ctx)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, users)
}

type RolesHandler struct {
	roles  *application.RoleService
	authz  *application.AuthorizationService
	logger ports.Logger
}

func NewRolesHandler(roles *application.RoleService, authz *application.AuthorizationService, logger ports.Logger) *RolesHandler {
	return &RolesHandler{roles: roles, authz: authz, logger: logger}
}

func (h *RolesHandler) List(c echo.Context) error {
	roles, err := h.roles.List(c.Request().Context(), actor(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, roles)
}

func (h *RolesHandler) Create(c echo.Context) error {
	var req application.RoleInput
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	r, err := h.roles.Create(c.Request().Context(), actor(c), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusCreated, r)
}

func (h *RolesHandler) Update(c echo.Context) error {
	var req application.RoleInput
	if err := c.Bind(&req); err != nil {
		return invalidPayload(c)
	}
	r, err := h.roles.Update(c.Request().Context(), actor(c), c.Param("id"), req)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, r)
}

func (h *RolesHandler) Delete(c echo.Context) error {
	if err := h.roles.Delete(c.Request().Context(), actor(c), c.Param("id"), confirmParam(c)); err != nil {
		return handleError(c, h.logger, err)
	}
	return c.NoContent(stdhttp.StatusNoContent)
}

func (h *RolesHandler) Creatable(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.authz.Require(ctx, actor(c), domain.PermManageUsers); err != nil {
		return handleError(c, h.logger, err)
	}
	roles, err := h.authz.CreatableRoles(ctx, actor(c))
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, roles)
}

func (h *RolesHandler) Assignable(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.authz.Require(ctx, actor(c), domain.PermManageUsers); err != nil {
		return handleError(c, h.logger, err)
	}
	roles, err := h.authz.AssignableRoles(ctx)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, roles)
}

func (h *RolesHandler) Deletable(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.authz.Require(ctx, actor(c), domain.PermManageRoles); err != nil {
		return handleError(c, h.logger, err)
	}
	roles, err := h.authz.DeletableRoles(ctx)
	if err != nil {
		return handleError(c, h.logger, err)
	}
	return c.JSON(stdhttp.StatusOK, roles)
}

// Permissions lists the fixed permission set with the descriptions shown on
// the role editor.
func (h *RolesHandler) Permissions(c echo.Context) error {
	type permission struct {
		Name        domain.Permission `json:"name"`
		Description string            `json:"description"`
	}
	out := make([]permission, 0, len(domain.AllPermissions))
	for _, p := range domain.AllPermissions {
		out = append(out, permission{Name: p, Description: p.Description()})
	}
	return c.JSON(stdhttp.StatusOK, out)
}

type NotificationsHandler struct {
	center *application.NotificationCenter
}

func NewNotificationsHandler(center *application.NotificationCenter) *NotificationsHandler {
	return &NotificationsHandler{center: center}
}

func (h *NotificationsHandler) List(c echo.Context) error {
	return c.JSON(stdhttp.StatusOK, h.center.Active(actor(c).ID))
}

func (h *NotificationsHandler) Dismiss(c echo.Context) error {
	if !h.center.Dismiss(actor(c).ID, c.Param("id")) {
		return c.JSON(stdhttp.StatusNotFound, map[string]string{"error": domain.ErrNotFound.Error()})
	}
	return c.NoContent(stdhttp.StatusNoContent)
}
