package http

import (
	stdhttp "net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Middleware struct {
	Auth          echo.MiddlewareFunc
	XRay          echo.MiddlewareFunc
	RequestLogger echo.MiddlewareFunc
}

type Handlers struct {
	Session       *SessionHandler
	Files         *FilesHandler
	Users         *UsersHandler
	Roles         *RolesHandler
	Notifications *NotificationsHandler
}

func newEcho(m Middleware) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if m.XRay != nil {
		e.Use(m.XRay)
	}
	if m.RequestLogger != nil {
		e.Use(m.RequestLogger)
	}
	return e
}

// NewRouter serves the local presentation layer. Only /login and /healthz are
// reachable without a session.
func NewRouter(h Handlers, m Middleware) *echo.Echo {
	e := newEcho(m)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(stdhttp.StatusOK, map[string]string{"status": "ok"})
	})
	e.POST("/login", h.Session.Login)

	api := protected{e: e}
	if m.Auth != nil {
		api.mw = []echo.MiddlewareFunc{m.Auth}
	}
	api.POST("/logout", h.Session.Logout)
	api.GET("/session", h.Session.Current)

	api.GET("/files", h.Files.List)
	api.GET("/files/summary", h.Files.Summary)
	api.GET("/files/search", h.Files.Search)
	api.POST("/files", h.Files.Create)
	api.POST("/files/forward", h.Files.BulkForward)
	api.GET("/files/:id", h.Files.View)
	api.POST("/files/:id/reply/begin", h.Files.BeginReply)
	api.POST("/files/:id/reply", h.Files.Reply)
	api.POST("/files/:id/forward", h.Files.Forward)

	api.GET("/users", h.Users.List)
	api.POST("/users", h.Users.Create)
	api.GET("/users/assignable", h.Users.Assignable)
	api.PUT("/users/:id", h.Users.Update)
	api.DELETE("/users/:id", h.Users.Delete)

	api.GET("/permissions", h.Roles.Permissions)
	api.GET("/roles", h.Roles.List)
	api.POST("/roles", h.Roles.Create)
	api.GET("/roles/creatable", h.Roles.Creatable)
	api.GET("/roles/assignable", h.Roles.Assignable)
	api.GET("/roles/deletable", h.Roles.Deletable)
	api.PUT("/roles/:id", h.Roles.Update)
	api.DELETE("/roles/:id", h.Roles.Delete)

	api.GET("/notifications", h.Notifications.List)
	api.DELETE("/notifications/:id", h.Notifications.Dismiss)
	return e
}

type protected struct {
	e  *echo.Echo
	mw []echo.MiddlewareFunc
}

func (p protected) GET(path string, h echo.HandlerFunc)    { p.e.GET(path, h, p.mw...) }
func (p protected) POST(path string, h echo.HandlerFunc)   { p.e.POST(path, h, p.mw...) }
func (p protected) PUT(path string, h echo.HandlerFunc)    { p.e.PUT(path, h, p.mw...) }
func (p protected) DELETE(path string, h echo.HandlerFunc) { p.e.DELETE(path, h, p.mw...) }
