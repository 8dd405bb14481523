package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"filetrack/internal/domain"
)

type Mode string

const (
	// ModeToken requires a bearer token on every protected request.
	ModeToken Mode = "token"
	// ModeLocal also accepts the session persisted under currentUser when no
	// token is sent.
	ModeLocal Mode = "local"
)

const sessionKey = "session"

func ParseAuthMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ModeToken, nil
	case ModeToken, ModeLocal:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid auth mode %q", raw)
	}
}

type TokenParser interface {
	Parse(raw string) (domain.Session, error)
}

// SessionSource turns token claims or the persisted session into a live one.
type SessionSource interface {
	Resolve(ctx context.Context, sess domain.Session) (domain.Session, error)
	Restore(ctx context.Context) (domain.Session, error)
}

func AuthMiddleware(mode Mode, tokens TokenParser, sessions SessionSource) (echo.MiddlewareFunc, error) {
	if mode != ModeToken && mode != ModeLocal {
		return nil, errors.New("invalid auth mode")
	}
	if tokens == nil || sessions == nil {
		return nil, errors.New("auth middleware needs a token parser and a session source")
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			var (
				sess domain.Session
				err  error
			)
			if raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization)); ok {
				sess, err = tokens.Parse(raw)
				if err == nil {
					sess, err = sessions.Resolve(ctx, sess)
				}
			} else if mode == ModeLocal {
				sess, err = sessions.Restore(ctx)
			} else {
				err = domain.ErrNoSession
			}
			switch {
			case errors.Is(err, domain.ErrNoSession):
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": domain.ErrNoSession.Error()})
			case err != nil:
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
			c.Set(sessionKey, sess)
			return next(c)
		}
	}, nil
}

// SessionFrom returns the session stored by AuthMiddleware.
func SessionFrom(c echo.Context) (domain.Session, bool) {
	sess, ok := c.Get(sessionKey).(domain.Session)
	return sess, ok && sess.ID != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
