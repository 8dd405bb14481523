package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"filetrack/internal/domain"
)

const defaultTokenTTL = 12 * time.Hour

type sessionClaims struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	RoleID   string `json:"roleId"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens carrying the acting user.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (i *TokenIssuer) Issue(s domain.Session) (string, error) {
	now := i.now().UTC()
	claims := sessionClaims{
		Name:     s.Name,
		Username: s.Username,
		RoleID:   s.RoleID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *TokenIssuer) Parse(raw string) (domain.Session, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return domain.Session{}, domain.ErrNoSession
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return domain.Session{}, domain.ErrNoSession
	}
	return domain.Session{
		ID:        claims.Subject,
		Name:      claims.Name,
		Username:  claims.Username,
		RoleID:    claims.RoleID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
