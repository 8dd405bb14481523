package application

import (
	"context"
	"crypto/subtle"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

const (
	loginBurst  = 5
	loginRefill = time.Minute

	// revocationTTL bounds a revocation whose token carried no expiry.
	revocationTTL = 24 * time.Hour
)

type SessionService struct {
	store  ports.Store
	hasher PasswordHasher
	center *NotificationCenter
	logger ports.Logger
	now    func() time.Time

	mu        sync.Mutex
	attempts  map[string]*rate.Limiter
	lastSweep time.Time
}

func NewSessionService(store ports.Store, hasher PasswordHasher, center *NotificationCenter, logger ports.Logger) *SessionService {
	return &SessionService{
		store:    store,
		hasher:   hasher,
		center:   center,
		logger:   logger,
		now:      time.Now,
		attempts: map[string]*rate.Limiter{},
	}
}

// limiter returns the attempt budget for username. At most once per refill
// period it forgets limiters that have refilled completely, since a fresh
// limiter behaves the same.
func (s *SessionService) limiter(username string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSweep) >= loginRefill {
		for name, lim := range s.attempts {
			if lim.TokensAt(now) >= loginBurst {
				delete(s.attempts, name)
			}
		}
		s.lastSweep = now
	}
	lim, ok := s.attempts[username]
	if !ok {
		lim = rate.NewLimiter(rate.Every(loginRefill), loginBurst)
		s.attempts[username] = lim
	}
	return lim
}

func (s *SessionService) resetAttempts(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, username)
}

// Login checks the credentials, persists the session and starts watching the
// user's assignments. Each failure spends one attempt from the username's
// budget.
func (s *SessionService) Login(ctx context.Context, username, password string) (domain.Session, error) {
	now := s.now()
	lim := s.limiter(username, now)
	if lim.TokensAt(now) < 1 {
		s.logger.Warn(ctx, "login throttled", "username", username)
		return domain.Session{}, domain.ErrTooManyAttempts
	}

	users, err := s.store.Users(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	idx := slices.IndexFunc(users, func(u domain.User) bool { return u.Username == username })
	if idx < 0 || !s.verify(users[idx], password) {
		lim.AllowN(now, 1)
		s.logger.Warn(ctx, "login failed", "username", username)
		return domain.Session{}, domain.ErrInvalidCredentials
	}
	user := users[idx]
	s.resetAttempts(username)

	if user.PasswordHash == "" {
		s.migrateLegacyPassword(ctx, user.ID, password)
	}

	sess := user.Profile()
	if err := s.store.SetSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	if s.center != nil {
		if err := s.center.Watch(ctx, sess.ID); err != nil {
			s.logger.Error(ctx, "start notifications failed", "user_id", sess.ID, "error", err)
		}
	}
	s.logger.Info(ctx, "user logged in", "user_id", sess.ID)
	return sess, nil
}

func (s *SessionService) verify(u domain.User, password string) bool {
	if u.PasswordHash != "" {
		return s.hasher.Verify(u.PasswordHash, password)
	}
	if u.LegacyPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(u.LegacyPassword), []byte(password)) == 1
}

func (s *SessionService) migrateLegacyPassword(ctx context.Context, userID, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error(ctx, "hash legacy password failed", "user_id", userID, "error", err)
		return
	}
	err = s.store.UpdateUsers(ctx, func(users []domain.User) ([]domain.User, error) {
		idx := slices.IndexFunc(users, func(u domain.User) bool { return u.ID == userID })
		if idx < 0 || users[idx].PasswordHash != "" {
			return nil, nil
		}
		users[idx].PasswordHash = hash
		users[idx].LegacyPassword = ""
		return users, nil
	})
	if err != nil {
		s.logger.Error(ctx, "migrate legacy password failed", "user_id", userID, "error", err)
		return
	}
	s.logger.Info(ctx, "legacy password migrated", "user_id", userID)
}

// Logout clears the persisted session and stops the actor's notifications.
// A token-carried actor also has its token revoked. An empty actor logs out
// whoever holds the persisted session.
func (s *SessionService) Logout(ctx context.Context, actor domain.Session) error {
	persisted, ok, err := s.store.Session(ctx)
	if err != nil {
		return err
	}
	if actor.TokenID != "" {
		now := s.now()
		expires := actor.ExpiresAt
		if expires.IsZero() {
			expires = now.Add(revocationTTL)
		}
		if err := s.store.RevokeToken(ctx, domain.Revocation{TokenID: actor.TokenID, ExpiresAt: expires}, now); err != nil {
			return err
		}
	}
	if err := s.store.ClearSession(ctx); err != nil {
		return err
	}
	userID := actor.ID
	if userID == "" && ok {
		userID = persisted.ID
	}
	if userID == "" {
		return nil
	}
	if s.center != nil {
		s.center.Unwatch(userID)
	}
	s.logger.Info(ctx, "user logged out", "user_id", userID)
	return nil
}

// Restore returns the persisted session. A session whose user has since been
// deleted is cleared.
func (s *SessionService) Restore(ctx context.Context) (domain.Session, error) {
	sess, ok, err := s.store.Session(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, domain.ErrNoSession
	}
	users, err := s.store.Users(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	idx := slices.IndexFunc(users, func(u domain.User) bool { return u.ID == sess.ID })
	if idx < 0 {
		if err := s.store.ClearSession(ctx); err != nil {
			return domain.Session{}, err
		}
		return domain.Session{}, domain.ErrNoSession
	}
	sess = users[idx].Profile()
	if s.center != nil {
		if err := s.center.Watch(ctx, sess.ID); err != nil {
			s.logger.Error(ctx, "start notifications failed", "user_id", sess.ID, "error", err)
		}
	}
	return sess, nil
}

// Resolve reloads the user behind a session carried by a token, so renames
// and role changes apply immediately. Deleted users and logged out tokens are
// rejected.
func (s *SessionService) Resolve(ctx context.Context, sess domain.Session) (domain.Session, error) {
	if sess.ID == "" {
		return domain.Session{}, domain.ErrNoSession
	}
	if sess.TokenID != "" {
		revoked, err := s.store.TokenRevoked(ctx, sess.TokenID)
		if err != nil {
			return domain.Session{}, err
		}
		if revoked {
			return domain.Session{}, domain.ErrNoSession
		}
	}
	users, err := s.store.Users(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	idx := slices.IndexFunc(users, func(u domain.User) bool { return u.ID == sess.ID })
	if idx < 0 {
		return domain.Session{}, domain.ErrNoSession
	}
	fresh := users[idx].Profile()
	fresh.TokenID, fresh.ExpiresAt = sess.TokenID, sess.ExpiresAt
	if s.center != nil {
		if err := s.center.Watch(ctx, fresh.ID); err != nil {
			s.logger.Error(ctx, "start notifications failed", "user_id", fresh.ID, "error", err)
		}
	}
	return fresh, nil
}
