package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"filetrack/internal/domain"
	"filetrack/internal/ports"
)

const DefaultNotificationTTL = 5 * time.Second

// Detector remembers which pending files were assigned to a user on the last
// observation and reports the ones that are new since then.
type Detector struct {
	primed  bool
	pending map[string]struct{}
}

func NewDetector() *Detector {
	return &Detector{pending: map[string]struct{}{}}
}

// Observe records the user's pending set. The first call only sets the
// baseline and never notifies.
func (d *Detector) Observe(files []domain.FileRecord, userID string, now time.Time) []domain.Notification {
	current := map[string]struct{}{}
	var fresh []domain.FileRecord
	for _, f := range files {
		if f.Status != domain.StatusPending || !f.AssignedToUser(userID) {
			continue
		}
		current[f.ID] = struct{}{}
		if _, seen := d.pending[f.ID]; !seen {
			fresh = append(fresh, f)
		}
	}
	d.pending = current
	if !d.primed {
		d.primed = true
		return nil
	}
	out := make([]domain.Notification, 0, len(fresh))
	for _, f := range fresh {
		out = append(out, domain.Notification{
			ID:        fmt.Sprintf("notif-%s-%d", f.ID, now.UnixMilli()),
			FileID:    f.ID,
			Message:   `New file assigned: "` + f.Name + `"`,
			CreatedAt: now,
		})
	}
	return out
}

// Inbox holds raised notifications until they are dismissed or expire.
type Inbox struct {
	ttl   time.Duration
	mu    sync.Mutex
	items []domain.Notification
}

func NewInbox(ttl time.Duration) *Inbox {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &Inbox{ttl: ttl}
}

func (b *Inbox) Push(notes ...domain.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, notes...)
}

func (b *Inbox) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.items {
		if n.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// Active drops expired notifications and returns the rest in arrival order.
func (b *Inbox) Active(now time.Time) []domain.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.items[:0]
	for _, n := range b.items {
		if now.Sub(n.CreatedAt) < b.ttl {
			kept = append(kept, n)
		}
	}
	b.items = kept
	return append([]domain.Notification{}, kept...)
}

type watch struct {
	detector *Detector
	inbox    *Inbox
}

// NotificationCenter runs one detector and inbox per signed-in user.
type NotificationCenter struct {
	store  ports.Store
	logger ports.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	watchers map[string]*watch
}

func NewNotificationCenter(store ports.Store, logger ports.Logger, ttl time.Duration) *NotificationCenter {
	return &NotificationCenter{
		store:    store,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		watchers: map[string]*watch{},
	}
}

func (c *NotificationCenter) snapshot(ctx context.Context) ([]domain.FileRecord, time.Time, error) {
	files, err := c.store.Files(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	now := c.now()
	swept, _ := SweepOverdue(files, now)
	return swept, now, nil
}

// Watch starts tracking userID. Files already pending at this point never
// raise a notification. Watching an already watched user is a no-op.
func (c *NotificationCenter) Watch(ctx context.Context, userID string) error {
	c.mu.Lock()
	_, exists := c.watchers[userID]
	c.mu.Unlock()
	if exists {
		return nil
	}
	files, now, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	w := &watch{detector: NewDetector(), inbox: NewInbox(c.ttl)}
	w.detector.Observe(files, userID, now)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.watchers[userID]; !exists {
		c.watchers[userID] = w
	}
	return nil
}

func (c *NotificationCenter) Unwatch(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watchers, userID)
}

// Refresh diffs the current files against every watcher's last observation.
func (c *NotificationCenter) Refresh(ctx context.Context) error {
	files, now, err := c.snapshot(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, w := range c.watchers {
		notes := w.detector.Observe(files, userID, now)
		if len(notes) == 0 {
			continue
		}
		w.inbox.Push(notes...)
		c.logger.Info(ctx, "new assignments detected", "user_id", userID, "count", len(notes))
	}
	return nil
}

func (c *NotificationCenter) Active(userID string) []domain.Notification {
	c.mu.Lock()
	w, ok := c.watchers[userID]
	c.mu.Unlock()
	if !ok {
		return []domain.Notification{}
	}
	return w.inbox.Active(c.now())
}

func (c *NotificationCenter) Dismiss(userID, notificationID string) bool {
	c.mu.Lock()
	w, ok := c.watchers[userID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return w.inbox.Dismiss(notificationID)
}
