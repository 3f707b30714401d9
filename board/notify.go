package board

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification kinds. Every command outcome raises exactly one notification.
const (
	KindSuccess = "success"
	KindError   = "error"
	KindInfo    = "info"
)

// defaultNotificationTTL is how long a notification stays visible before it
// dismisses itself.
const defaultNotificationTTL = 3 * time.Second

// Notifier receives one user-visible notification per command outcome.
type Notifier interface {
	Notify(message, kind string)
}

// Notification is a transient user-facing message.
type Notification struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Kind    string    `json:"kind"`
	Created time.Time `json:"created"`
}

// Center collects notifications and expires them after a fixed duration or on
// explicit dismissal.
type Center struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	active []Notification
}

// NewCenter creates a notification center. A non-positive ttl selects the
// default of three seconds.
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = defaultNotificationTTL
	}
	return &Center{ttl: ttl, now: time.Now}
}

// Notify records a new notification.
func (c *Center) Notify(message, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	c.active = append(c.active, Notification{
		ID:      uuid.NewString(),
		Message: message,
		Kind:    kind,
		Created: c.now(),
	})
}

// Active returns the not-yet-expired notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	out := make([]Notification, len(c.active))
	copy(out, c.active)
	return out
}

// Dismiss removes one notification before its expiry. It reports whether the
// id was known.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.active {
		if n.ID == id {
			c.active = append(c.active[:i], c.active[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Center) prune() {
	cutoff := c.now().Add(-c.ttl)
	kept := c.active[:0]
	for _, n := range c.active {
		if n.Created.After(cutoff) {
			kept = append(kept, n)
		}
	}
	c.active = kept
}
