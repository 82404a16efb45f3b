// Package notifications keeps a bounded window of recent notifications and
// an independently sourced unread counter in sync with the backing store.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Type classifies a notification for display.
type Type string

const (
	TypeInfo         Type = "info"
	TypeSuccess      Type = "success"
	TypeWarning      Type = "warning"
	TypeError        Type = "error"
	TypeAnnouncement Type = "announcement"
	TypeAppointment  Type = "appointment"
	TypeDonation     Type = "donation"
)

// Notification is a single entry owned by the backing store.
type Notification struct {
	ID        int64     `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is a notification about to be written.
type Draft struct {
	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// ErrNotFound is returned when a notification does not exist for the user.
var ErrNotFound = errors.New("notifications: not found")

// Store is the per-user view of the backing store.
type Store interface {
	ListRecent(ctx context.Context, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
}

// Observer receives engine telemetry.
type Observer interface {
	FetchCompleted(op string, err error)
	EnginesActive(n int)
}

// Fetch operation names reported to Observer.
const (
	OpList        = "list"
	OpCount       = "count"
	OpMarkRead    = "mark_read"
	OpMarkAllRead = "mark_all_read"
)

type nopObserver struct{}

func (nopObserver) FetchCompleted(string, error) {}
func (nopObserver) EnginesActive(int)            {}

// Snapshot is what the bell renders.
type Snapshot struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
	Badge  string         `json:"badge"`
	Open   bool           `json:"open"`
}

// Badge renders the unread counter, capping at "9+". Zero renders nothing.
func Badge(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > 9:
		return "9+"
	default:
		return strconv.Itoa(unread)
	}
}

// TimeAgo renders createdAt relative to now.
func TimeAgo(now, createdAt time.Time) string {
	s := int64(now.Sub(createdAt) / time.Second)
	switch {
	case s < 60:
		return "Just now"
	case s < 3600:
		return fmt.Sprintf("%dm ago", s/60)
	case s < 86400:
		return fmt.Sprintf("%dh ago", s/3600)
	case s < 604800:
		return fmt.Sprintf("%dd ago", s/86400)
	default:
		return createdAt.Format("Jan 2, 2006")
	}
}
