package notification

import (
	"time"

	"github.com/kazz187/trackline/internal/cache"
)

type Type string

const (
	TypeAssigned      Type = "assigned"
	TypeMentioned     Type = "mentioned"
	TypeStatusChanged Type = "status_changed"
	TypeCommented     Type = "commented"
)

// PushType is the envelope type the push channel uses for new notifications.
const PushType = "notification"

type Notification struct {
	ID        string    `json:"id" yaml:"id"`
	Type      Type      `json:"type" yaml:"type"`
	Title     string    `json:"title" yaml:"title"`
	Body      string    `json:"body,omitempty" yaml:"body,omitempty"`
	Read      bool      `json:"read" yaml:"read"`
	IssueID   string    `json:"issue_id,omitempty" yaml:"issue_id,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ListScope is the cached notification list, newest first.
func ListScope() cache.Scope {
	return cache.NewScope("notifications")
}

func NewStore(clock *cache.Clock) *cache.Store[Notification] {
	return cache.NewStore(clock, cache.Options[Notification]{
		Name: "notifications",
		Key:  func(n Notification) string { return n.ID },
	})
}
