package notification

import "context"

type Client interface {
	ListNotifications(ctx context.Context, limit, offset int) ([]Notification, int, error)
	GetUnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}
