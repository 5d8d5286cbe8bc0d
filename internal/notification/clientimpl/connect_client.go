package clientimpl

import (
	"context"

	"connectrpc.com/connect"

	"github.com/kazz187/trackline/internal/notification"
	"github.com/kazz187/trackline/internal/rpc"
)

var _ notification.Client = (*ConnectClient)(nil)

type ConnectClient struct {
	listNotifications *connect.Client[rpc.ListNotificationsRequest, rpc.ListNotificationsResponse]
	getUnreadCount    *connect.Client[rpc.Empty, rpc.GetUnreadCountResponse]
	markRead          *connect.Client[rpc.MarkReadRequest, rpc.Empty]
	markAllRead       *connect.Client[rpc.Empty, rpc.MarkAllReadResponse]
}

func NewConnectClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ConnectClient {
	return &ConnectClient{
		listNotifications: connect.NewClient[rpc.ListNotificationsRequest, rpc.ListNotificationsResponse](
			httpClient, baseURL+rpc.NotificationServiceListNotificationsProcedure, opts...),
		getUnreadCount: connect.NewClient[rpc.Empty, rpc.GetUnreadCountResponse](
			httpClient, baseURL+rpc.NotificationServiceGetUnreadCountProcedure, opts...),
		markRead: connect.NewClient[rpc.MarkReadRequest, rpc.Empty](
			httpClient, baseURL+rpc.NotificationServiceMarkReadProcedure, opts...),
		markAllRead: connect.NewClient[rpc.Empty, rpc.MarkAllReadResponse](
			httpClient, baseURL+rpc.NotificationServiceMarkAllReadProcedure, opts...),
	}
}

func (c *ConnectClient) ListNotifications(ctx context.Context, limit, offset int) ([]notification.Notification, int, error) {
	res, err := c.listNotifications.CallUnary(ctx, connect.NewRequest(&rpc.ListNotificationsRequest{Limit: limit, Offset: offset}))
	if err != nil {
		return nil, 0, err
	}
	return res.Msg.Items, res.Msg.Total, nil
}

func (c *ConnectClient) GetUnreadCount(ctx context.Context) (int, error) {
	res, err := c.getUnreadCount.CallUnary(ctx, connect.NewRequest(&rpc.Empty{}))
	if err != nil {
		return 0, err
	}
	return res.Msg.Count, nil
}

func (c *ConnectClient) MarkRead(ctx context.Context, id string) error {
	_, err := c.markRead.CallUnary(ctx, connect.NewRequest(&rpc.MarkReadRequest{NotificationID: id}))
	return err
}

func (c *ConnectClient) MarkAllRead(ctx context.Context) error {
	_, err := c.markAllRead.CallUnary(ctx, connect.NewRequest(&rpc.Empty{}))
	return err
}
