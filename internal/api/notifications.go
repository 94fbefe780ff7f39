package api

import (
	"context"
	"net/http"
	"net/url"
)

// Notifications returns the authenticated user's general notifications, read and unread.
func (c *Client) Notifications(ctx context.Context) ([]NotificationItem, error) {
	return list[NotificationItem](ctx, c, http.MethodGet, "/notifications")
}

// MarkNotificationRead flips one notification's read status.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.exec(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil)
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.exec(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil)
}
