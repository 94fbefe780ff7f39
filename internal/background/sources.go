package background

import (
	"context"

	"github.com/eternisai/groupspend-sync/internal/api"
)

// InviteAPI is the backend surface for group invites.
type InviteAPI interface {
	PendingInvites(ctx context.Context) ([]api.PendingInvite, error)
	AcceptInvite(ctx context.Context, inviteToken, userID string) (api.PendingInvite, error)
}

// NotificationAPI is the backend surface for general notifications.
type NotificationAPI interface {
	Notifications(ctx context.Context) ([]api.NotificationItem, error)
	MarkNotificationRead(ctx context.Context, id string) error
	DeleteNotification(ctx context.Context, id string) error
}

// InviteSource polls pending invites. Every returned invite is outstanding
// unless the backend already reports it accepted.
func InviteSource(client InviteAPI) Source[api.PendingInvite] {
	return Source[api.PendingInvite]{
		Name:  string(KindInvites),
		Fetch: client.PendingInvites,
		ID:    func(inv api.PendingInvite) string { return inv.ID },
		Outstanding: func(inv api.PendingInvite) bool {
			return inv.Status != api.InviteStatusAccepted
		},
	}
}

// NotificationSource polls general notifications. Unread ones are outstanding.
func NotificationSource(client NotificationAPI) Source[api.NotificationItem] {
	return Source[api.NotificationItem]{
		Name:        string(KindNotifications),
		Fetch:       client.Notifications,
		ID:          func(n api.NotificationItem) string { return n.ID },
		Outstanding: func(n api.NotificationItem) bool { return !n.ReadStatus },
	}
}
