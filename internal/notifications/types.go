// Package notifications turns newly arrived invites and notifications into
// short-lived alerts, at most one per item per session.
package notifications

import "time"

// AlertKind is the visual style of an alert.
type AlertKind string

const (
	KindInfo    AlertKind = "info"
	KindSuccess AlertKind = "success"
)

// Alert sources.
const (
	SourceInvites       = "invites"
	SourceNotifications = "notifications"
)

// Alert is one ephemeral message shown to the user.
type Alert struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	ItemID    string    `json:"itemId"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Sink receives alert lifecycle events.
type Sink interface {
	Shown(alert Alert)
	Dismissed(alert Alert)
}
