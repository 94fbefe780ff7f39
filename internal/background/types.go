package background

import "time"

// Kind names one of the two polled collections.
type Kind string

const (
	KindInvites       Kind = "invites"
	KindNotifications Kind = "notifications"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindInvites, KindNotifications:
		return Kind(s), true
	}
	return "", false
}

// Snapshot is what an engine publishes after every tick or reset.
type Snapshot[T any] struct {
	Engine   string
	Identity string
	// Items is the full collection from the last successful fetch.
	Items []T
	// Outstanding is the unread or pending subset of Items.
	Outstanding []T
	// Arrived holds outstanding items whose id was absent from the previous observed set.
	Arrived []T
	HasNew  bool
	Err     error
	At      time.Time
}

// Unread aggregates both engines for badges.
type Unread struct {
	Invites             int  `json:"invites"`
	Notifications       int  `json:"notifications"`
	Total               int  `json:"total"`
	HasNewInvites       bool `json:"hasNewInvites"`
	HasNewNotifications bool `json:"hasNewNotifications"`
}
