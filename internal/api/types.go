package api

// UserProfile is the authenticated user's profile as returned by GET /users/me.
type UserProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Currency  string `json:"currency"`
}

// TokenPair is the credential pair issued by login, register and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// tokenPairDTO is the backend wire shape; "token" is the access token.
type tokenPairDTO struct {
	Token        string `json:"token"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (d tokenPairDTO) pair() TokenPair {
	access := d.Token
	if access == "" {
		access = d.AccessToken
	}
	return TokenPair{AccessToken: access, RefreshToken: d.RefreshToken}
}

// InviteStatus is the lifecycle state of a group invite.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "PENDING"
	InviteStatusAccepted InviteStatus = "ACCEPTED"
)

// PendingInvite is a group invite addressed to the authenticated user.
// Timestamps are kept as the ISO-8601 strings the backend sends.
type PendingInvite struct {
	ID            string       `json:"id"`
	GroupID       string       `json:"groupId"`
	GroupName     string       `json:"groupName"`
	Email         string       `json:"email,omitempty"`
	InvitedBy     string       `json:"invitedBy,omitempty"`
	InvitedByName string       `json:"invitedByName"`
	Status        InviteStatus `json:"status"`
	CreatedAt     string       `json:"createdAt,omitempty"`
	ExpiresAt     string       `json:"expiresAt"`
	Token         string       `json:"token"`
}

// NotificationTypeInviteAccepted is sent to the inviter when an invite is accepted.
const NotificationTypeInviteAccepted = "INVITE_ACCEPTED"

// NotificationItem is a general notification for the authenticated user.
type NotificationItem struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	ReadStatus bool   `json:"readStatus"`
	CreatedAt  string `json:"createdAt"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /users/register.
type RegisterRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Currency  string `json:"currency"`
}

// ProfileUpdate holds the editable profile fields. Empty fields keep the current value.
type ProfileUpdate struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

// profileUpdateDTO is the full body PUT /users/me requires.
type profileUpdateDTO struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Currency  string `json:"currency"`
}

// ChangePasswordRequest is the body of PUT /users/me/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}
