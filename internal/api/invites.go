package api

import (
	"context"
	"net/http"
	"net/url"
)

// PendingInvites returns every pending invite addressed to the authenticated user.
func (c *Client) PendingInvites(ctx context.Context) ([]PendingInvite, error) {
	return list[PendingInvite](ctx, c, http.MethodGet, "/users/me/invites/pending")
}

// AcceptInvite accepts the invite identified by its token on behalf of userID.
func (c *Client) AcceptInvite(ctx context.Context, inviteToken, userID string) (PendingInvite, error) {
	path := "/groups/invites/" + url.PathEscape(inviteToken) + "/accept"
	return call[PendingInvite](ctx, c, http.MethodPost, path, struct{}{}, withUserID(userID))
}
