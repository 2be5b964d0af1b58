package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/coffeestaff/portal/internal/models"
)

// GetUserRoles fetches every role record of the authenticated user.
func (c *Client) GetUserRoles(ctx context.Context) ([]models.RoleRecord, error) {
	var roles []models.RoleRecord
	err := c.do(ctx, request{
		op:     "get_user_roles",
		method: http.MethodGet,
		path:   "/user_role/get_user_roles",
	}, &roles)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// GetUserInfo fetches a user profile.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (*models.UserInfo, error) {
	var info models.UserInfo
	err := c.do(ctx, request{
		op:     "get_user",
		method: http.MethodGet,
		path:   "/user/get_by_id",
		query:  url.Values{"user_id": {userID}},
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
