package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/protocol"
)

// ListCompanies fetches every company visible to the user.
func (c *Client) ListCompanies(ctx context.Context) ([]models.Company, error) {
	var resp protocol.CompaniesListResponse
	err := c.do(ctx, request{
		op:     "list_companies",
		method: http.MethodGet,
		path:   "/company/get_all",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Companies, nil
}

// GetCompany fetches a single company.
func (c *Client) GetCompany(ctx context.Context, companyID string) (*models.Company, error) {
	var company models.Company
	err := c.do(ctx, request{
		op:     "get_company",
		method: http.MethodGet,
		path:   "/company/get_by_id",
		query:  url.Values{"company_id": {companyID}},
	}, &company)
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// UpdateCompany patches the editable company fields.
func (c *Client) UpdateCompany(ctx context.Context, companyID string, req protocol.CompanyUpdateRequest) (*models.Company, error) {
	var company models.Company
	err := c.do(ctx, request{
		op:     "update_company",
		method: http.MethodPatch,
		path:   "/company/update_by_id",
		query:  url.Values{"company_id": {companyID}},
		json:   req,
	}, &company)
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// CreateCompany registers a new company.
func (c *Client) CreateCompany(ctx context.Context, req protocol.CompanyCreateRequest) (*models.Company, error) {
	var company models.Company
	err := c.do(ctx, request{
		op:     "create_company",
		method: http.MethodPost,
		path:   "/company/create",
		json:   req,
	}, &company)
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// GrantAdminPrivilege makes userID an administrator of companyID.
func (c *Client) GrantAdminPrivilege(ctx context.Context, userID, companyID string) error {
	return c.do(ctx, request{
		op:     "grant_admin",
		method: http.MethodPost,
		path:   "/user_role/grant_admin_privilege",
		query:  url.Values{"promo_user_id": {userID}, "company_id": {companyID}},
		json:   struct{}{},
	}, nil)
}

// RevokeAdminPrivilege removes userID's administrator role in companyID.
func (c *Client) RevokeAdminPrivilege(ctx context.Context, userID, companyID string) error {
	return c.do(ctx, request{
		op:     "revoke_admin",
		method: http.MethodPost,
		path:   "/user_role/revoke_admin_privilege",
		query:  url.Values{"demo_user_id": {userID}, "company_id": {companyID}},
		json:   struct{}{},
	}, nil)
}

// DelegateRole grants or revokes any other role.
func (c *Client) DelegateRole(ctx context.Context, req protocol.DelegateRequest) error {
	return c.do(ctx, request{
		op:     "delegate_role",
		method: http.MethodPost,
		path:   "/role/delegate",
		json:   req,
	}, nil)
}
