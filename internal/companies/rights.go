package companies

import (
	"context"
	"fmt"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/protocol"
)

// Action is a rights change direction.
type Action string

const (
	Grant  Action = "grant"
	Revoke Action = "revoke"
)

// Delegation grants or revokes a role of a user.
type Delegation struct {
	Action    Action
	Role      models.RoleKind
	UserID    string
	CompanyID string
}

// Validate checks a delegation before it is sent.
func (d Delegation) Validate() error {
	if d.Action != Grant && d.Action != Revoke {
		return &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", d.Action)}
	}
	if !d.Role.Valid() {
		return &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", d.Role)}
	}
	if d.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if d.Role.CompanyScoped() && d.CompanyID == "" {
		return &ValidationError{Field: "company_id", Message: "a company is required for this role"}
	}
	return nil
}

// Rights sends rights changes to the backend.
type Rights struct {
	api *client.Client
}

// NewRights creates a rights service.
func NewRights(api *client.Client) *Rights {
	return &Rights{api: api}
}

// Delegate applies d. Administrator grants and revokes go through the
// dedicated privilege endpoints; every other role uses the generic one.
func (r *Rights) Delegate(ctx context.Context, d Delegation) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Role == models.RoleAdmin {
		if d.Action == Grant {
			return r.api.GrantAdminPrivilege(ctx, d.UserID, d.CompanyID)
		}
		return r.api.RevokeAdminPrivilege(ctx, d.UserID, d.CompanyID)
	}
	return r.api.DelegateRole(ctx, protocol.DelegateRequest{
		Action:    string(d.Action),
		Role:      d.Role,
		UserID:    d.UserID,
		CompanyID: d.CompanyID,
	})
}
