package session

import (
	"errors"
	"fmt"

	"github.com/coffeestaff/portal/internal/models"
)

// Sentinel company ids persisted for the roles that are not tied to a
// company.
const (
	SentinelUser       = "user"
	SentinelSuperAdmin = "superadmin"
)

// ErrInvalidRole is returned for role records that cannot be turned into a
// Role: unknown kinds, or company roles without a company.
var ErrInvalidRole = errors.New("invalid role record")

// Role is the context a session runs under. It is one of UserRole,
// SuperAdminRole or CompanyRole.
type Role interface {
	Kind() models.RoleKind
	// Company returns the company id for company roles and "" otherwise.
	Company() string
	String() string
	isRole()
}

// UserRole is the plain employee context.
type UserRole struct{}

// SuperAdminRole is the chain-wide administrator context.
type SuperAdminRole struct{}

// CompanyRole administers or moderates one company.
type CompanyRole struct {
	CompanyID string
	Level     models.RoleKind // RoleAdmin or RoleModerator
}

func (UserRole) Kind() models.RoleKind { return models.RoleUser }
func (UserRole) Company() string       { return "" }
func (UserRole) String() string        { return "user" }
func (UserRole) isRole()               {}

func (SuperAdminRole) Kind() models.RoleKind { return models.RoleSuperAdmin }
func (SuperAdminRole) Company() string       { return "" }
func (SuperAdminRole) String() string        { return "superadmin" }
func (SuperAdminRole) isRole()               {}

func (r CompanyRole) Kind() models.RoleKind { return r.Level }
func (r CompanyRole) Company() string       { return r.CompanyID }
func (r CompanyRole) String() string {
	return fmt.Sprintf("%s@%s", r.Level.DisplayName(), r.CompanyID)
}
func (CompanyRole) isRole() {}

// FromRecord converts a wire role record.
func FromRecord(rec models.RoleRecord) (Role, error) {
	switch rec.Role {
	case models.RoleUser:
		return UserRole{}, nil
	case models.RoleSuperAdmin:
		return SuperAdminRole{}, nil
	case models.RoleAdmin, models.RoleModerator:
		id := rec.Company()
		if id == "" || id == SentinelUser || id == SentinelSuperAdmin {
			return nil, fmt.Errorf("%w: %s without company", ErrInvalidRole, rec.Role)
		}
		return CompanyRole{CompanyID: id, Level: rec.Role}, nil
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRole, rec.Role)
}

// SameRole reports whether a and b denote the same context.
func SameRole(a, b Role) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && a.Company() == b.Company()
}

// Persisted is the stored form of a selected context. Non-company roles
// carry a sentinel company id so that a reload can tell "nothing selected"
// from "selected a role without a company".
type Persisted struct {
	CompanyID string            `json:"companyId"`
	Role      models.RoleRecord `json:"role"`
}

// Encode converts a role into its persisted form.
func Encode(r Role) Persisted {
	var id string
	switch r := r.(type) {
	case UserRole:
		id = SentinelUser
	case SuperAdminRole:
		id = SentinelSuperAdmin
	case CompanyRole:
		id = r.CompanyID
	}
	return Persisted{
		CompanyID: id,
		Role:      models.RoleRecord{CompanyID: &id, Role: r.Kind()},
	}
}

// Decode converts a persisted context back into a role.
func Decode(p Persisted) (Role, error) {
	switch p.Role.Role {
	case models.RoleUser:
		if p.CompanyID != SentinelUser {
			return nil, fmt.Errorf("%w: user context with company %q", ErrInvalidRole, p.CompanyID)
		}
		return UserRole{}, nil
	case models.RoleSuperAdmin:
		if p.CompanyID != SentinelSuperAdmin {
			return nil, fmt.Errorf("%w: superadmin context with company %q", ErrInvalidRole, p.CompanyID)
		}
		return SuperAdminRole{}, nil
	}
	r, err := FromRecord(models.RoleRecord{CompanyID: &p.CompanyID, Role: p.Role.Role})
	if err != nil {
		return nil, err
	}
	return r, nil
}
