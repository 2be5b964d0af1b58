// Package models contains the data types shared by the portal packages.
package models

// RoleKind is the permission level of a role record, as the backend spells it.
type RoleKind string

const (
	RoleUser       RoleKind = "PORTAL_ROLE_USER"
	RoleModerator  RoleKind = "PORTAL_ROLE_MODERATOR"
	RoleAdmin      RoleKind = "PORTAL_ROLE_ADMIN"
	RoleSuperAdmin RoleKind = "PORTAL_ROLE_SUPER_ADMIN"
)

// Valid reports whether k is one of the known role kinds.
func (k RoleKind) Valid() bool {
	switch k {
	case RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// CompanyScoped reports whether the role only makes sense inside a company.
func (k RoleKind) CompanyScoped() bool {
	return k == RoleAdmin || k == RoleModerator
}

// DisplayName returns the human label of a role kind.
func (k RoleKind) DisplayName() string {
	switch k {
	case RoleSuperAdmin:
		return "Super admin"
	case RoleAdmin:
		return "Administrator"
	case RoleModerator:
		return "Moderator"
	case RoleUser:
		return "User"
	}
	return string(k)
}

// RoleRecord is a (company, permission level) pair assigned to a user.
type RoleRecord struct {
	CompanyID   *string  `json:"company_id"`
	Role        RoleKind `json:"role"`
	CompanyName string   `json:"company_name,omitempty"`
}

// Company returns the company id, or "" when the record has none.
func (r RoleRecord) Company() string {
	if r.CompanyID == nil {
		return ""
	}
	return *r.CompanyID
}

// Screen is a display screen attached to a company.
type Screen struct {
	ScreenID string `json:"screen_id"`
}

// Company is a coffee shop of the chain.
type Company struct {
	CompanyID      string   `json:"company_id"`
	CompanyName    string   `json:"company_name"`
	Address        string   `json:"address"`
	Phone          string   `json:"phone"`
	Email          string   `json:"email"`
	IsActive       bool     `json:"is_active"`
	OrderNumber    int      `json:"order_number"`
	BasicScreenID  string   `json:"basic_screen_id"`
	GroupID        int      `json:"group_id"`
	ImagePictureID string   `json:"image_picture_id"`
	ImageIconID    string   `json:"image_icon_id"`
	AgeLimit       bool     `json:"age_limit"`
	WorkState      bool     `json:"work_state"`
	CreatorID      string   `json:"creator_id"`
	UpdaterID      string   `json:"updater_id"`
	TimeCreated    string   `json:"time_created"`
	TimeUpdated    string   `json:"time_updated"`
	StartTime      string   `json:"start_time"`
	OverTime       string   `json:"over_time"`
	Screens        []Screen `json:"screens"`
}

// UserInfo is the profile of the logged-in employee.
type UserInfo struct {
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Surname     string       `json:"surname"`
	Phone       string       `json:"phone"`
	Email       string       `json:"email"`
	IsActive    bool         `json:"is_active"`
	CreatorID   string       `json:"creator_id"`
	UpdaterID   string       `json:"updater_id"`
	TimeCreated string       `json:"time_created"`
	TimeUpdated string       `json:"time_updated"`
	Roles       []RoleRecord `json:"roles,omitempty"`
}

// Image is a media library entry. FilePath references a folder path.
type Image struct {
	ImageID        string `json:"image_id"`
	CompanyID      string `json:"company_id"`
	TypeCol        string `json:"type_col"`
	ImageType      string `json:"image_type"`
	FilePath       string `json:"file_path"`
	Title          string `json:"title"`
	FileName       string `json:"file_name"`
	Resolution     string `json:"resolution"`
	Tags           string `json:"tags"`
	OrderNumber    int    `json:"order_number"`
	Size           int64  `json:"size"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	IsHidden       bool   `json:"is_hidden"`
	IsUsed         bool   `json:"is_used"`
	CompanyGroupID string `json:"company_group_id"`
	CreatorID      string `json:"creator_id"`
	TimeCreated    string `json:"time_created"`
}

// FolderNode is a directory in the media library tree. Directory paths are
// slash-terminated; a child's path is its parent's path + name + "/".
type FolderNode struct {
	Path     string        `json:"path"`
	Name     string        `json:"name"`
	Children []*FolderNode `json:"children"`
}
