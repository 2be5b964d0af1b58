// Package protocol defines the backend API request/response types.
package protocol

import "github.com/coffeestaff/portal/internal/models"

// ErrorResponse is the body the backend returns on errors. Detail is either
// a string or a list of validation entries, so it is kept raw.
type ErrorResponse struct {
	Detail any `json:"detail"`
}

// TokenResponse is returned by POST /login/token and the OAuth callback.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	UserID      string `json:"user_id"`
}

// CompaniesListResponse is returned by GET /company/get_all.
type CompaniesListResponse struct {
	Companies []models.Company `json:"companies"`
}

// CompanyUpdateRequest is the body for PATCH /company/update_by_id.
type CompanyUpdateRequest struct {
	CompanyName string `json:"company_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
}

// CompanyCreateRequest is the body for POST /company/create.
type CompanyCreateRequest struct {
	CompanyName string `json:"company_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	AgeLimit    bool   `json:"age_limit"`
	StartTime   string `json:"start_time,omitempty"`
	OverTime    string `json:"over_time,omitempty"`
}

// DelegateRequest is the body for POST /role/delegate.
type DelegateRequest struct {
	Action    string          `json:"action"` // "grant" or "revoke"
	Role      models.RoleKind `json:"role"`
	UserID    string          `json:"user_id"`
	CompanyID string          `json:"company_id"`
}

// DirectoryObjects maps every storage path of a company to its byte size.
// Zero-size slash-terminated keys are directory markers.
type DirectoryObjects map[string]int64

// CreateDirectoryRequest is the body for POST /s3_directory/create.
type CreateDirectoryRequest struct {
	CompanyID string `json:"company_id"`
	DirName   string `json:"dir_name"`
	DirPath   string `json:"dir_path"`
}

// CreateDirectoryResponse is returned by POST /s3_directory/create.
type CreateDirectoryResponse struct {
	Success int `json:"Success"`
}

// DeleteDirectoryRequest is the body for DELETE /s3_directory/delete.
type DeleteDirectoryRequest struct {
	CompanyID string `json:"company_id"`
	DirName   string `json:"dir_name"`
	DirPath   string `json:"dir_path"`
}

// DeleteDirectoryResponse lists images removed together with the directory.
type DeleteDirectoryResponse struct {
	DeletedImageIDs []string `json:"deleted image id"`
}

// RenameDirectoryRequest is the body for PATCH /s3_directory/rename.
type RenameDirectoryRequest struct {
	CompanyID  string `json:"company_id"`
	OldDirName string `json:"old_dir_name"`
	NewDirName string `json:"new_dir_name"`
	DirPath    string `json:"dir_path"`
}

// RenameDirectoryResponse lists images whose path changed with the directory.
type RenameDirectoryResponse struct {
	UpdatedImageIDs []string `json:"updated image id"`
}

// ImageListResponse is returned by GET /image/get_images_company_by_id.
type ImageListResponse struct {
	Images []models.Image `json:"images"`
}

// ImageURLResponse is returned by GET /image/get_by_id.
type ImageURLResponse struct {
	URL string `json:"url"`
}

// UploadMetadata is sent as the "metadata" form field of POST /image/upload.
type UploadMetadata struct {
	CompanyID string `json:"company_id"`
	FilePath  string `json:"file_path"`
	Width     string `json:"width"`
	Height    string `json:"height"`
}

// ImageUploadResponse is returned by POST /image/upload.
type ImageUploadResponse struct {
	ImageID  string `json:"image_id"`
	FilePath string `json:"file_path,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// UpdateImageRequest is the body for PATCH /image/update_by_id. Rename keeps
// FilePath and changes FileName; move keeps FileName and changes FilePath.
type UpdateImageRequest struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
}

// UpdateImageResponse is returned by PATCH /image/update_by_id.
type UpdateImageResponse struct {
	UpdatedImageID string `json:"updated_image_id"`
}

// DeleteImageResponse is returned by DELETE /image/delete.
type DeleteImageResponse struct {
	DeletedImageID string `json:"deleted_image_id"`
}
