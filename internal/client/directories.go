package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/coffeestaff/portal/internal/protocol"
)

// ListObjects fetches the flat path → size listing of a company's storage.
func (c *Client) ListObjects(ctx context.Context, companyID string) (protocol.DirectoryObjects, error) {
	objects := protocol.DirectoryObjects{}
	err := c.do(ctx, request{
		op:     "list_objects",
		method: http.MethodGet,
		path:   "/s3_directory/get_objects_by_company_id",
		query:  url.Values{"company_id": {companyID}},
	}, &objects)
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// CreateDirectory creates a directory marker under req.DirPath.
func (c *Client) CreateDirectory(ctx context.Context, req protocol.CreateDirectoryRequest) error {
	var resp protocol.CreateDirectoryResponse
	return c.do(ctx, request{
		op:     "create_directory",
		method: http.MethodPost,
		path:   "/s3_directory/create",
		json:   req,
	}, &resp)
}

// RenameDirectory renames a directory; images under it follow.
func (c *Client) RenameDirectory(ctx context.Context, req protocol.RenameDirectoryRequest) (*protocol.RenameDirectoryResponse, error) {
	var resp protocol.RenameDirectoryResponse
	err := c.do(ctx, request{
		op:     "rename_directory",
		method: http.MethodPatch,
		path:   "/s3_directory/rename",
		json:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteDirectory removes a directory subtree and the images inside it.
func (c *Client) DeleteDirectory(ctx context.Context, req protocol.DeleteDirectoryRequest) (*protocol.DeleteDirectoryResponse, error) {
	var resp protocol.DeleteDirectoryResponse
	err := c.do(ctx, request{
		op:     "delete_directory",
		method: http.MethodDelete,
		path:   "/s3_directory/delete",
		json:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
