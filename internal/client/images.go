package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/protocol"
)

// Upload is one image to send to the backend.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
	Metadata    protocol.UploadMetadata
}

// UploadImage sends an image with its metadata as a multipart form.
func (c *Client) UploadImage(ctx context.Context, up Upload) (*protocol.ImageUploadResponse, error) {
	meta, err := json.Marshal(up.Metadata)
	if err != nil {
		return nil, fmt.Errorf("upload_image: encode metadata: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.FileName))
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("upload_image: %w", err)
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return nil, fmt.Errorf("upload_image: read content: %w", err)
	}
	if err := mw.WriteField("metadata", string(meta)); err != nil {
		return nil, fmt.Errorf("upload_image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("upload_image: %w", err)
	}

	var resp protocol.ImageUploadResponse
	err = c.do(ctx, request{
		op:          "upload_image",
		method:      http.MethodPost,
		path:        "/image/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListImages fetches every image record of a company.
func (c *Client) ListImages(ctx context.Context, companyID string) ([]models.Image, error) {
	var resp protocol.ImageListResponse
	err := c.do(ctx, request{
		op:     "list_images",
		method: http.MethodGet,
		path:   "/image/get_images_company_by_id",
		query:  url.Values{"company_id": {companyID}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// ImageURL fetches a (possibly short-lived) preview URL for an image.
func (c *Client) ImageURL(ctx context.Context, imageID string) (string, error) {
	var resp protocol.ImageURLResponse
	err := c.do(ctx, request{
		op:     "get_image",
		method: http.MethodGet,
		path:   "/image/get_by_id",
		query:  url.Values{"image_id": {imageID}},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// UpdateImage patches an image's name and location.
func (c *Client) UpdateImage(ctx context.Context, imageID string, req protocol.UpdateImageRequest) error {
	var resp protocol.UpdateImageResponse
	return c.do(ctx, request{
		op:     "update_image",
		method: http.MethodPatch,
		path:   "/image/update_by_id",
		query:  url.Values{"image_id": {imageID}},
		json:   req,
	}, &resp)
}

// DeleteImage removes an image.
func (c *Client) DeleteImage(ctx context.Context, imageID string) error {
	var resp protocol.DeleteImageResponse
	return c.do(ctx, request{
		op:     "delete_image",
		method: http.MethodDelete,
		path:   "/image/delete",
		query:  url.Values{"image_id": {imageID}},
	}, &resp)
}

// FetchObject opens a signed image URL. Signed URLs carry their own
// authorization, so no bearer token is sent and a 401 does not end the
// session. The caller closes the body.
func (c *Client) FetchObject(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	start := time.Now()
	body, err := c.fetchObject(ctx, rawURL)
	metrics.RecordAPICall("fetch_object", outcome(err), time.Since(start))
	return body, err
}

func (c *Client) fetchObject(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	const op = "fetch_object"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Op: op, Kind: KindNetwork, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newAPIError(op, resp)
	}
	return resp.Body, nil
}
