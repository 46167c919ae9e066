package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"go-portal-client/internal/model"
)

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var user model.User
	req := Request{Method: http.MethodGet, Endpoint: "/api/profile/"}
	if err := c.DoWithAuthRetry(ctx, req, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// UpdateProfile patches profile fields as multipart form data, optionally
// attaching an avatar file. The multipart writer supplies the content type
// with its boundary; no JSON header is set.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]string, avatarName string, avatar io.Reader) (*model.User, error) {
	body, contentType, err := encodeMultipart(fields, "avatar", avatarName, avatar)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	var user model.User
	req := Request{
		Method:      http.MethodPatch,
		Endpoint:    "/api/profile/update/",
		RawBody:     body,
		ContentType: contentType,
	}
	if err := c.DoWithAuthRetry(ctx, req, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// UploadImage creates a gallery image via multipart form data.
func (c *Client) UploadImage(ctx context.Context, title string, filename string, file io.Reader) (*model.Image, error) {
	body, contentType, err := encodeMultipart(map[string]string{"title": title}, "image", filename, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	var image model.Image
	req := Request{
		Method:      http.MethodPost,
		Endpoint:    "/api/images/",
		RawBody:     body,
		ContentType: contentType,
	}
	if err := c.DoWithAuthRetry(ctx, req, &image); err != nil {
		return nil, err
	}

	return &image, nil
}

// ListUsers fetches one page of the paginated user directory. Each entry
// carries the backend-assigned role. Page 0 means the first page.
func (c *Client) ListUsers(ctx context.Context, page int) (*model.Page[model.User], error) {
	query := url.Values{}
	if page > 1 {
		query.Set("page", strconv.Itoa(page))
	}

	var result model.Page[model.User]
	req := Request{Method: http.MethodGet, Endpoint: "/users/", Query: query}
	if err := c.DoWithAuthRetry(ctx, req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func encodeMultipart(fields map[string]string, fileField string, filename string, file io.Reader) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	if file != nil {
		part, err := writer.CreateFormFile(fileField, filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}
