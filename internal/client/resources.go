package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"go-portal-client/internal/model"
)

// Resource is a typed CRUD client over one of the backend's conventional
// trailing-slash REST collections. All calls go through the auth-retry path.
type Resource[T any] struct {
	client *Client
	path   string
}

func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{client: c, path: path}
}

func (r *Resource[T]) List(ctx context.Context, query url.Values) (*model.Page[T], error) {
	var page model.Page[T]
	req := Request{Method: http.MethodGet, Endpoint: r.path, Query: query}
	if err := r.client.DoWithAuthRetry(ctx, req, &page); err != nil {
		return nil, err
	}

	return &page, nil
}

func (r *Resource[T]) Get(ctx context.Context, id int64) (*T, error) {
	var item T
	req := Request{Method: http.MethodGet, Endpoint: r.itemPath(id)}
	if err := r.client.DoWithAuthRetry(ctx, req, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *Resource[T]) Create(ctx context.Context, payload any) (*T, error) {
	var item T
	req := Request{Method: http.MethodPost, Endpoint: r.path, Body: payload}
	if err := r.client.DoWithAuthRetry(ctx, req, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *Resource[T]) Update(ctx context.Context, id int64, payload any) (*T, error) {
	var item T
	req := Request{Method: http.MethodPatch, Endpoint: r.itemPath(id), Body: payload}
	if err := r.client.DoWithAuthRetry(ctx, req, &item); err != nil {
		return nil, err
	}

	return &item, nil
}

func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	req := Request{Method: http.MethodDelete, Endpoint: r.itemPath(id)}
	return r.client.DoWithAuthRetry(ctx, req, nil)
}

func (r *Resource[T]) itemPath(id int64) string {
	return r.path + strconv.FormatInt(id, 10) + "/"
}
