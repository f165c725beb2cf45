package outline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// GetAccessKeys lists every access key on the server.
func (c *Client) GetAccessKeys(ctx context.Context) ([]model.RemoteKey, error) {
	var out accessKeyListJSON
	if err := c.do(ctx, http.MethodGet, "/access-keys", nil, &out); err != nil {
		return nil, fmt.Errorf("listing access keys: %w", err)
	}

	keys := make([]model.RemoteKey, 0, len(out.AccessKeys))
	for _, k := range out.AccessKeys {
		keys = append(keys, mapAccessKey(k))
	}
	return keys, nil
}

// GetAccessKey returns the access key with the given id, or nil when the
// server does not know it.
func (c *Client) GetAccessKey(ctx context.Context, id string) (*model.RemoteKey, error) {
	var out accessKeyJSON
	err := c.do(ctx, http.MethodGet, keyPath(id), nil, &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting access key %s: %w", id, err)
	}
	key := mapAccessKey(out)
	return &key, nil
}

// CreateAccessKey provisions a key. With spec.ID set the key is created
// under that id (PUT), otherwise the server assigns one (POST). It returns
// nil, nil when the server answers without a key.
func (c *Client) CreateAccessKey(ctx context.Context, spec model.RemoteKeySpec) (*model.RemoteKey, error) {
	body := createKeyJSON{
		Name:     spec.Name,
		Method:   spec.Method,
		Password: spec.Password,
	}
	if spec.Port > 0 {
		body.Port = spec.Port
	}
	if spec.DataLimit != nil && *spec.DataLimit >= 0 {
		body.Limit = &dataLimitJSON{Bytes: *spec.DataLimit}
	}

	method, path := http.MethodPost, "/access-keys"
	if spec.ID != "" {
		method, path = http.MethodPut, keyPath(spec.ID)
	}

	var out accessKeyJSON
	err := c.do(ctx, method, path, body, &out)
	if errors.Is(err, errEmptyBody) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating access key: %w", err)
	}
	if out.ID == "" {
		return nil, nil
	}
	key := mapAccessKey(out)
	return &key, nil
}

// PatchAccessKey applies the present fields of p to the key with the given
// id. It returns false when the key does not exist. An empty patch sends
// nothing and reports success.
func (c *Client) PatchAccessKey(ctx context.Context, id string, p model.RemoteKeyPatch) (bool, error) {
	err := c.patchAccessKey(ctx, id, p)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("patching access key %s: %w", id, err)
	}
	return true, nil
}

func (c *Client) patchAccessKey(ctx context.Context, id string, p model.RemoteKeyPatch) error {
	if p.Name != nil {
		if err := c.do(ctx, http.MethodPut, keyPath(id)+"/name", nameJSON{Name: *p.Name}, nil); err != nil {
			return err
		}
	}
	if p.DataLimit != nil {
		if err := c.setDataLimit(ctx, keyPath(id)+"/data-limit", *p.DataLimit); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAccessKey removes the key with the given id. It returns false when
// the key was already gone.
func (c *Client) DeleteAccessKey(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodDelete, keyPath(id), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting access key %s: %w", id, err)
	}
	return true, nil
}

func keyPath(id string) string {
	return "/access-keys/" + url.PathEscape(id)
}
