package outline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// GetServerInfo returns the server configuration.
func (c *Client) GetServerInfo(ctx context.Context) (*model.ServerConfig, error) {
	var out serverJSON
	if err := c.do(ctx, http.MethodGet, "/server", nil, &out); err != nil {
		return nil, fmt.Errorf("getting server info: %w", err)
	}
	cfg := mapServer(out)
	return &cfg, nil
}

// PatchServerInfo sends one request per present field of p, in a fixed
// order, and stops at the first failure. A negative DataLimit removes the
// server-wide limit and a non-positive Port is ignored.
func (c *Client) PatchServerInfo(ctx context.Context, p model.ServerPatch) error {
	if p.Name != nil {
		if err := c.do(ctx, http.MethodPut, "/name", nameJSON{Name: *p.Name}, nil); err != nil {
			return fmt.Errorf("renaming server: %w", err)
		}
	}
	if p.Hostname != nil {
		if err := c.do(ctx, http.MethodPut, "/server/hostname-for-access-keys", hostnameJSON{Hostname: *p.Hostname}, nil); err != nil {
			return fmt.Errorf("setting hostname for access keys: %w", err)
		}
	}
	if p.Port != nil && *p.Port > 0 {
		if err := c.do(ctx, http.MethodPut, "/server/port-for-new-access-keys", portJSON{Port: *p.Port}, nil); err != nil {
			return fmt.Errorf("setting port for new access keys: %w", err)
		}
	}
	if p.MetricsEnabled != nil {
		if err := c.do(ctx, http.MethodPut, "/metrics/enabled", metricsEnabledJSON{MetricsEnabled: *p.MetricsEnabled}, nil); err != nil {
			return fmt.Errorf("setting metrics sharing: %w", err)
		}
	}
	if p.DataLimit != nil {
		if err := c.setDataLimit(ctx, "/server/access-key-data-limit", *p.DataLimit); err != nil {
			return fmt.Errorf("setting server data limit: %w", err)
		}
	}
	return nil
}

// GetTransferMetrics returns the bytes transferred per access key id. Keys
// that never carried traffic are absent from the map.
func (c *Client) GetTransferMetrics(ctx context.Context) (map[string]int64, error) {
	var out transferJSON
	if err := c.do(ctx, http.MethodGet, "/metrics/transfer", nil, &out); err != nil {
		return nil, fmt.Errorf("getting transfer metrics: %w", err)
	}
	if out.BytesTransferredByUserID == nil {
		return map[string]int64{}, nil
	}
	return out.BytesTransferredByUserID, nil
}

// setDataLimit PUTs a limit at path, or DELETEs it when limit is negative.
func (c *Client) setDataLimit(ctx context.Context, path string, limit int64) error {
	if limit < 0 {
		return c.do(ctx, http.MethodDelete, path, nil, nil)
	}
	return c.do(ctx, http.MethodPut, path, limitJSON{Limit: dataLimitJSON{Bytes: limit}}, nil)
}
