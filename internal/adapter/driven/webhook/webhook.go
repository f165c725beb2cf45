// Package webhook delivers key lifecycle events to an HTTP endpoint as JSON.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// Event types sent in Payload.Event.
const (
	EventKeyCreated = "access_key.created"
	EventKeyDeleted = "access_key.deleted"
)

// Payload is the JSON body posted for every event.
type Payload struct {
	Event  string     `json:"event"`
	SentAt time.Time  `json:"sent_at"`
	Key    KeyPayload `json:"key"`
}

// KeyPayload describes the key an event is about. The access URL is the one
// handed to the owner, after prefixing and resolution.
type KeyPayload struct {
	ID        string     `json:"id"`
	RemoteID  string     `json:"remote_id"`
	OwnerID   *int64     `json:"owner_id,omitempty"`
	Nickname  string     `json:"nickname,omitempty"`
	Name      string     `json:"name"`
	AccessURL string     `json:"access_url"`
	DataUsage int64      `json:"data_usage"`
	DataLimit *int64     `json:"data_limit,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Client posts events to a single URL.
type Client struct {
	http *http.Client
	url  string
	now  func() time.Time
}

// NewClient creates a Client posting to url with the given request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return NewClientWithHTTPClient(&http.Client{Timeout: timeout}, url)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client. This
// constructor is intended for testing.
func NewClientWithHTTPClient(httpClient *http.Client, url string) *Client {
	return &Client{http: httpClient, url: url, now: time.Now}
}

// KeyCreated posts an access_key.created event. It matches the
// application.KeyHook signature.
func (c *Client) KeyCreated(ctx context.Context, key model.AccessKey) error {
	return c.send(ctx, EventKeyCreated, key)
}

// KeyDeleted posts an access_key.deleted event. It matches the
// application.KeyHook signature.
func (c *Client) KeyDeleted(ctx context.Context, key model.AccessKey) error {
	return c.send(ctx, EventKeyDeleted, key)
}

func (c *Client) send(ctx context.Context, event string, key model.AccessKey) error {
	body, err := json.Marshal(Payload{
		Event:  event,
		SentAt: c.now().UTC(),
		Key:    toKeyPayload(key),
	})
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", event, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s event: %w", event, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("posting %s event: unexpected status %d", event, resp.StatusCode)
	}
	return nil
}

func toKeyPayload(key model.AccessKey) KeyPayload {
	p := KeyPayload{
		ID:        key.ID,
		RemoteID:  key.RemoteID,
		Name:      key.Name,
		AccessURL: key.AccessURL,
		DataUsage: key.DataUsage,
		DataLimit: key.DataLimit,
		ExpiresAt: key.ExpiresAt,
	}
	if key.Owner != nil {
		id := key.Owner.ID
		p.OwnerID = &id
		p.Nickname = key.Owner.Nickname
	}
	return p
}
