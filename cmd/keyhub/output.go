package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

type ownerView struct {
	ID       int64     `json:"id"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joined_at"`
}

type keyView struct {
	ID        string     `json:"id,omitempty"`
	RemoteID  string     `json:"remote_id"`
	OwnerID   *int64     `json:"owner_id,omitempty"`
	Owner     string     `json:"owner,omitempty"`
	Name      string     `json:"name"`
	Port      int        `json:"port"`
	Method    string     `json:"method"`
	AccessURL string     `json:"access_url"`
	DataUsage string     `json:"data_usage"`
	DataLimit string     `json:"data_limit"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type serverView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	Hostname       string    `json:"hostname"`
	Port           int       `json:"port"`
	CreatedAt      time.Time `json:"created_at"`
	MetricsEnabled bool      `json:"metrics_enabled"`
	DataLimit      string    `json:"data_limit"`
	DataUsage      string    `json:"data_usage"`
	AccessKeys     []keyView `json:"access_keys"`
}

func toOwnerView(o model.Owner) ownerView {
	return ownerView{ID: o.ID, Nickname: o.Nickname, JoinedAt: o.JoinedAt}
}

func toKeyView(k model.AccessKey) keyView {
	v := keyView{
		ID:        k.ID,
		RemoteID:  k.RemoteID,
		Name:      k.Name,
		Port:      k.Port,
		Method:    k.Method,
		AccessURL: k.AccessURL,
		DataUsage: formatBytes(k.DataUsage),
		DataLimit: formatLimit(k.DataLimit),
		ExpiresAt: k.ExpiresAt,
	}
	if k.Owner != nil {
		id := k.Owner.ID
		v.OwnerID = &id
		v.Owner = k.Owner.Nickname
	}
	return v
}

func toKeyViews(keys []model.AccessKey) []keyView {
	views := make([]keyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, toKeyView(k))
	}
	return views
}

func toServerView(info model.ServerInfo) serverView {
	return serverView{
		ID:             info.ID,
		Name:           info.Name,
		Version:        info.Version,
		Hostname:       info.Hostname,
		Port:           info.Port,
		CreatedAt:      info.CreatedAt,
		MetricsEnabled: info.MetricsEnabled,
		DataLimit:      formatLimit(info.DataLimit),
		DataUsage:      formatBytes(info.DataUsage()),
		AccessKeys:     toKeyViews(info.AccessKeys),
	}
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func formatLimit(limit *int64) string {
	if limit == nil {
		return "unlimited"
	}
	return formatBytes(*limit)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
