package model

import "time"

// RemoteKey is an access key as reported by the Outline management API.
type RemoteKey struct {
	ID        string
	Name      string
	Password  string
	Port      int
	Method    string
	AccessURL string
	DataLimit *int64 // Nil means unlimited.
}

// RemoteKeySpec describes a key to provision on the Outline server. Zero
// values are left for the server to choose.
type RemoteKeySpec struct {
	ID        string // Optional; the server assigns one when empty.
	Name      string
	Password  string
	Port      int
	Method    string
	DataLimit *int64
}

// RemoteKeyPatch lists the fields to change on an Outline key. Nil fields are
// left untouched; a negative DataLimit removes the limit.
type RemoteKeyPatch struct {
	Name      *string
	DataLimit *int64
}

// IsEmpty reports whether the patch changes nothing.
func (p RemoteKeyPatch) IsEmpty() bool {
	return p.Name == nil && p.DataLimit == nil
}

// ServerConfig is the Outline server configuration.
type ServerConfig struct {
	ID             string
	Name           string
	Version        string
	Hostname       string // Hostname used in new access URLs.
	Port           int    // Port assigned to new access keys.
	CreatedAt      time.Time
	MetricsEnabled bool
	DataLimit      *int64 // Server-wide per-key limit; nil means unlimited.
}

// ServerPatch lists the server settings to change. Nil fields are left
// untouched; a negative DataLimit removes the server-wide limit.
type ServerPatch struct {
	Name           *string
	Hostname       *string
	Port           *int
	MetricsEnabled *bool
	DataLimit      *int64
}

// ServerInfo combines the server configuration with every access key it
// serves.
type ServerInfo struct {
	ServerConfig
	AccessKeys []AccessKey
}

// DataUsage returns the total bytes transferred by all access keys.
func (s ServerInfo) DataUsage() int64 {
	var total int64
	for _, k := range s.AccessKeys {
		total += k.DataUsage
	}
	return total
}
