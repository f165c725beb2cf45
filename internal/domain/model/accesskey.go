package model

import "time"

// AccessKey is the reconciled view of a VPN access key: connection details
// and usage come from the Outline server, ownership and expiry from the local
// ledger. It is assembled on every read and never persisted as a whole.
type AccessKey struct {
	ID        string // Ledger id; empty for keys that exist only on the server.
	RemoteID  string // Outline access key id.
	Owner     *Owner // Nil for keys that exist only on the server.
	Name      string
	Password  string
	Port      int
	Method    string
	AccessURL string
	DataUsage int64      // Bytes transferred, zero when the server reports none.
	DataLimit *int64     // Nil means unlimited.
	ExpiresAt *time.Time // Nil means the key never expires.
}

// IsExpired reports whether the key has an expiry at or before now.
func (k AccessKey) IsExpired(now time.Time) bool {
	return isExpired(k.ExpiresAt, now)
}

// IsOrphan reports whether the key has no ledger entry.
func (k AccessKey) IsOrphan() bool {
	return k.ID == ""
}

// KeyRecord is a ledger row: the local identity of an access key and the
// Outline key it maps to.
type KeyRecord struct {
	ID        string
	OwnerID   int64
	RemoteID  string
	ExpiresAt *time.Time
}

// IsExpired reports whether the record has an expiry at or before now.
func (r KeyRecord) IsExpired(now time.Time) bool {
	return isExpired(r.ExpiresAt, now)
}

func isExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !expiresAt.After(now)
}
