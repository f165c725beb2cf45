package application

import (
	"strings"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// AccessURLResolver turns a reconciled key into the URL handed to its owner.
type AccessURLResolver func(model.AccessKey) string

// DirectAccessURL hands out the key's own access URL.
func DirectAccessURL(key model.AccessKey) string {
	return key.AccessURL
}

// RelayURLResolver returns a resolver that points clients at the status
// endpoint served under publicURL instead of the raw access URL, so the key
// can be rotated server side. Keys owned by a registered owner resolve to
// ssconf://<host>/<nickname>/<id>, all others to ssconf://<host>/<id>.
// Without a publicURL, or for keys missing from the ledger, the access URL is
// returned unchanged.
func RelayURLResolver(publicURL string) AccessURLResolver {
	base := publicURL
	if i := strings.Index(base, "://"); i >= 0 {
		base = base[i+len("://"):]
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")

	return func(key model.AccessKey) string {
		if base == "" || key.ID == "" {
			return key.AccessURL
		}
		if key.Owner != nil && !key.Owner.IsSystem() {
			return "ssconf://" + base + "/" + key.Owner.Nickname + "/" + key.ID
		}
		return "ssconf://" + base + "/" + key.ID
	}
}
