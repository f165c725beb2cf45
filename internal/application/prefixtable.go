package application

import (
	"net/url"

	"github.com/cespare/xxhash/v2"
)

// PrefixEntry assigns the same candidate prefixes to a group of ports.
type PrefixEntry struct {
	Ports    []int
	Prefixes []string
}

// PrefixTable maps a listening port to the connection prefixes that make key
// traffic look like the protocol usually served on that port.
type PrefixTable map[int][]string

// NewPrefixTable builds a table from entries. A port listed in several
// entries keeps the prefixes of the last one.
func NewPrefixTable(entries ...PrefixEntry) PrefixTable {
	t := make(PrefixTable)
	for _, e := range entries {
		for _, port := range e.Ports {
			t[port] = append([]string(nil), e.Prefixes...)
		}
	}
	return t
}

// DefaultPrefixTable returns the built-in table covering SSH, DNS over TCP,
// plain HTTP and the common TLS ports.
func DefaultPrefixTable() PrefixTable {
	return NewPrefixTable(
		// ssh, netconf-ssh, netconf-ch-ssh, snmpssh-trap
		PrefixEntry{Ports: []int{22, 830, 4334, 5162}, Prefixes: []string{"SSH-2.0\r\n"}},
		// DNS-over-TCP request
		PrefixEntry{Ports: []int{53}, Prefixes: []string{"\u0005\u00dc\u005f\u00e0\u0001\u0020"}},
		// POST and PUT requests
		PrefixEntry{Ports: []int{80}, Prefixes: []string{"POST ", "PUT "}},
		// https, smtps, nntps, ldaps, ftps-data, ftps, imaps, pop3s, apns,
		// play store, turns: TLS ClientHello or TLS application data
		PrefixEntry{
			Ports:    []int{443, 463, 563, 636, 989, 990, 993, 995, 5223, 5228, 5349},
			Prefixes: []string{"\u0016\u0003\u0001\u0000\u00a8\u0001\u0001", "\u0013\u0003\u0003\u003f"},
		},
	)
}

// Select picks the prefix for a key on port. With several candidates the
// choice is a hash of accessURL, so the same key always gets the same prefix.
func (t PrefixTable) Select(port int, accessURL string) (string, bool) {
	candidates := t[port]
	switch len(candidates) {
	case 0:
		return "", false
	case 1:
		return candidates[0], candidates[0] != ""
	}
	p := candidates[xxhash.Sum64String(accessURL)%uint64(len(candidates))]
	return p, p != ""
}

// Apply returns accessURL with the selected prefix set as its "prefix" query
// parameter. URLs without a prefix, or that do not parse, are returned as is.
func (t PrefixTable) Apply(port int, accessURL string) string {
	prefix, ok := t.Select(port, accessURL)
	if !ok {
		return accessURL
	}

	u, err := url.Parse(accessURL)
	if err != nil {
		return accessURL
	}
	q := u.Query()
	q.Set("prefix", prefix)
	u.RawQuery = q.Encode()
	return u.String()
}
