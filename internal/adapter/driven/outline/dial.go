package outline

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"
)

// probeTimeout bounds the localhost availability check in Dial.
const probeTimeout = 5 * time.Second

// Options configures Dial.
type Options struct {
	APIURL     string
	CertSHA256 string
	Timeout    time.Duration

	// PreferLocalhost makes Dial try the API on localhost first.
	PreferLocalhost bool
}

// Dial builds a Client from opts. With PreferLocalhost set it probes the API
// URL with its host replaced by localhost and uses that endpoint when it
// answers; otherwise it returns a client for the public URL without probing.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	apiURL := strings.TrimSpace(opts.APIURL)
	if apiURL == "" {
		return nil, fmt.Errorf("dialing outline: empty API URL")
	}

	if opts.PreferLocalhost {
		if local, ok := localhostURL(apiURL); ok {
			client, err := NewClient(local, opts.CertSHA256, opts.Timeout)
			if err != nil {
				return nil, fmt.Errorf("dialing outline: %w", err)
			}

			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err = client.Ping(probeCtx)
			cancel()
			if err == nil {
				slog.Info("using local outline management API")
				return client, nil
			}
			slog.Debug("local outline management API unavailable", "error", err)
		}
	}

	client, err := NewClient(apiURL, opts.CertSHA256, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing outline: %w", err)
	}
	return client, nil
}

// localhostURL rewrites the host of apiURL to localhost, keeping scheme,
// port and path. It reports false when the URL cannot be parsed or already
// points at localhost.
func localhostURL(apiURL string) (string, bool) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" || u.Hostname() == "localhost" {
		return "", false
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("localhost", port)
	} else {
		u.Host = "localhost"
	}
	return u.String(), true
}
