package outline

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// AccessConfig is the content of the access.txt file written by the Outline
// server installer.
type AccessConfig struct {
	APIURL     string
	CertSHA256 string
}

var (
	apiURLLine     = regexp.MustCompile(`(?m)^apiUrl:(.+?)\r?$`)
	certSHA256Line = regexp.MustCompile(`(?m)^certSha256:([A-Fa-f0-9]{64})\r?$`)
)

// ParseAccessConfig reads the apiUrl and certSha256 entries from the file at
// path. A missing certificate entry is not an error; a missing API URL is.
func ParseAccessConfig(path string) (AccessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AccessConfig{}, fmt.Errorf("reading access config: %w", err)
	}
	return parseAccessConfig(string(data), path)
}

func parseAccessConfig(content, path string) (AccessConfig, error) {
	var cfg AccessConfig
	if m := apiURLLine.FindStringSubmatch(content); m != nil {
		cfg.APIURL = strings.TrimSpace(m[1])
	}
	if cfg.APIURL == "" {
		return AccessConfig{}, fmt.Errorf("access config %q does not contain a valid apiUrl entry", path)
	}
	if m := certSHA256Line.FindStringSubmatch(content); m != nil {
		cfg.CertSHA256 = m[1]
	}
	return cfg, nil
}
