package outline

import (
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// Wire types mirror the Outline management API JSON. They never leave this
// package; map* converts them to domain types.

type dataLimitJSON struct {
	Bytes int64 `json:"bytes"`
}

type limitJSON struct {
	Limit dataLimitJSON `json:"limit"`
}

type accessKeyJSON struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Password  string         `json:"password"`
	Port      int            `json:"port"`
	Method    string         `json:"method"`
	AccessURL string         `json:"accessUrl"`
	DataLimit *dataLimitJSON `json:"dataLimit,omitempty"`
}

type accessKeyListJSON struct {
	AccessKeys []accessKeyJSON `json:"accessKeys"`
}

type createKeyJSON struct {
	Name     string         `json:"name,omitempty"`
	Method   string         `json:"method,omitempty"`
	Password string         `json:"password,omitempty"`
	Port     int            `json:"port,omitempty"`
	Limit    *dataLimitJSON `json:"limit,omitempty"`
}

type serverJSON struct {
	ServerID              string         `json:"serverId"`
	Name                  string         `json:"name"`
	Version               string         `json:"version"`
	HostnameForAccessKeys string         `json:"hostnameForAccessKeys"`
	PortForNewAccessKeys  int            `json:"portForNewAccessKeys"`
	CreatedTimestampMs    float64        `json:"createdTimestampMs"`
	MetricsEnabled        bool           `json:"metricsEnabled"`
	AccessKeyDataLimit    *dataLimitJSON `json:"accessKeyDataLimit,omitempty"`
}

type transferJSON struct {
	BytesTransferredByUserID map[string]int64 `json:"bytesTransferredByUserId"`
}

type metricsEnabledJSON struct {
	MetricsEnabled bool `json:"metricsEnabled"`
}

type nameJSON struct {
	Name string `json:"name"`
}

type hostnameJSON struct {
	Hostname string `json:"hostname"`
}

type portJSON struct {
	Port int `json:"port"`
}

func mapAccessKey(k accessKeyJSON) model.RemoteKey {
	key := model.RemoteKey{
		ID:        k.ID,
		Name:      k.Name,
		Password:  k.Password,
		Port:      k.Port,
		Method:    k.Method,
		AccessURL: k.AccessURL,
	}
	if k.DataLimit != nil {
		limit := k.DataLimit.Bytes
		key.DataLimit = &limit
	}
	return key
}

func mapServer(s serverJSON) model.ServerConfig {
	cfg := model.ServerConfig{
		ID:             s.ServerID,
		Name:           s.Name,
		Version:        s.Version,
		Hostname:       s.HostnameForAccessKeys,
		Port:           s.PortForNewAccessKeys,
		MetricsEnabled: s.MetricsEnabled,
	}
	if s.CreatedTimestampMs > 0 {
		cfg.CreatedAt = time.UnixMilli(int64(s.CreatedTimestampMs)).UTC()
	}
	if s.AccessKeyDataLimit != nil {
		limit := s.AccessKeyDataLimit.Bytes
		cfg.DataLimit = &limit
	}
	return cfg
}
