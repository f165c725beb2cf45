package driven

import (
	"context"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// OutlineClient defines the driven port for the Outline server management
// API. A missing key is never an error: GetAccessKey returns nil, nil and
// PatchAccessKey / DeleteAccessKey return false, nil. Every other failure is
// returned as an error.
type OutlineClient interface {
	GetServerInfo(ctx context.Context) (*model.ServerConfig, error)
	// PatchServerInfo sends only the fields set in patch.
	PatchServerInfo(ctx context.Context, patch model.ServerPatch) error

	GetAccessKeys(ctx context.Context) ([]model.RemoteKey, error)
	GetAccessKey(ctx context.Context, id string) (*model.RemoteKey, error)
	// CreateAccessKey returns nil, nil when the server answers without a key.
	CreateAccessKey(ctx context.Context, spec model.RemoteKeySpec) (*model.RemoteKey, error)
	PatchAccessKey(ctx context.Context, id string, patch model.RemoteKeyPatch) (bool, error)
	DeleteAccessKey(ctx context.Context, id string) (bool, error)

	// GetTransferMetrics returns bytes transferred keyed by Outline key id.
	GetTransferMetrics(ctx context.Context) (map[string]int64, error)
}
