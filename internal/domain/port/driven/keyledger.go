package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// ErrKeyRecordExists indicates a key record with the same (id, owner) pair
// already exists. The ledger never overwrites an existing record.
var ErrKeyRecordExists = errors.New("key record already exists")

// KeyLedger defines the driven port for the local access key ledger: who owns
// which Outline key and when it expires.
type KeyLedger interface {
	// Create inserts a new record. Returns ErrKeyRecordExists on an id
	// collision and ErrOwnerNotFound if the owner does not exist.
	Create(ctx context.Context, record model.KeyRecord) error

	// Get returns the record with the given id owned by ownerID, or nil, nil.
	Get(ctx context.Context, ownerID int64, id string) (*model.KeyRecord, error)

	ListByOwner(ctx context.Context, ownerID int64) ([]model.KeyRecord, error)
	ListAll(ctx context.Context) ([]model.KeyRecord, error)

	// ListExpired returns records whose expiry is at or before the store's
	// current time.
	ListExpired(ctx context.Context) ([]model.KeyRecord, error)

	// UpdateExpiry sets (or, with nil, clears) the expiry of a record.
	// Returns false if no such record exists.
	UpdateExpiry(ctx context.Context, ownerID int64, id string, expiresAt *time.Time) (bool, error)

	// Delete removes a record. Returns false if no such record exists.
	Delete(ctx context.Context, ownerID int64, id string) (bool, error)
}
