package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// Sentinel errors returned by OwnerStore implementations.
var (
	// ErrOwnerExists indicates an owner with the same id or nickname already exists.
	ErrOwnerExists = errors.New("owner already exists")

	// ErrOwnerNotFound indicates a write referenced an owner that does not exist.
	ErrOwnerNotFound = errors.New("owner not found")
)

// OwnerStore defines the driven port for identity persistence.
// Get methods return nil, nil when the owner does not exist.
type OwnerStore interface {
	// Create inserts a new owner. Returns ErrOwnerExists if the id or
	// nickname is taken.
	Create(ctx context.Context, owner model.Owner) (model.Owner, error)
	GetByID(ctx context.Context, id int64) (*model.Owner, error)
	GetByNickname(ctx context.Context, nickname string) (*model.Owner, error)
	// ListByIDs returns the owners among ids that exist, in no particular order.
	ListByIDs(ctx context.Context, ids []int64) ([]model.Owner, error)
	ListAll(ctx context.Context) ([]model.Owner, error)
	// Delete removes an owner and, through the foreign key cascade, all of its
	// key records. Returns false if no such owner existed.
	Delete(ctx context.Context, id int64) (bool, error)
}
