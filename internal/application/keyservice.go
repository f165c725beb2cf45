package application

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
	"github.com/ericfisherdev/keyhub/internal/domain/port/driven"
)

var (
	// ErrInvalidOwner is returned when an operation names an owner that does
	// not exist. Nothing has been changed when it is returned.
	ErrInvalidOwner = errors.New("invalid owner")

	// ErrInvalidRemoteResponse is returned when the Outline server accepted a
	// create request but answered without a key.
	ErrInvalidRemoteResponse = errors.New("invalid response from the outline server")

	// ErrKeyNotFound is returned when a key that was just written cannot be
	// read back through the reconciliation path.
	ErrKeyNotFound = errors.New("access key not found after write")
)

// KeyFilter scopes a read. The first applicable field wins: ID (within Owner
// when set), then Owner, then ExpiredOnly. The zero filter selects every key
// on the server, including keys missing from the ledger.
type KeyFilter struct {
	Owner       model.OwnerRef
	ID          string
	ExpiredOnly bool
}

func (f KeyFilter) scoped() bool {
	return f.ID != "" || !f.Owner.IsZero() || f.ExpiredOnly
}

// NewKey describes an access key to create. Zero fields are left for the
// Outline server to choose.
type NewKey struct {
	Name      string
	Password  string
	Method    string
	Port      int
	DataLimit *int64     // Nil means unlimited.
	ExpiresAt *time.Time // Nil means never.
}

// KeyPatch lists the changes to apply to access keys. Name and DataLimit go
// to the Outline server (a negative DataLimit removes the limit); ExpiresAt
// goes to the ledger when SetExpiry is true (nil clears the expiry).
type KeyPatch struct {
	Name      *string
	DataLimit *int64
	SetExpiry bool
	ExpiresAt *time.Time
}

// KeyServiceOption customizes a KeyService.
type KeyServiceOption func(*KeyService)

// WithPrefixTable replaces the default prefix table. A nil table disables
// prefixing.
func WithPrefixTable(t PrefixTable) KeyServiceOption {
	return func(s *KeyService) { s.prefixes = t }
}

// WithAccessURLResolver sets the resolver applied to every key read.
func WithAccessURLResolver(r AccessURLResolver) KeyServiceOption {
	return func(s *KeyService) {
		if r != nil {
			s.resolve = r
		}
	}
}

// WithKeyEvents sets the receiver of key created and deleted events.
func WithKeyEvents(e KeyEvents) KeyServiceOption {
	return func(s *KeyService) { s.events = e }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) KeyServiceOption {
	return func(s *KeyService) {
		if now != nil {
			s.now = now
		}
	}
}

// KeyService reconciles access keys between the local ledger, which owns
// ownership and expiry, and the Outline server, which owns connection details
// and usage. Every operation observes keys through the same read path, which
// also reaps expired keys.
type KeyService struct {
	owners  driven.OwnerStore
	ledger  driven.KeyLedger
	outline driven.OutlineClient

	prefixes PrefixTable
	resolve  AccessURLResolver
	events   KeyEvents
	now      func() time.Time
	newID    func() string
}

// NewKeyService creates a KeyService with the default prefix table and the
// direct access URL resolver.
func NewKeyService(
	owners driven.OwnerStore,
	ledger driven.KeyLedger,
	outline driven.OutlineClient,
	opts ...KeyServiceOption,
) *KeyService {
	s := &KeyService{
		owners:   owners,
		ledger:   ledger,
		outline:  outline,
		prefixes: DefaultPrefixTable(),
		resolve:  DirectAccessURL,
		now:      time.Now,
		newID:    newLocalID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newLocalID returns a 22 character URL-safe token carrying 122 random bits.
func newLocalID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// GetServerInfo returns the server configuration together with every key on
// the server, expired ones included.
func (s *KeyService) GetServerInfo(ctx context.Context) (*model.ServerInfo, error) {
	var (
		cfg  *model.ServerConfig
		keys []model.AccessKey
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cfg, err = s.outline.GetServerInfo(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		keys, err = s.GetAccessKeys(gctx, KeyFilter{}, true)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("getting server info: %w", err)
	}

	info := &model.ServerInfo{ServerConfig: *cfg, AccessKeys: keys}
	if info.DataLimit != nil && *info.DataLimit < 0 {
		info.DataLimit = nil
	}
	return info, nil
}

// PatchServerInfo applies the present fields of p to the server.
func (s *KeyService) PatchServerInfo(ctx context.Context, p model.ServerPatch) error {
	if err := s.outline.PatchServerInfo(ctx, p); err != nil {
		return fmt.Errorf("patching server info: %w", err)
	}
	return nil
}

// CreateAccessKey provisions a key on the Outline server for the referenced
// owner, records it in the ledger and returns the reconciled key.
//
// If the ledger write fails the Outline key is left in place and logged; it
// shows up as an ownerless key in unfiltered reads.
func (s *KeyService) CreateAccessKey(ctx context.Context, ref model.OwnerRef, nk NewKey) (*model.AccessKey, error) {
	owner, err := s.resolveOwner(ctx, ref)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, ref.String())
	}

	remote, err := s.outline.CreateAccessKey(ctx, model.RemoteKeySpec{
		Name:      nk.Name,
		Password:  nk.Password,
		Port:      nk.Port,
		Method:    nk.Method,
		DataLimit: nk.DataLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("creating access key: %w", err)
	}
	if remote == nil || remote.ID == "" {
		return nil, ErrInvalidRemoteResponse
	}

	record := model.KeyRecord{
		ID:        s.newID(),
		OwnerID:   owner.ID,
		RemoteID:  remote.ID,
		ExpiresAt: nk.ExpiresAt,
	}
	if err := s.ledger.Create(ctx, record); err != nil {
		slog.Warn("outline access key has no ledger entry",
			"remote_id", remote.ID,
			"owner_id", owner.ID,
			"error", err,
		)
		return nil, fmt.Errorf("recording access key: %w", err)
	}

	key, err := s.GetAccessKey(ctx, model.OwnerOf(*owner), record.ID, true)
	if err != nil {
		return nil, fmt.Errorf("reading created access key: %w", err)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, record.ID)
	}

	slog.Info("access key created",
		"key_id", key.ID,
		"remote_id", key.RemoteID,
		"owner_id", owner.ID,
		"data_limit", formatLimit(key.DataLimit),
	)
	if s.events != nil {
		s.events.KeyCreated(*key)
	}
	return key, nil
}

// GetAccessKey returns the key with the given ledger id, or nil when there is
// none. Without allowExpired an expired key is deleted and nil is returned.
func (s *KeyService) GetAccessKey(ctx context.Context, ref model.OwnerRef, id string, allowExpired bool) (*model.AccessKey, error) {
	if id == "" {
		return nil, nil
	}
	keys, err := s.GetAccessKeys(ctx, KeyFilter{Owner: ref, ID: id}, allowExpired)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return &keys[0], nil
}

// GetAccessKeys returns the reconciled keys selected by f. Without
// allowExpired, expired keys are deleted from both stores as they are read
// and left out of the result.
func (s *KeyService) GetAccessKeys(ctx context.Context, f KeyFilter, allowExpired bool) ([]model.AccessKey, error) {
	snap, err := s.read(ctx, f, allowExpired)
	if err != nil {
		return nil, err
	}
	return snap.keys, nil
}

// PatchAccessKey patches a single key and reports whether it was changed on
// at least one side.
func (s *KeyService) PatchAccessKey(ctx context.Context, ref model.OwnerRef, id string, p KeyPatch) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := s.PatchAccessKeys(ctx, KeyFilter{Owner: ref, ID: id}, p)
	return n > 0, err
}

// PatchAccessKeys applies p to every key selected by f, expired ones
// included, and returns how many keys were changed. A key counts as changed
// when either the Outline server or the ledger accepted the change. Failures
// on keys that still counted are logged; the returned error joins the
// failures of keys that changed nowhere.
func (s *KeyService) PatchAccessKeys(ctx context.Context, f KeyFilter, p KeyPatch) (int, error) {
	keys, err := s.GetAccessKeys(ctx, f, true)
	if err != nil {
		return 0, err
	}

	var (
		count int
		errs  []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		ok, err := s.patchKey(ctx, key, p)
		if ok {
			count++
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return count, errors.Join(errs...)
}

func (s *KeyService) patchKey(ctx context.Context, key model.AccessKey, p KeyPatch) (bool, error) {
	var remoteOK, ledgerOK bool
	var remoteErr, ledgerErr error

	if key.RemoteID != "" {
		remoteOK, remoteErr = s.outline.PatchAccessKey(ctx, key.RemoteID, model.RemoteKeyPatch{
			Name:      p.Name,
			DataLimit: p.DataLimit,
		})
		if remoteErr != nil {
			slog.Warn("outline patch failed", "key_id", key.ID, "remote_id", key.RemoteID, "error", remoteErr)
		}
	}

	if p.SetExpiry && key.ID != "" && key.Owner != nil {
		ledgerOK, ledgerErr = s.ledger.UpdateExpiry(ctx, key.Owner.ID, key.ID, p.ExpiresAt)
		if ledgerErr != nil {
			slog.Warn("ledger patch failed", "key_id", key.ID, "owner_id", key.Owner.ID, "error", ledgerErr)
			ledgerErr = fmt.Errorf("updating expiry of %s: %w", key.ID, ledgerErr)
		}
	}

	return remoteOK || ledgerOK, errors.Join(remoteErr, ledgerErr)
}

// DeleteAccessKey deletes one key and returns it, or nil when it did not
// exist.
func (s *KeyService) DeleteAccessKey(ctx context.Context, ref model.OwnerRef, id string) (*model.AccessKey, error) {
	if id == "" {
		return nil, nil
	}
	keys, err := s.DeleteAccessKeys(ctx, KeyFilter{Owner: ref, ID: id})
	if len(keys) == 0 {
		return nil, err
	}
	return &keys[0], err
}

// DeleteAccessKeys deletes every key selected by f, expired ones included,
// and returns the deleted keys. It stops at the first failure and returns the
// keys deleted before it.
func (s *KeyService) DeleteAccessKeys(ctx context.Context, f KeyFilter) ([]model.AccessKey, error) {
	keys, err := s.GetAccessKeys(ctx, f, true)
	if err != nil {
		return nil, err
	}
	return s.deleteKeys(ctx, keys)
}

// DeleteExpiredAccessKeys deletes every key whose expiry has passed. Expired
// ledger entries whose Outline key is already gone are dropped as well.
func (s *KeyService) DeleteExpiredAccessKeys(ctx context.Context) ([]model.AccessKey, error) {
	snap, err := s.read(ctx, KeyFilter{ExpiredOnly: true}, true)
	if err != nil {
		return nil, err
	}

	deleted, err := s.deleteKeys(ctx, snap.keys)
	if err != nil {
		return deleted, err
	}

	for _, rec := range snap.unmatched {
		if _, err := s.ledger.Delete(ctx, rec.OwnerID, rec.ID); err != nil {
			return deleted, fmt.Errorf("deleting dangling ledger entry %s: %w", rec.ID, err)
		}
		slog.Info("dangling ledger entry removed", "key_id", rec.ID, "owner_id", rec.OwnerID, "remote_id", rec.RemoteID)
	}
	return deleted, nil
}

// GetRawAccessURL returns the prefixed Outline access URL of a key without
// applying the resolver. It returns "" when the key does not exist; an
// expired key is deleted and also yields "".
func (s *KeyService) GetRawAccessURL(ctx context.Context, ref model.OwnerRef, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	owner, err := s.resolveOwner(ctx, ref)
	if err != nil || owner == nil {
		return "", err
	}

	rec, err := s.ledger.Get(ctx, owner.ID, id)
	if err != nil {
		return "", fmt.Errorf("getting ledger entry %s: %w", id, err)
	}
	if rec == nil {
		return "", nil
	}

	if rec.IsExpired(s.now()) {
		if _, err := s.DeleteAccessKey(ctx, model.OwnerOf(*owner), rec.ID); err != nil {
			return "", err
		}
		return "", nil
	}

	remote, err := s.outline.GetAccessKey(ctx, rec.RemoteID)
	if err != nil {
		return "", fmt.Errorf("getting access key %s: %w", id, err)
	}
	if remote == nil {
		return "", nil
	}
	return s.prefixes.Apply(remote.Port, remote.AccessURL), nil
}

func (s *KeyService) deleteKeys(ctx context.Context, keys []model.AccessKey) ([]model.AccessKey, error) {
	for i, key := range keys {
		if err := s.deleteKey(ctx, key); err != nil {
			return keys[:i], err
		}
	}
	return keys, nil
}

// deleteKey removes key from whichever stores know it and raises the
// deletion event. A side that no longer has the key is not an error.
func (s *KeyService) deleteKey(ctx context.Context, key model.AccessKey) error {
	if key.RemoteID != "" {
		if _, err := s.outline.DeleteAccessKey(ctx, key.RemoteID); err != nil {
			return fmt.Errorf("deleting access key %s: %w", key.RemoteID, err)
		}
	}
	if key.ID != "" && key.Owner != nil {
		if _, err := s.ledger.Delete(ctx, key.Owner.ID, key.ID); err != nil {
			return fmt.Errorf("deleting ledger entry %s: %w", key.ID, err)
		}
	}

	slog.Info("access key deleted",
		"key_id", key.ID,
		"remote_id", key.RemoteID,
		"data_usage", humanize.Bytes(uint64(max(key.DataUsage, 0))),
	)
	if s.events != nil {
		s.events.KeyDeleted(key)
	}
	return nil
}

// resolveOwner looks up the owner ref points at. It returns nil for the zero
// ref and for owners that do not exist.
func (s *KeyService) resolveOwner(ctx context.Context, ref model.OwnerRef) (*model.Owner, error) {
	if nickname, ok := ref.Nickname(); ok {
		owner, err := s.owners.GetByNickname(ctx, nickname)
		if err != nil {
			return nil, fmt.Errorf("resolving owner %q: %w", nickname, err)
		}
		return owner, nil
	}
	if id, ok := ref.ID(); ok {
		owner, err := s.owners.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving owner %d: %w", id, err)
		}
		return owner, nil
	}
	return nil, nil
}

func formatLimit(limit *int64) string {
	if limit == nil || *limit < 0 {
		return "unlimited"
	}
	return humanize.Bytes(uint64(*limit))
}
