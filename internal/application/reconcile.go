package application

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// snapshot is the outcome of one reconciliation read.
type snapshot struct {
	keys      []model.AccessKey
	unmatched []model.KeyRecord // Ledger entries whose Outline key was not found.
}

// read is the single path through which keys are observed. It selects ledger
// records for f, fetches the matching Outline keys and usage, joins them by
// remote id and reaps expired keys unless allowExpired is set.
func (s *KeyService) read(ctx context.Context, f KeyFilter, allowExpired bool) (snapshot, error) {
	records, err := s.loadRecords(ctx, f)
	if err != nil {
		return snapshot{}, err
	}

	remotes, usage, err := s.fetchRemote(ctx, f.scoped(), records)
	if err != nil {
		return snapshot{}, err
	}

	owners, err := s.loadOwners(ctx, records)
	if err != nil {
		return snapshot{}, err
	}

	byRemote := make(map[string]model.KeyRecord, len(records))
	for _, rec := range records {
		if _, dup := byRemote[rec.RemoteID]; !dup {
			byRemote[rec.RemoteID] = rec
		}
	}

	now := s.now()
	seen := make(map[string]bool, len(remotes))
	keys := make([]model.AccessKey, 0, len(remotes))

	for _, remote := range remotes {
		seen[remote.ID] = true

		key := s.buildKey(remote, usage[remote.ID], byRemote, owners)
		if !allowExpired && key.IsExpired(now) {
			slog.Info("reaping expired access key", "key_id", key.ID, "remote_id", key.RemoteID)
			if err := s.deleteKey(ctx, key); err != nil {
				return snapshot{}, fmt.Errorf("reaping expired access key %s: %w", key.ID, err)
			}
			continue
		}
		keys = append(keys, key)
	}

	var unmatched []model.KeyRecord
	for _, rec := range records {
		if !seen[rec.RemoteID] {
			unmatched = append(unmatched, rec)
		}
	}

	return snapshot{keys: keys, unmatched: unmatched}, nil
}

// loadRecords selects the ledger records f refers to. An owner that does not
// exist selects nothing.
func (s *KeyService) loadRecords(ctx context.Context, f KeyFilter) ([]model.KeyRecord, error) {
	switch {
	case f.ID != "" && !f.Owner.IsZero():
		owner, err := s.resolveOwner(ctx, f.Owner)
		if err != nil || owner == nil {
			return nil, err
		}
		rec, err := s.ledger.Get(ctx, owner.ID, f.ID)
		if err != nil {
			return nil, fmt.Errorf("getting ledger entry %s: %w", f.ID, err)
		}
		if rec == nil {
			return nil, nil
		}
		return []model.KeyRecord{*rec}, nil

	case f.ID != "":
		all, err := s.ledger.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing ledger entries: %w", err)
		}
		var matched []model.KeyRecord
		for _, rec := range all {
			if rec.ID == f.ID {
				matched = append(matched, rec)
			}
		}
		return matched, nil

	case !f.Owner.IsZero():
		owner, err := s.resolveOwner(ctx, f.Owner)
		if err != nil || owner == nil {
			return nil, err
		}
		records, err := s.ledger.ListByOwner(ctx, owner.ID)
		if err != nil {
			return nil, fmt.Errorf("listing ledger entries of owner %d: %w", owner.ID, err)
		}
		return records, nil

	case f.ExpiredOnly:
		records, err := s.ledger.ListExpired(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing expired ledger entries: %w", err)
		}
		return records, nil

	default:
		records, err := s.ledger.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing ledger entries: %w", err)
		}
		return records, nil
	}
}

// fetchRemote loads the Outline keys backing records. An unscoped read gets
// the whole server, orphans included. A scoped read with several records
// lists the server and keeps the matching keys, one record costs a single
// lookup and no records cost nothing. Usage is only fetched when there are
// keys to report it for.
func (s *KeyService) fetchRemote(ctx context.Context, scoped bool, records []model.KeyRecord) ([]model.RemoteKey, map[string]int64, error) {
	if scoped && len(records) == 0 {
		return nil, nil, nil
	}

	if scoped && len(records) == 1 {
		remote, err := s.outline.GetAccessKey(ctx, records[0].RemoteID)
		if err != nil {
			return nil, nil, fmt.Errorf("getting access key %s: %w", records[0].RemoteID, err)
		}
		if remote == nil {
			return nil, nil, nil
		}
		usage, err := s.outline.GetTransferMetrics(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("getting transfer metrics: %w", err)
		}
		return []model.RemoteKey{*remote}, usage, nil
	}

	var (
		remotes []model.RemoteKey
		usage   map[string]int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		remotes, err = s.outline.GetAccessKeys(gctx)
		if err != nil {
			return fmt.Errorf("listing access keys: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		usage, err = s.outline.GetTransferMetrics(gctx)
		if err != nil {
			return fmt.Errorf("getting transfer metrics: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if !scoped {
		return remotes, usage, nil
	}

	wanted := make(map[string]bool, len(records))
	for _, rec := range records {
		wanted[rec.RemoteID] = true
	}
	matched := make([]model.RemoteKey, 0, len(records))
	for _, remote := range remotes {
		if wanted[remote.ID] {
			matched = append(matched, remote)
		}
	}
	return matched, usage, nil
}

func (s *KeyService) loadOwners(ctx context.Context, records []model.KeyRecord) (map[int64]model.Owner, error) {
	if len(records) == 0 {
		return nil, nil
	}

	seen := make(map[int64]bool, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		if !seen[rec.OwnerID] {
			seen[rec.OwnerID] = true
			ids = append(ids, rec.OwnerID)
		}
	}

	owners, err := s.owners.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading key owners: %w", err)
	}

	byID := make(map[int64]model.Owner, len(owners))
	for _, o := range owners {
		byID[o.ID] = o
	}
	return byID, nil
}

// buildKey joins an Outline key with its ledger record, if any. The prefix is
// applied to the access URL before the resolver sees the key.
func (s *KeyService) buildKey(
	remote model.RemoteKey,
	usage int64,
	byRemote map[string]model.KeyRecord,
	owners map[int64]model.Owner,
) model.AccessKey {
	key := model.AccessKey{
		RemoteID:  remote.ID,
		Name:      remote.Name,
		Password:  remote.Password,
		Port:      remote.Port,
		Method:    remote.Method,
		AccessURL: s.prefixes.Apply(remote.Port, remote.AccessURL),
		DataUsage: usage,
	}
	if remote.DataLimit != nil && *remote.DataLimit >= 0 {
		limit := *remote.DataLimit
		key.DataLimit = &limit
	}

	if rec, ok := byRemote[remote.ID]; ok {
		key.ID = rec.ID
		key.ExpiresAt = rec.ExpiresAt
		if owner, ok := owners[rec.OwnerID]; ok {
			key.Owner = &owner
		}
	}

	key.AccessURL = s.resolve(key)
	return key
}
