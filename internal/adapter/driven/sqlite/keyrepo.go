package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
	"github.com/ericfisherdev/keyhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KeyLedger = (*KeyRepo)(nil)

// KeyRepo is the SQLite implementation of the KeyLedger port interface.
// Expiry timestamps are stored in UTC in the CURRENT_TIMESTAMP layout so that
// ListExpired can compare them against the database clock.
type KeyRepo struct {
	db *DB
}

// NewKeyRepo creates a new KeyRepo backed by the given DB.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db}
}

const keyColumns = `id, owner_id, remote_id, expires_at`

// Create inserts a new key record. A plain INSERT is used on purpose: an id
// collision must surface as ErrKeyRecordExists, never replace a row.
func (r *KeyRepo) Create(ctx context.Context, record model.KeyRecord) error {
	const query = `INSERT INTO access_keys (` + keyColumns + `) VALUES (?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		record.ID, record.OwnerID, record.RemoteID, nullTime(record.ExpiresAt))
	if err != nil {
		switch {
		case isConstraintError(err, "UNIQUE", "PRIMARY KEY"):
			return fmt.Errorf("create key record %s: %w", record.ID, driven.ErrKeyRecordExists)
		case isConstraintError(err, "FOREIGN KEY"):
			return fmt.Errorf("create key record %s for owner %d: %w", record.ID, record.OwnerID, driven.ErrOwnerNotFound)
		}
		return fmt.Errorf("create key record %s: %w", record.ID, err)
	}

	return nil
}

// Get returns the record (ownerID, id), or nil, nil.
func (r *KeyRepo) Get(ctx context.Context, ownerID int64, id string) (*model.KeyRecord, error) {
	const query = `SELECT ` + keyColumns + ` FROM access_keys WHERE id = ? AND owner_id = ?`

	record, err := scanKeyRecord(r.db.Reader.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get key record %s: %w", id, err)
	}
	return record, nil
}

// ListByOwner returns the owner's records in creation order.
func (r *KeyRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.KeyRecord, error) {
	const query = `SELECT ` + keyColumns + ` FROM access_keys WHERE owner_id = ? ORDER BY rowid`
	return r.list(ctx, query, ownerID)
}

// ListAll returns every record in creation order.
func (r *KeyRepo) ListAll(ctx context.Context) ([]model.KeyRecord, error) {
	const query = `SELECT ` + keyColumns + ` FROM access_keys ORDER BY rowid`
	return r.list(ctx, query)
}

// ListExpired returns records that expired at or before the database's
// CURRENT_TIMESTAMP.
func (r *KeyRepo) ListExpired(ctx context.Context) ([]model.KeyRecord, error) {
	const query = `SELECT ` + keyColumns + ` FROM access_keys
		WHERE expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP
		ORDER BY rowid`
	return r.list(ctx, query)
}

// UpdateExpiry sets or clears the expiry of a record.
func (r *KeyRepo) UpdateExpiry(ctx context.Context, ownerID int64, id string, expiresAt *time.Time) (bool, error) {
	const query = `UPDATE access_keys SET expires_at = ? WHERE id = ? AND owner_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, nullTime(expiresAt), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("update key record %s: %w", id, err)
	}
	return affected(result)
}

// Delete removes a record.
func (r *KeyRepo) Delete(ctx context.Context, ownerID int64, id string) (bool, error) {
	const query = `DELETE FROM access_keys WHERE id = ? AND owner_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete key record %s: %w", id, err)
	}
	return affected(result)
}

func (r *KeyRepo) list(ctx context.Context, query string, args ...any) ([]model.KeyRecord, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list key records: %w", err)
	}
	defer rows.Close()

	records := []model.KeyRecord{}
	for rows.Next() {
		record, err := scanKeyRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key records: %w", err)
	}

	return records, nil
}

func scanKeyRecord(s scanner) (*model.KeyRecord, error) {
	var record model.KeyRecord
	var expiresAt sql.NullString

	if err := s.Scan(&record.ID, &record.OwnerID, &record.RemoteID, &expiresAt); err != nil {
		return nil, err
	}

	var err error
	record.ExpiresAt, err = parseNullTime(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	return &record, nil
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows > 0, nil
}
