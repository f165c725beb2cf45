package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
	"github.com/ericfisherdev/keyhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OwnerStore = (*OwnerRepo)(nil)

// OwnerRepo is the SQLite implementation of the OwnerStore port interface.
type OwnerRepo struct {
	db *DB
}

// NewOwnerRepo creates a new OwnerRepo backed by the given DB.
func NewOwnerRepo(db *DB) *OwnerRepo {
	return &OwnerRepo{db: db}
}

// Create inserts a new owner. An empty nickname defaults to the decimal id
// and a zero JoinedAt to the current time.
func (r *OwnerRepo) Create(ctx context.Context, owner model.Owner) (model.Owner, error) {
	const query = `INSERT INTO owners (id, nickname, joined_at) VALUES (?, ?, ?)`

	if owner.Nickname == "" {
		owner.Nickname = fmt.Sprint(owner.ID)
	}
	if owner.JoinedAt.IsZero() {
		owner.JoinedAt = time.Now().UTC()
	}
	owner.JoinedAt = owner.JoinedAt.UTC().Truncate(time.Second)

	_, err := r.db.Writer.ExecContext(ctx, query, owner.ID, owner.Nickname, formatTime(owner.JoinedAt))
	if err != nil {
		if isConstraintError(err, "UNIQUE", "PRIMARY KEY") {
			return model.Owner{}, fmt.Errorf("create owner %d: %w", owner.ID, driven.ErrOwnerExists)
		}
		return model.Owner{}, fmt.Errorf("create owner %d: %w", owner.ID, err)
	}

	return owner, nil
}

// GetByID returns the owner with the given id, or nil, nil.
func (r *OwnerRepo) GetByID(ctx context.Context, id int64) (*model.Owner, error) {
	const query = `SELECT id, nickname, joined_at FROM owners WHERE id = ?`

	owner, err := scanOwner(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner %d: %w", id, err)
	}
	return owner, nil
}

// GetByNickname returns the owner with the given nickname, or nil, nil.
func (r *OwnerRepo) GetByNickname(ctx context.Context, nickname string) (*model.Owner, error) {
	const query = `SELECT id, nickname, joined_at FROM owners WHERE nickname = ?`

	owner, err := scanOwner(r.db.Reader.QueryRowContext(ctx, query, nickname))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner %q: %w", nickname, err)
	}
	return owner, nil
}

// ListByIDs returns the existing owners among ids.
func (r *OwnerRepo) ListByIDs(ctx context.Context, ids []int64) ([]model.Owner, error) {
	if len(ids) == 0 {
		return []model.Owner{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT id, nickname, joined_at FROM owners WHERE id IN (` + placeholders + `) ORDER BY id`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return r.list(ctx, query, args...)
}

// ListAll returns all owners ordered by id, the system owner included.
func (r *OwnerRepo) ListAll(ctx context.Context) ([]model.Owner, error) {
	return r.list(ctx, `SELECT id, nickname, joined_at FROM owners ORDER BY id`)
}

// Delete removes the owner and, by cascade, its key records.
func (r *OwnerRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM owners WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete owner %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *OwnerRepo) list(ctx context.Context, query string, args ...any) ([]model.Owner, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	owners := []model.Owner{}
	for rows.Next() {
		owner, err := scanOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, *owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}

	return owners, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOwner(s scanner) (*model.Owner, error) {
	var owner model.Owner
	var joinedAt string

	if err := s.Scan(&owner.ID, &owner.Nickname, &joinedAt); err != nil {
		return nil, err
	}

	var err error
	owner.JoinedAt, err = parseTime(joinedAt)
	if err != nil {
		return nil, fmt.Errorf("parse joined_at: %w", err)
	}

	return &owner, nil
}

// isConstraintError reports whether err is a SQLite constraint violation of
// one of the given kinds ("UNIQUE", "PRIMARY KEY", "FOREIGN KEY").
func isConstraintError(err error, kinds ...string) bool {
	msg := err.Error()
	for _, kind := range kinds {
		if strings.Contains(msg, kind+" constraint") {
			return true
		}
	}
	return false
}
