package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reservas/internal/models"
)

func (db *DB) CreateSpaceType(ctx context.Context, st *models.SpaceType) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO space_types (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		st.Name, st.Description, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("space type %q: %w", st.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to create space type: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	st.ID = id
	st.CreatedAt = now
	st.UpdatedAt = now
	return nil
}

func (db *DB) UpdateSpaceType(ctx context.Context, st *models.SpaceType) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`UPDATE space_types SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		st.Name, st.Description, formatTime(now), st.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("space type %q: %w", st.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to update space type: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	stored, err := db.GetSpaceType(ctx, st.ID)
	if err != nil {
		return err
	}
	*st = *stored
	return nil
}

// DeleteSpaceType removes a type no space refers to.
func (db *DB) DeleteSpaceType(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var refs int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM spaces WHERE type_id = ?`, id).Scan(&refs); err != nil {
		return fmt.Errorf("failed to count spaces of type: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("space type %d used by %d spaces: %w", id, refs, ErrInUse)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM space_types WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete space type: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (db *DB) GetSpaceType(ctx context.Context, id int64) (*models.SpaceType, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM space_types WHERE id = ?`, id)
	st, err := scanSpaceType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get space type: %w", err)
	}
	return st, nil
}

func (db *DB) ListSpaceTypes(ctx context.Context) ([]*models.SpaceType, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM space_types ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list space types: %w", err)
	}
	defer rows.Close()

	types := make([]*models.SpaceType, 0)
	for rows.Next() {
		st, err := scanSpaceType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan space type: %w", err)
		}
		types = append(types, st)
	}
	return types, rows.Err()
}

func scanSpaceType(row rowScanner) (*models.SpaceType, error) {
	var (
		st                   models.SpaceType
		createdAt, updatedAt string
	)
	if err := row.Scan(&st.ID, &st.Name, &st.Description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}
