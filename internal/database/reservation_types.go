package database

import (
	"context"
	"fmt"
	"time"

	"reservas/internal/models"
)

func (db *DB) CreateReservationType(ctx context.Context, rt *models.ReservationType) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO reservation_types (name, description, created_at) VALUES (?, ?, ?)`,
		rt.Name, rt.Description, formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reservation type %q: %w", rt.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to create reservation type: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rt.ID = id
	rt.CreatedAt = now
	return nil
}

func (db *DB) ListReservationTypes(ctx context.Context) ([]*models.ReservationType, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM reservation_types ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservation types: %w", err)
	}
	defer rows.Close()

	types := make([]*models.ReservationType, 0)
	for rows.Next() {
		var (
			rt        models.ReservationType
			createdAt string
		)
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reservation type: %w", err)
		}
		if rt.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		types = append(types, &rt)
	}
	return types, rows.Err()
}
