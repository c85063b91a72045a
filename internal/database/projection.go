package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reservas/internal/models"
)

const spaceProjectionColumns = `id, name, type_id, description, capacity, hourly_rate, daily_rate,
	active, created_at, updated_at, event_ts`

// GetSpace reads the local projection. A missing row is ErrNotFound, never "inactive".
func (db *DB) GetSpace(ctx context.Context, id int64) (*models.Space, error) {
	query := `SELECT ` + spaceProjectionColumns + ` FROM space_projection WHERE id = ?`
	var (
		s                             models.Space
		createdAt, updatedAt, eventTS string
	)
	err := db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.TypeID, &s.Description, &s.Capacity, &s.HourlyRate, &s.DailyRate,
		&s.Active, &createdAt, &updatedAt, &eventTS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get space: %w", err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if s.EventTS, err = parseTime(eventTS); err != nil {
		return nil, err
	}
	return &s, nil
}

const insertProjection = `INSERT INTO space_projection (
				id, name, type_id, description, capacity, hourly_rate, daily_rate,
				active, created_at, updated_at, event_ts
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertSpaceIfAbsent inserts the snapshot and leaves an existing row untouched.
func (db *DB) InsertSpaceIfAbsent(ctx context.Context, s *models.Space) (bool, error) {
	if s == nil {
		return false, ErrNilSnapshot
	}
	return db.execProjection(ctx, insertProjection+` ON CONFLICT(id) DO NOTHING`, projectionArgs(s, s.Active)...)
}

// UpsertSpaceIfNewer inserts the snapshot, or overwrites the mutable fields when
// the snapshot's event time is after the stored one.
func (db *DB) UpsertSpaceIfNewer(ctx context.Context, s *models.Space) (bool, error) {
	if s == nil {
		return false, ErrNilSnapshot
	}
	query := insertProjection + ` ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                type_id = excluded.type_id,
                description = excluded.description,
                capacity = excluded.capacity,
                hourly_rate = excluded.hourly_rate,
                daily_rate = excluded.daily_rate,
                active = excluded.active,
                updated_at = excluded.updated_at,
                event_ts = excluded.event_ts
              WHERE excluded.event_ts > space_projection.event_ts`
	return db.execProjection(ctx, query, projectionArgs(s, s.Active)...)
}

// DeactivateSpaceIfNewer soft-deletes the space. An unknown id is stored as an
// inactive tombstone so a late CREATED cannot resurrect it.
func (db *DB) DeactivateSpaceIfNewer(ctx context.Context, s *models.Space) (bool, error) {
	if s == nil {
		return false, ErrNilSnapshot
	}
	query := insertProjection + ` ON CONFLICT(id) DO UPDATE SET
                active = 0,
                updated_at = excluded.updated_at,
                event_ts = excluded.event_ts
              WHERE excluded.event_ts > space_projection.event_ts`
	return db.execProjection(ctx, query, projectionArgs(s, false)...)
}

func (db *DB) execProjection(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to write space projection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func projectionArgs(s *models.Space, active bool) []any {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.EventTS
	}
	return []any{
		s.ID,
		s.Name,
		s.TypeID,
		s.Description,
		s.Capacity,
		s.HourlyRate,
		s.DailyRate,
		boolToInt(active),
		formatTime(createdAt),
		formatTime(s.EventTS),
		formatTime(s.EventTS),
	}
}
