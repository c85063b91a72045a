package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reservas/internal/models"
)

const spaceColumns = `id, name, type_id, description, capacity, hourly_rate, daily_rate,
	active, created_at, updated_at`

func (db *DB) CreateSpace(ctx context.Context, s *models.Space) error {
	query := `INSERT INTO spaces (
				name, type_id, description, capacity, hourly_rate, daily_rate,
				active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := db.ExecContext(ctx, query,
		s.Name, s.TypeID, s.Description, s.Capacity, s.HourlyRate, s.DailyRate,
		boolToInt(s.Active), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("space %q: %w", s.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to create space: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

func (db *DB) UpdateSpace(ctx context.Context, s *models.Space) error {
	query := `UPDATE spaces
              SET name = ?, type_id = ?, description = ?, capacity = ?, hourly_rate = ?,
                  daily_rate = ?, active = ?, updated_at = ?
              WHERE id = ?`
	now := time.Now().UTC().Truncate(time.Millisecond)
	result, err := db.ExecContext(ctx, query,
		s.Name, s.TypeID, s.Description, s.Capacity, s.HourlyRate, s.DailyRate,
		boolToInt(s.Active), formatTime(now), s.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("space %q: %w", s.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to update space: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	stored, err := db.GetCatalogSpace(ctx, s.ID)
	if err != nil {
		return err
	}
	*s = *stored
	return nil
}

// DeleteSpace marks the space inactive and returns its final snapshot.
func (db *DB) DeleteSpace(ctx context.Context, id int64) (*models.Space, error) {
	query := `UPDATE spaces SET active = 0, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete space: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}
	return db.GetCatalogSpace(ctx, id)
}

func (db *DB) GetCatalogSpace(ctx context.Context, id int64) (*models.Space, error) {
	query := `SELECT ` + spaceColumns + ` FROM spaces WHERE id = ?`
	s, err := scanSpace(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get space: %w", err)
	}
	return s, nil
}

func (db *DB) ListSpaces(ctx context.Context) ([]*models.Space, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+spaceColumns+` FROM spaces ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*models.Space
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan space: %w", err)
		}
		spaces = append(spaces, s)
	}
	return spaces, rows.Err()
}

// SpaceOrderColumns maps the accepted order_by names to their columns.
var SpaceOrderColumns = map[string]string{
	"id":          "id",
	"name":        "name",
	"capacity":    "capacity",
	"hourly_rate": "hourly_rate",
	"daily_rate":  "daily_rate",
	"created_at":  "created_at",
}

// QuerySpaces returns one page of spaces matching q and the total match count.
func (db *DB) QuerySpaces(ctx context.Context, q models.SpaceQuery) ([]*models.Space, int, error) {
	var (
		conds []string
		args  []any
	)
	if name := strings.TrimSpace(q.Name); name != "" {
		conds = append(conds, "name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(name)+"%")
	}
	if q.TypeID != nil {
		conds = append(conds, "type_id = ?")
		args = append(args, *q.TypeID)
	}
	if q.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, boolToInt(*q.Active))
	}
	if q.MinCapacity > 0 {
		conds = append(conds, "capacity >= ?")
		args = append(args, q.MinCapacity)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spaces`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count spaces: %w", err)
	}

	column, ok := SpaceOrderColumns[q.OrderBy]
	if !ok {
		column = "id"
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	query := `SELECT ` + spaceColumns + ` FROM spaces` + where +
		` ORDER BY ` + column + ` ` + dir + `, id ` + dir
	if q.Size > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Size, q.Offset())
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query spaces: %w", err)
	}
	defer rows.Close()

	spaces := make([]*models.Space, 0)
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan space: %w", err)
		}
		spaces = append(spaces, s)
	}
	return spaces, total, rows.Err()
}

// CountSpacesOfType counts spaces, active or not, that reference the type.
func (db *DB) CountSpacesOfType(ctx context.Context, typeID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spaces WHERE type_id = ?`, typeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count spaces of type: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanSpace(row rowScanner) (*models.Space, error) {
	var (
		s                    models.Space
		createdAt, updatedAt string
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.TypeID, &s.Description, &s.Capacity, &s.HourlyRate, &s.DailyRate,
		&s.Active, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
