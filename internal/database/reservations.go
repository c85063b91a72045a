package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reservas/internal/models"

	"github.com/mattn/go-sqlite3"
)

const reservationColumns = `id, user_id, space_id, start_at, end_at, hours, status, total,
	transaction_id, calendar_event_id, created_at, updated_at`

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// hasConflict is the half-open overlap predicate over active reservations.
func hasConflict(ctx context.Context, q rowQuerier, spaceID int64, start, end time.Time, excludeID int64) (bool, error) {
	query := `SELECT EXISTS (
                SELECT 1 FROM reservations
                WHERE space_id = ? AND status != ? AND id != ?
                AND start_at < ? AND end_at > ?
              )`
	var exists bool
	err := q.QueryRowContext(ctx, query, spaceID, models.StatusCancelled, excludeID,
		formatTime(end), formatTime(start)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check conflict: %w", err)
	}
	return exists, nil
}

func (db *DB) CheckConflict(ctx context.Context, spaceID int64, start, end time.Time, excludeID int64) (bool, error) {
	return hasConflict(ctx, db, spaceID, start, end, excludeID)
}

// CreateReservation re-checks the slot and inserts inside one immediate transaction.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	taken, err := hasConflict(ctx, tx, r.SpaceID, r.Start, r.End, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrSlotTaken
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt

	queryInsert := `INSERT INTO reservations (
				user_id, space_id, start_at, end_at, hours, status, total,
				transaction_id, calendar_event_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		r.UserID,
		r.SpaceID,
		formatTime(r.Start),
		formatTime(r.End),
		r.Hours,
		r.Status,
		r.Total,
		r.TransactionID,
		r.CalendarID,
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction id %s: %w", r.TransactionID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	r.ID = id

	if err := tx.Commit(); err != nil {
		r.ID = 0
		return fmt.Errorf("failed to commit reservation: %w", err)
	}
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, db, id)
}

func getReservation(ctx context.Context, q rowQuerier, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// UpdateReservation moves an active reservation to a new interval, checking
// the new slot against every other active reservation in the same transaction.
func (db *DB) UpdateReservation(ctx context.Context, id int64, patch models.ReservationPatch) (*models.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := getReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, ErrNotActive
	}

	taken, err := hasConflict(ctx, tx, current.SpaceID, patch.Start, patch.End, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlotTaken
	}

	now := time.Now().UTC()
	query := `UPDATE reservations
              SET start_at = ?, end_at = ?, hours = ?, total = ?, status = ?, updated_at = ?
              WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query,
		formatTime(patch.Start), formatTime(patch.End), patch.Hours, patch.Total, patch.Status, formatTime(now), id,
	); err != nil {
		return nil, fmt.Errorf("failed to update reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation update: %w", err)
	}

	current.Start = patch.Start.UTC()
	current.End = patch.End.UTC()
	current.Hours = patch.Hours
	current.Total = patch.Total
	current.Status = patch.Status
	current.UpdatedAt = now
	return current, nil
}

// CancelReservation reports false when the reservation does not exist or is already cancelled.
func (db *DB) CancelReservation(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status != ?`
	result, err := db.ExecContext(ctx, query, models.StatusCancelled, formatTime(time.Now()), id, models.StatusCancelled)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (db *DB) ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = ? ORDER BY start_at DESC`
	return db.queryReservations(ctx, query, userID)
}

// ListBySpace returns reservations fully inside [from, to] when bounds are given.
func (db *DB) ListBySpace(ctx context.Context, spaceID int64, from, to *time.Time) ([]*models.Reservation, error) {
	conds := []string{"space_id = ?"}
	args := []any{spaceID}
	if from != nil {
		conds = append(conds, "start_at >= ?")
		args = append(args, formatTime(*from))
	}
	if to != nil {
		conds = append(conds, "end_at <= ?")
		args = append(args, formatTime(*to))
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY start_at ASC`
	return db.queryReservations(ctx, query, args...)
}

// ListByRange returns reservations overlapping [from, to), optionally for one space.
func (db *DB) ListByRange(ctx context.Context, from, to time.Time, spaceID *int64) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE start_at < ? AND end_at > ?`
	args := []any{formatTime(to), formatTime(from)}
	if spaceID != nil {
		query += ` AND space_id = ?`
		args = append(args, *spaceID)
	}
	query += ` ORDER BY start_at ASC`
	return db.queryReservations(ctx, query, args...)
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...any) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return out, nil
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                    models.Reservation
		start, end           string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.SpaceID, &start, &end, &r.Hours, &r.Status, &r.Total,
		&r.TransactionID, &r.CalendarID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if r.End, err = parseTime(end); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
