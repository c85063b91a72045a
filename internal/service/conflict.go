package service

import (
	"context"
	"time"

	"reservas/internal/domain"
	"reservas/internal/models"
)

// ConflictDetector answers whether an interval collides with an active
// reservation of the same space. The repository repeats the same predicate
// inside its write transaction, so a clean answer here is advisory.
type ConflictDetector struct {
	repo domain.ReservationRepository
}

func NewConflictDetector(repo domain.ReservationRepository) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// HasConflict ignores cancelled reservations and the one with excludeID (0 excludes nothing).
func (d *ConflictDetector) HasConflict(ctx context.Context, spaceID int64, start, end time.Time, excludeID int64) (bool, error) {
	taken, err := d.repo.CheckConflict(ctx, spaceID, start, end, excludeID)
	if err != nil {
		return false, domain.Infrastructure("check conflict", err)
	}
	return taken, nil
}

// FindConflicts filters reservations that block [start, end).
func FindConflicts(reservations []*models.Reservation, start, end time.Time, excludeID int64) []*models.Reservation {
	var out []*models.Reservation
	for _, r := range reservations {
		if r.ID == excludeID && excludeID != 0 {
			continue
		}
		if r.Status.Active() && r.Overlaps(start, end) {
			out = append(out, r)
		}
	}
	return out
}
