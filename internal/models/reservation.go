package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus mirrors the catalog of reservation states shared with the
// catalog service. Ids are stable and stored as-is.
type ReservationStatus int

const (
	StatusPending   ReservationStatus = 1
	StatusConfirmed ReservationStatus = 2
	StatusCancelled ReservationStatus = 3
	StatusModified  ReservationStatus = 4
)

func (s ReservationStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusModified:
		return "MODIFIED"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether the status still occupies its slot.
func (s ReservationStatus) Active() bool {
	return s != StatusCancelled
}

// Display states derived from the clock, never persisted.
const (
	DisplayPending   = "PENDIENTE"
	DisplayOngoing   = "EN_CURSO"
	DisplayCompleted = "COMPLETADA"
)

type Reservation struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	SpaceID       int64             `json:"space_id"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
	Hours         int               `json:"hours"`
	Status        ReservationStatus `json:"status"`
	Total         decimal.Decimal   `json:"total"`
	TransactionID string            `json:"transaction_id"`
	CalendarID    string            `json:"calendar_event_id"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// HoursUntilStart is fractional so that cutoff comparisons stay exact.
func (r *Reservation) HoursUntilStart(now time.Time) float64 {
	return r.Start.Sub(now).Hours()
}

// DisplayStatus derives the user-facing state from the clock.
func (r *Reservation) DisplayStatus(now time.Time) string {
	switch {
	case now.Before(r.Start):
		return DisplayPending
	case now.After(r.End):
		return DisplayCompleted
	default:
		return DisplayOngoing
	}
}

// Overlaps treats both intervals as half-open, so touching endpoints do not overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.Start.Before(end) && r.End.After(start)
}

// ReservationPatch carries the fields a modification may change.
type ReservationPatch struct {
	Start  time.Time
	End    time.Time
	Hours  int
	Total  decimal.Decimal
	Status ReservationStatus
}

// ReservationType is a named kind of booking (event, meeting, class) kept by
// the booking service.
type ReservationType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
