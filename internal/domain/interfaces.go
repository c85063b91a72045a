package domain

import (
	"context"
	"time"

	"reservas/internal/models"
)

// SpaceLookup is the read side of the space projection used by the booking core.
type SpaceLookup interface {
	GetSpace(ctx context.Context, id int64) (*models.Space, error)
}

// ProjectionStore applies catalog snapshots. Each write reports whether it changed anything.
type ProjectionStore interface {
	SpaceLookup
	InsertSpaceIfAbsent(ctx context.Context, space *models.Space) (bool, error)
	UpsertSpaceIfNewer(ctx context.Context, space *models.Space) (bool, error)
	DeactivateSpaceIfNewer(ctx context.Context, space *models.Space) (bool, error)
}

type ReservationRepository interface {
	CheckConflict(ctx context.Context, spaceID int64, start, end time.Time, excludeID int64) (bool, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	UpdateReservation(ctx context.Context, id int64, patch models.ReservationPatch) (*models.Reservation, error)
	CancelReservation(ctx context.Context, id int64) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error)
	ListBySpace(ctx context.Context, spaceID int64, from, to *time.Time) ([]*models.Reservation, error)
	ListByRange(ctx context.Context, from, to time.Time, spaceID *int64) ([]*models.Reservation, error)
}

// CatalogRepository is the catalog service's source-of-truth store.
type CatalogRepository interface {
	CreateSpace(ctx context.Context, space *models.Space) error
	UpdateSpace(ctx context.Context, space *models.Space) error
	DeleteSpace(ctx context.Context, id int64) (*models.Space, error)
	GetCatalogSpace(ctx context.Context, id int64) (*models.Space, error)
	ListSpaces(ctx context.Context) ([]*models.Space, error)
	QuerySpaces(ctx context.Context, q models.SpaceQuery) ([]*models.Space, int, error)

	CreateSpaceType(ctx context.Context, st *models.SpaceType) error
	UpdateSpaceType(ctx context.Context, st *models.SpaceType) error
	DeleteSpaceType(ctx context.Context, id int64) error
	GetSpaceType(ctx context.Context, id int64) (*models.SpaceType, error)
	ListSpaceTypes(ctx context.Context) ([]*models.SpaceType, error)
}

type ReservationTypeRepository interface {
	CreateReservationType(ctx context.Context, rt *models.ReservationType) error
	ListReservationTypes(ctx context.Context) ([]*models.ReservationType, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.CatalogEvent) error
	PublishBatch(ctx context.Context, events []models.CatalogEvent) error
}

// PublishQueue keeps catalog events whose publish failed.
type PublishQueue interface {
	EnqueueFailed(ctx context.Context, event models.CatalogEvent, cause error) error
}

type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (bool, error)
}

// IdempotencyStore remembers which reservation answered a client request key.
type IdempotencyStore interface {
	GetReservationID(ctx context.Context, key string) (int64, bool, error)
	SetReservationID(ctx context.Context, key string, id int64, ttl time.Duration) error
	CheckRateLimit(ctx context.Context, subject string, limit int, window time.Duration) (bool, error)
}

// Clock is injected so validation is deterministic under test.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns UTC wall time.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
