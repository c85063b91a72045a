package service

import (
	"context"
	"errors"
	"math"
	"time"

	"reservas/internal/config"
	"reservas/internal/database"
	"reservas/internal/domain"
	"reservas/internal/metrics"
	"reservas/internal/models"
	"reservas/internal/pricing"

	"github.com/rs/zerolog"
)

// BookingRequest is an already decoded booking or modification request.
type BookingRequest struct {
	UserID  int64
	SpaceID int64
	Start   time.Time
	End     time.Time
	Hours   int
}

// ReservationView adds clock-derived fields to a stored reservation.
type ReservationView struct {
	*models.Reservation
	DisplayStatus string `json:"display_status"`
	CanModify     bool   `json:"can_modify"`
	CanCancel     bool   `json:"can_cancel"`
}

// Availability is the answer to "can this interval be booked right now".
type Availability struct {
	SpaceID   int64                 `json:"space_id"`
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Available bool                  `json:"available"`
	Conflicts []*models.Reservation `json:"conflicts"`
}

type BookingService struct {
	repo      domain.ReservationRepository
	spaces    domain.SpaceLookup
	conflicts *ConflictDetector
	clock     domain.Clock
	maxLead   time.Duration
	minHours  int
	maxHours  int
	logger    *zerolog.Logger
}

func NewBookingService(repo domain.ReservationRepository, spaces domain.SpaceLookup, clock domain.Clock, cfg config.BookingConfig, logger *zerolog.Logger) *BookingService {
	if cfg.MaxLeadDays <= 0 {
		cfg.MaxLeadDays = models.DefaultMaxLeadDays
	}
	if cfg.MinHours <= 0 {
		cfg.MinHours = models.MinReservationHours
	}
	if cfg.MaxHours <= 0 {
		cfg.MaxHours = models.MaxReservationHours
	}
	if clock == nil {
		clock = domain.SystemClock
	}
	return &BookingService{
		repo:      repo,
		spaces:    spaces,
		conflicts: NewConflictDetector(repo),
		clock:     clock,
		maxLead:   time.Duration(cfg.MaxLeadDays) * 24 * time.Hour,
		minHours:  cfg.MinHours,
		maxHours:  cfg.MaxHours,
		logger:    logger,
	}
}

// checkInterval runs the time and duration gates shared by create and modify.
func (s *BookingService) checkInterval(start, end time.Time, hours int, now time.Time) error {
	if start.Before(now) {
		return domain.ErrStartInPast
	}
	if !end.After(start) {
		return domain.ErrEndBeforeStart
	}
	if start.After(now.Add(s.maxLead)) {
		return domain.ErrBeyondLeadWindow
	}

	diff := int(math.Ceil(end.Sub(start).Hours()))
	if hours != diff {
		return domain.ErrHoursMismatch
	}
	if hours < s.minHours || hours > s.maxHours {
		return domain.ErrHoursOutOfRange
	}
	return nil
}

func (s *BookingService) lookupSpace(ctx context.Context, id int64) (*models.Space, error) {
	space, err := s.spaces.GetSpace(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.ErrSpaceNotFound
	}
	if err != nil {
		return nil, domain.Infrastructure("load space", err)
	}
	return space, nil
}

// Create validates req against the current clock and persists the reservation.
func (s *BookingService) Create(ctx context.Context, req BookingRequest) (*models.Reservation, error) {
	return s.Validate(ctx, req, s.clock.Now())
}

// Validate applies every booking gate in order and persists the result. The
// first failing gate decides the error.
func (s *BookingService) Validate(ctx context.Context, req BookingRequest, now time.Time) (*models.Reservation, error) {
	r, err := s.validate(ctx, req, now)
	s.record("create", err)
	return r, err
}

func (s *BookingService) validate(ctx context.Context, req BookingRequest, now time.Time) (*models.Reservation, error) {
	start, end := req.Start.UTC(), req.End.UTC()
	if req.UserID <= 0 || req.SpaceID <= 0 {
		return nil, domain.Invalid("user and space ids must be positive")
	}
	if err := s.checkInterval(start, end, req.Hours, now); err != nil {
		return nil, err
	}

	space, err := s.lookupSpace(ctx, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if !space.Active {
		return nil, domain.ErrSpaceInactive
	}

	taken, err := s.conflicts.HasConflict(ctx, req.SpaceID, start, end, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrSlotTaken
	}

	r := &models.Reservation{
		UserID:        req.UserID,
		SpaceID:       req.SpaceID,
		Start:         start,
		End:           end,
		Hours:         req.Hours,
		Status:        models.StatusPending,
		Total:         pricing.PriceFloat(req.Hours, space.HourlyRate),
		TransactionID: newCorrelationID(transactionPrefix, now),
		CalendarID:    newCorrelationID(calendarPrefix, now),
		CreatedAt:     now.UTC(),
	}
	if err := s.repo.CreateReservation(ctx, r); err != nil {
		return nil, mapRepoError("create reservation", err)
	}

	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("user_id", r.UserID).
		Int64("space_id", r.SpaceID).
		Time("start", r.Start).
		Time("end", r.End).
		Str("total", r.Total.StringFixed(2)).
		Str("transaction_id", r.TransactionID).
		Msg("reservation created")
	return r, nil
}

// Modify moves an active reservation to a new interval and reprices it.
func (s *BookingService) Modify(ctx context.Context, id int64, start, end time.Time, hours int) (*models.Reservation, error) {
	r, err := s.modify(ctx, id, start.UTC(), end.UTC(), hours, s.clock.Now())
	s.record("modify", err)
	return r, err
}

func (s *BookingService) modify(ctx context.Context, id int64, start, end time.Time, hours int, now time.Time) (*models.Reservation, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, domain.ErrAlreadyCancelled
	}
	if current.HoursUntilStart(now) <= models.ModifyCutoff.Hours() {
		return nil, domain.ErrModifyWindowClosed
	}
	if err := s.checkInterval(start, end, hours, now); err != nil {
		return nil, err
	}

	space, err := s.lookupSpace(ctx, current.SpaceID)
	if err != nil {
		return nil, err
	}

	taken, err := s.conflicts.HasConflict(ctx, current.SpaceID, start, end, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrSlotTaken
	}

	updated, err := s.repo.UpdateReservation(ctx, id, models.ReservationPatch{
		Start:  start,
		End:    end,
		Hours:  hours,
		Total:  pricing.PriceFloat(hours, space.HourlyRate),
		Status: models.StatusModified,
	})
	if err != nil {
		return nil, mapRepoError("update reservation", err)
	}

	s.logger.Info().
		Int64("reservation_id", id).
		Time("start", updated.Start).
		Time("end", updated.End).
		Str("total", updated.Total.StringFixed(2)).
		Msg("reservation modified")
	return updated, nil
}

// Cancel is allowed strictly more than four hours before start.
func (s *BookingService) Cancel(ctx context.Context, id int64) (*models.Reservation, error) {
	r, err := s.cancel(ctx, id, s.clock.Now())
	s.record("cancel", err)
	return r, err
}

func (s *BookingService) cancel(ctx context.Context, id int64, now time.Time) (*models.Reservation, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, domain.ErrAlreadyCancelled
	}
	if current.HoursUntilStart(now) <= models.CancelCutoff.Hours() {
		return nil, domain.ErrCancelWindowClosed
	}

	changed, err := s.repo.CancelReservation(ctx, id)
	if err != nil {
		return nil, domain.Infrastructure("cancel reservation", err)
	}
	if !changed {
		// Lost a race with another cancel.
		return nil, domain.ErrAlreadyCancelled
	}

	current.Status = models.StatusCancelled
	current.UpdatedAt = now.UTC()
	s.logger.Info().Int64("reservation_id", id).Msg("reservation cancelled")
	return current, nil
}

func (s *BookingService) Get(ctx context.Context, id int64) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, mapRepoError("get reservation", err)
	}
	return r, nil
}

func (s *BookingService) ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	return list, domain.Infrastructure("list reservations by user", err)
}

func (s *BookingService) ListBySpace(ctx context.Context, spaceID int64, from, to *time.Time) ([]*models.Reservation, error) {
	list, err := s.repo.ListBySpace(ctx, spaceID, from, to)
	return list, domain.Infrastructure("list reservations by space", err)
}

func (s *BookingService) ListByRange(ctx context.Context, from, to time.Time, spaceID *int64) ([]*models.Reservation, error) {
	if !to.After(from) {
		return nil, domain.Invalid("range end must be after range start")
	}
	list, err := s.repo.ListByRange(ctx, from.UTC(), to.UTC(), spaceID)
	return list, domain.Infrastructure("list reservations by range", err)
}

// Availability reports the active reservations blocking [start, end).
func (s *BookingService) Availability(ctx context.Context, spaceID int64, start, end time.Time) (*Availability, error) {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return nil, domain.ErrEndBeforeStart
	}
	space, err := s.lookupSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByRange(ctx, start, end, &spaceID)
	if err != nil {
		return nil, domain.Infrastructure("list reservations by range", err)
	}
	conflicts := FindConflicts(existing, start, end, 0)
	if conflicts == nil {
		conflicts = []*models.Reservation{}
	}
	return &Availability{
		SpaceID:   spaceID,
		Start:     start,
		End:       end,
		Available: space.Active && len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}

// View derives display status and the modify/cancel flags at the current clock.
func (s *BookingService) View(r *models.Reservation) ReservationView {
	return NewReservationView(r, s.clock.Now())
}

func NewReservationView(r *models.Reservation, now time.Time) ReservationView {
	until := r.HoursUntilStart(now)
	active := r.Status.Active()
	return ReservationView{
		Reservation:   r,
		DisplayStatus: r.DisplayStatus(now),
		CanModify:     active && until > models.ModifyCutoff.Hours(),
		CanCancel:     active && until > models.CancelCutoff.Hours(),
	}
}

func (s *BookingService) record(op string, err error) {
	if err == nil {
		metrics.IncBooking(op, "ok")
		return
	}
	metrics.IncBooking(op, domain.CodeOf(err))
	if domain.KindOf(err) == domain.KindInfrastructure {
		s.logger.Error().Err(err).Str("operation", op).Msg("booking operation failed")
		return
	}
	s.logger.Debug().Err(err).Str("operation", op).Msg("booking rejected")
}

func mapRepoError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return domain.ErrReservationNotFound
	case errors.Is(err, database.ErrSlotTaken):
		return domain.ErrSlotTaken
	case errors.Is(err, database.ErrNotActive):
		return domain.ErrAlreadyCancelled
	default:
		return domain.Infrastructure(op, err)
	}
}
