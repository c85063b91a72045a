package service

import (
	"context"
	"errors"
	"strings"

	"reservas/internal/database"
	"reservas/internal/domain"
	"reservas/internal/metrics"
	"reservas/internal/models"

	"github.com/rs/zerolog"
)

var ErrSpaceNameTaken = &domain.Error{Kind: domain.KindValidation, Code: "space_name_taken", Message: "a space with this name already exists"}

// SpaceInput is the writable part of a catalog space.
type SpaceInput struct {
	Name        string  `json:"nombre" yaml:"nombre"`
	TypeID      int64   `json:"tipoEspacioId" yaml:"tipoEspacioId"`
	Description string  `json:"descripcion" yaml:"descripcion"`
	Capacity    int     `json:"capacidad" yaml:"capacidad"`
	HourlyRate  float64 `json:"tarifaHora" yaml:"tarifaHora"`
	DailyRate   float64 `json:"tarifaDia" yaml:"tarifaDia"`
}

func (in SpaceInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return domain.Invalid("nombre is required")
	case in.Capacity <= 0:
		return domain.Invalid("capacidad must be positive")
	case in.HourlyRate < 0 || in.DailyRate < 0:
		return domain.Invalid("rates must not be negative")
	case in.TypeID < 0:
		return domain.Invalid("tipoEspacioId must not be negative")
	}
	return nil
}

// SpacePatch is a partial update; nil fields keep their stored value.
type SpacePatch struct {
	Name        *string  `json:"nombre"`
	TypeID      *int64   `json:"tipoEspacioId"`
	Description *string  `json:"descripcion"`
	Capacity    *int     `json:"capacidad"`
	HourlyRate  *float64 `json:"tarifaHora"`
	DailyRate   *float64 `json:"tarifaDia"`
}

func (p SpacePatch) empty() bool {
	return p.Name == nil && p.TypeID == nil && p.Description == nil &&
		p.Capacity == nil && p.HourlyRate == nil && p.DailyRate == nil
}

func (p SpacePatch) apply(in SpaceInput) SpaceInput {
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.TypeID != nil {
		in.TypeID = *p.TypeID
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Capacity != nil {
		in.Capacity = *p.Capacity
	}
	if p.HourlyRate != nil {
		in.HourlyRate = *p.HourlyRate
	}
	if p.DailyRate != nil {
		in.DailyRate = *p.DailyRate
	}
	return in
}

func inputOf(sp *models.Space) SpaceInput {
	return SpaceInput{
		Name:        sp.Name,
		TypeID:      sp.TypeID,
		Description: sp.Description,
		Capacity:    sp.Capacity,
		HourlyRate:  sp.HourlyRate,
		DailyRate:   sp.DailyRate,
	}
}

// SpacePage is one page of a filtered catalog listing.
type SpacePage struct {
	Data  []*models.Space `json:"data"`
	Page  int             `json:"page"`
	Size  int             `json:"size"`
	Total int             `json:"total"`
}

// MutationResult is a committed catalog write. PublishErr is set when the
// change event could not be emitted; the write stands regardless.
type MutationResult struct {
	Space      *models.Space
	PublishErr error
}

// Warning is the client-facing note for a failed publish, empty otherwise.
func (r MutationResult) Warning() string {
	if r.PublishErr == nil {
		return ""
	}
	return "space saved but change notification is delayed"
}

type CatalogService struct {
	repo      domain.CatalogRepository
	publisher domain.EventPublisher
	queue     domain.PublishQueue
	clock     domain.Clock
	logger    *zerolog.Logger
}

// NewCatalogService builds the catalog owner. queue may be nil, in which case
// failed publishes are only logged and counted.
func NewCatalogService(repo domain.CatalogRepository, publisher domain.EventPublisher, queue domain.PublishQueue, clock domain.Clock, logger *zerolog.Logger) *CatalogService {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &CatalogService{
		repo:      repo,
		publisher: publisher,
		queue:     queue,
		clock:     clock,
		logger:    logger,
	}
}

func (s *CatalogService) Create(ctx context.Context, in SpaceInput) (MutationResult, error) {
	if err := in.validate(); err != nil {
		return MutationResult{}, err
	}
	if err := s.checkType(ctx, in.TypeID); err != nil {
		return MutationResult{}, err
	}
	space := &models.Space{
		Name:        strings.TrimSpace(in.Name),
		TypeID:      in.TypeID,
		Description: in.Description,
		Capacity:    in.Capacity,
		HourlyRate:  in.HourlyRate,
		DailyRate:   in.DailyRate,
		Active:      true,
	}
	if err := s.repo.CreateSpace(ctx, space); err != nil {
		return MutationResult{}, mapCatalogError("create space", err)
	}
	s.logger.Info().Int64("space_id", space.ID).Str("name", space.Name).Msg("space created")
	return s.emit(ctx, models.EventCreated, space), nil
}

// Update replaces every writable field of the space.
func (s *CatalogService) Update(ctx context.Context, id int64, in SpaceInput) (MutationResult, error) {
	if err := in.validate(); err != nil {
		return MutationResult{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	return s.replace(ctx, current, in)
}

// Patch changes only the fields present in p. The merged space must still be valid.
func (s *CatalogService) Patch(ctx context.Context, id int64, p SpacePatch) (MutationResult, error) {
	if p.empty() {
		return MutationResult{}, domain.Invalid("no fields to update")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return MutationResult{}, err
	}
	in := p.apply(inputOf(current))
	if err := in.validate(); err != nil {
		return MutationResult{}, err
	}
	return s.replace(ctx, current, in)
}

func (s *CatalogService) replace(ctx context.Context, current *models.Space, in SpaceInput) (MutationResult, error) {
	if in.TypeID != current.TypeID {
		if err := s.checkType(ctx, in.TypeID); err != nil {
			return MutationResult{}, err
		}
	}
	current.Name = strings.TrimSpace(in.Name)
	current.TypeID = in.TypeID
	current.Description = in.Description
	current.Capacity = in.Capacity
	current.HourlyRate = in.HourlyRate
	current.DailyRate = in.DailyRate

	if err := s.repo.UpdateSpace(ctx, current); err != nil {
		return MutationResult{}, mapCatalogError("update space", err)
	}
	s.logger.Info().Int64("space_id", current.ID).Msg("space updated")
	return s.emit(ctx, models.EventUpdated, current), nil
}

// Delete deactivates the space; the row is kept so ids are never reused.
func (s *CatalogService) Delete(ctx context.Context, id int64) (MutationResult, error) {
	space, err := s.repo.DeleteSpace(ctx, id)
	if err != nil {
		return MutationResult{}, mapCatalogError("delete space", err)
	}
	s.logger.Info().Int64("space_id", id).Msg("space deactivated")
	return s.emit(ctx, models.EventDeleted, space), nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Space, error) {
	space, err := s.repo.GetCatalogSpace(ctx, id)
	if err != nil {
		return nil, mapCatalogError("get space", err)
	}
	return space, nil
}

func (s *CatalogService) List(ctx context.Context) ([]*models.Space, error) {
	spaces, err := s.repo.ListSpaces(ctx)
	if err != nil {
		return nil, domain.Infrastructure("list spaces", err)
	}
	if spaces == nil {
		spaces = []*models.Space{}
	}
	return spaces, nil
}

// Query lists spaces matching q. Size zero returns every match as one page;
// larger sizes are capped at MaxPageSize.
func (s *CatalogService) Query(ctx context.Context, q models.SpaceQuery) (SpacePage, error) {
	if q.Size < 0 || q.Page < 0 {
		return SpacePage{}, domain.Invalid("page and size must not be negative")
	}
	if q.OrderBy != "" {
		if _, ok := database.SpaceOrderColumns[q.OrderBy]; !ok {
			return SpacePage{}, domain.Invalid("unsupported order_by " + q.OrderBy)
		}
	}
	if q.Size > models.MaxPageSize {
		q.Size = models.MaxPageSize
	}
	if q.Page == 0 {
		q.Page = 1
	}

	spaces, total, err := s.repo.QuerySpaces(ctx, q)
	if err != nil {
		return SpacePage{}, domain.Infrastructure("query spaces", err)
	}
	if spaces == nil {
		spaces = []*models.Space{}
	}
	size := q.Size
	if size == 0 {
		q.Page, size = 1, len(spaces)
	}
	return SpacePage{Data: spaces, Page: q.Page, Size: size, Total: total}, nil
}

// Resync re-emits an UPDATED snapshot of every space, in id order, as one batch.
func (s *CatalogService) Resync(ctx context.Context) (int, error) {
	spaces, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(spaces) == 0 {
		return 0, nil
	}

	now := s.clock.Now()
	batch := make([]models.CatalogEvent, 0, len(spaces))
	for _, sp := range spaces {
		batch = append(batch, models.CatalogEvent{Kind: models.EventUpdated, Space: *sp, Timestamp: now})
	}
	if err := s.publisher.PublishBatch(ctx, batch); err != nil {
		metrics.IncPublishFailure("RESYNC")
		s.logger.Error().Err(err).Int("spaces", len(batch)).Msg("catalog resync publish failed")
		return 0, domain.Infrastructure("resync catalog", err)
	}
	s.logger.Info().Int("spaces", len(batch)).Msg("catalog resynced")
	return len(batch), nil
}

// emit publishes the change after the write has committed. Failures never
// undo the write; they are queued for the outbox worker when one is wired.
func (s *CatalogService) emit(ctx context.Context, kind models.EventKind, space *models.Space) MutationResult {
	ev := models.CatalogEvent{Kind: kind, Space: *space, Timestamp: s.clock.Now()}
	err := s.publisher.Publish(ctx, ev)
	if err == nil {
		return MutationResult{Space: space}
	}

	metrics.IncPublishFailure(string(kind))
	s.logger.Error().Err(err).
		Int64("space_id", space.ID).
		Str("event_type", string(kind)).
		Msg("failed to publish catalog event")

	if s.queue != nil {
		if qerr := s.queue.EnqueueFailed(ctx, ev, err); qerr != nil {
			s.logger.Error().Err(qerr).Int64("space_id", space.ID).Msg("failed to queue catalog event")
		}
	}
	return MutationResult{Space: space, PublishErr: err}
}

// checkType accepts zero (untyped) or the id of an existing space type.
func (s *CatalogService) checkType(ctx context.Context, typeID int64) error {
	if typeID == 0 {
		return nil
	}
	_, err := s.repo.GetSpaceType(ctx, typeID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return domain.Invalid("tipoEspacioId does not exist")
	default:
		return domain.Infrastructure("check space type", err)
	}
}

func mapCatalogError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return domain.ErrSpaceNotFound
	case errors.Is(err, database.ErrDuplicate):
		return ErrSpaceNameTaken
	default:
		return domain.Infrastructure(op, err)
	}
}
