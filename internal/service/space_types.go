package service

import (
	"context"
	"errors"
	"strings"

	"reservas/internal/database"
	"reservas/internal/domain"
	"reservas/internal/models"
)

var (
	ErrSpaceTypeNameTaken = &domain.Error{Kind: domain.KindValidation, Code: "space_type_name_taken", Message: "a space type with this name already exists"}
	ErrSpaceTypeInUse     = &domain.Error{Kind: domain.KindValidation, Code: "space_type_in_use", Message: "space type is assigned to spaces"}
)

// SpaceTypeInput is the writable part of a space type.
type SpaceTypeInput struct {
	Name        string `json:"nombre" yaml:"nombre"`
	Description string `json:"descripcion" yaml:"descripcion"`
}

func (in SpaceTypeInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("nombre is required")
	}
	return nil
}

// Space types are catalog-local; the booking projection only carries the id,
// so type changes emit no events.

func (s *CatalogService) CreateSpaceType(ctx context.Context, in SpaceTypeInput) (*models.SpaceType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	st := &models.SpaceType{Name: strings.TrimSpace(in.Name), Description: in.Description}
	if err := s.repo.CreateSpaceType(ctx, st); err != nil {
		return nil, mapSpaceTypeError("create space type", err)
	}
	s.logger.Info().Int64("space_type_id", st.ID).Str("name", st.Name).Msg("space type created")
	return st, nil
}

func (s *CatalogService) UpdateSpaceType(ctx context.Context, id int64, in SpaceTypeInput) (*models.SpaceType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	st := &models.SpaceType{ID: id, Name: strings.TrimSpace(in.Name), Description: in.Description}
	if err := s.repo.UpdateSpaceType(ctx, st); err != nil {
		return nil, mapSpaceTypeError("update space type", err)
	}
	return st, nil
}

// DeleteSpaceType refuses while any space, active or not, still carries the type.
func (s *CatalogService) DeleteSpaceType(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSpaceType(ctx, id); err != nil {
		return mapSpaceTypeError("delete space type", err)
	}
	s.logger.Info().Int64("space_type_id", id).Msg("space type deleted")
	return nil
}

func (s *CatalogService) GetSpaceType(ctx context.Context, id int64) (*models.SpaceType, error) {
	st, err := s.repo.GetSpaceType(ctx, id)
	if err != nil {
		return nil, mapSpaceTypeError("get space type", err)
	}
	return st, nil
}

func (s *CatalogService) ListSpaceTypes(ctx context.Context) ([]*models.SpaceType, error) {
	types, err := s.repo.ListSpaceTypes(ctx)
	if err != nil {
		return nil, domain.Infrastructure("list space types", err)
	}
	if types == nil {
		types = []*models.SpaceType{}
	}
	return types, nil
}

func mapSpaceTypeError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return domain.ErrSpaceTypeNotFound
	case errors.Is(err, database.ErrDuplicate):
		return ErrSpaceTypeNameTaken
	case errors.Is(err, database.ErrInUse):
		return ErrSpaceTypeInUse
	default:
		return domain.Infrastructure(op, err)
	}
}
