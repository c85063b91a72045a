package service

import (
	"context"
	"errors"
	"strings"

	"reservas/internal/database"
	"reservas/internal/domain"
	"reservas/internal/models"

	"github.com/rs/zerolog"
)

var ErrReservationTypeNameTaken = &domain.Error{Kind: domain.KindValidation, Code: "reservation_type_name_taken", Message: "a reservation type with this name already exists"}

type ReservationTypeInput struct {
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

// ReservationTypeService keeps the registry of reservation kinds.
type ReservationTypeService struct {
	repo   domain.ReservationTypeRepository
	logger *zerolog.Logger
}

func NewReservationTypeService(repo domain.ReservationTypeRepository, logger *zerolog.Logger) *ReservationTypeService {
	return &ReservationTypeService{repo: repo, logger: logger}
}

func (s *ReservationTypeService) Register(ctx context.Context, in ReservationTypeInput) (*models.ReservationType, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Invalid("nombre is required")
	}
	rt := &models.ReservationType{Name: name, Description: in.Description}
	if err := s.repo.CreateReservationType(ctx, rt); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrReservationTypeNameTaken
		}
		return nil, domain.Infrastructure("create reservation type", err)
	}
	s.logger.Info().Int64("reservation_type_id", rt.ID).Str("name", rt.Name).Msg("reservation type registered")
	return rt, nil
}

func (s *ReservationTypeService) List(ctx context.Context) ([]*models.ReservationType, error) {
	types, err := s.repo.ListReservationTypes(ctx)
	if err != nil {
		return nil, domain.Infrastructure("list reservation types", err)
	}
	if types == nil {
		types = []*models.ReservationType{}
	}
	return types, nil
}
