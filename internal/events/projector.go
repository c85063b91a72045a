package events

import (
	"context"
	"fmt"

	"reservas/internal/domain"
	"reservas/internal/metrics"
	"reservas/internal/models"

	"github.com/rs/zerolog"
)

// Projector applies catalog events to the local space projection.
// Every write is conditional, so redelivered and reordered events are harmless.
type Projector struct {
	store  domain.ProjectionStore
	logger *zerolog.Logger
}

func NewProjector(store domain.ProjectionStore, logger *zerolog.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

func (p *Projector) Handle(ctx context.Context, ev models.CatalogEvent) error {
	space := ev.Space
	if space.EventTS.IsZero() {
		space.EventTS = ev.Timestamp
	}

	var (
		applied bool
		err     error
	)
	switch ev.Kind {
	case models.EventCreated:
		applied, err = p.store.InsertSpaceIfAbsent(ctx, &space)
	case models.EventUpdated:
		// inserts when absent, so an UPDATED seen before its CREATED still lands
		applied, err = p.store.UpsertSpaceIfNewer(ctx, &space)
	case models.EventDeleted:
		applied, err = p.store.DeactivateSpaceIfNewer(ctx, &space)
	default:
		p.logger.Warn().Str("event_type", string(ev.Kind)).Int64("space_id", space.ID).Msg("ignoring unknown catalog event type")
		metrics.IncProjector(string(ev.Kind), "skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("project %s for space %d: %w", ev.Kind, space.ID, err)
	}

	result := "applied"
	if !applied {
		result = "skipped"
	}
	metrics.IncProjector(string(ev.Kind), result)
	p.logger.Info().
		Str("event_type", string(ev.Kind)).
		Int64("space_id", space.ID).
		Time("event_ts", space.EventTS).
		Str("result", result).
		Msg("catalog event projected")
	return nil
}
