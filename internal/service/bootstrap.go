package service

import (
	"context"
	"fmt"

	"reservas/internal/domain"
	"reservas/internal/models"

	"github.com/rs/zerolog"
)

// SpaceFetcher reads the full catalog from its owner.
type SpaceFetcher interface {
	ListSpaces(ctx context.Context) ([]*models.Space, error)
}

// EventApplier is the projector side of the event stream.
type EventApplier interface {
	Handle(ctx context.Context, ev models.CatalogEvent) error
}

// BootstrapProjection seeds the local projection from the catalog before the
// consumer starts. Each space is applied as an UPDATED event stamped with its
// catalog update time, so stream events emitted later still win.
func BootstrapProjection(ctx context.Context, fetcher SpaceFetcher, applier EventApplier, clock domain.Clock, logger *zerolog.Logger) (int, error) {
	if clock == nil {
		clock = domain.SystemClock
	}
	spaces, err := fetcher.ListSpaces(ctx)
	if err != nil {
		return 0, domain.Infrastructure("fetch catalog", err)
	}

	applied := 0
	for _, sp := range spaces {
		ts := sp.UpdatedAt
		if ts.IsZero() {
			ts = clock.Now()
		}
		space := *sp
		space.EventTS = ts
		ev := models.CatalogEvent{Kind: models.EventUpdated, Space: space, Timestamp: ts}
		if err := applier.Handle(ctx, ev); err != nil {
			return applied, domain.Infrastructure(fmt.Sprintf("apply space %d", sp.ID), err)
		}
		applied++
	}
	logger.Info().Int("spaces", applied).Msg("projection bootstrapped from catalog")
	return applied, nil
}
