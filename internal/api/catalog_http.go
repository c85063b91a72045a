package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"reservas/internal/config"
	"reservas/internal/domain"
	"reservas/internal/models"
	"reservas/internal/service"

	"github.com/rs/zerolog"
)

type CatalogService interface {
	Create(ctx context.Context, in service.SpaceInput) (service.MutationResult, error)
	Update(ctx context.Context, id int64, in service.SpaceInput) (service.MutationResult, error)
	Patch(ctx context.Context, id int64, p service.SpacePatch) (service.MutationResult, error)
	Delete(ctx context.Context, id int64) (service.MutationResult, error)
	Get(ctx context.Context, id int64) (*models.Space, error)
	Query(ctx context.Context, q models.SpaceQuery) (service.SpacePage, error)
	Resync(ctx context.Context) (int, error)

	CreateSpaceType(ctx context.Context, in service.SpaceTypeInput) (*models.SpaceType, error)
	UpdateSpaceType(ctx context.Context, id int64, in service.SpaceTypeInput) (*models.SpaceType, error)
	DeleteSpaceType(ctx context.Context, id int64) error
	GetSpaceType(ctx context.Context, id int64) (*models.SpaceType, error)
	ListSpaceTypes(ctx context.Context) ([]*models.SpaceType, error)
}

type CatalogHTTP struct {
	catalog CatalogService
	logger  *zerolog.Logger
}

type dataResponse struct {
	Data    any    `json:"data"`
	Warning string `json:"warning,omitempty"`
}

// NewCatalogHTTPServer exposes space and space type administration and the resync trigger.
func NewCatalogHTTPServer(cfg config.APIConfig, catalog CatalogService, verifier domain.TokenVerifier, logger *zerolog.Logger) *Server {
	h := &CatalogHTTP{catalog: catalog, logger: logger}
	if !cfg.Auth.Enabled {
		verifier = nil
	}
	auth := NewBearerAuth(verifier, newRateLimiter(cfg.RateLimit), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("POST /api/v1/spaces", auth.Wrap(h.handleCreate))
	mux.Handle("GET /api/v1/spaces", auth.Wrap(h.handleList))
	mux.Handle("POST /api/v1/spaces/resync", auth.Wrap(h.handleResync))
	mux.Handle("GET /api/v1/spaces/{id}", auth.Wrap(h.handleGet))
	mux.Handle("PUT /api/v1/spaces/{id}", auth.Wrap(h.handleUpdate))
	mux.Handle("PATCH /api/v1/spaces/{id}", auth.Wrap(h.handlePatch))
	mux.Handle("DELETE /api/v1/spaces/{id}", auth.Wrap(h.handleDelete))

	mux.Handle("POST /api/v1/space-types", auth.Wrap(h.handleCreateType))
	mux.Handle("GET /api/v1/space-types", auth.Wrap(h.handleListTypes))
	mux.Handle("GET /api/v1/space-types/{id}", auth.Wrap(h.handleGetType))
	mux.Handle("PUT /api/v1/space-types/{id}", auth.Wrap(h.handleUpdateType))
	mux.Handle("DELETE /api/v1/space-types/{id}", auth.Wrap(h.handleDeleteType))

	return newServer(cfg.HTTP.Port, requestIDMiddleware(loggingMiddleware(logger, mux)), logger)
}

func (h *CatalogHTTP) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.SpaceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: res.Space, Warning: res.Warning()})
}

// handleList pages only when page or size is given; otherwise every match is
// returned, which is what the booking bootstrap relies on.
func (h *CatalogHTTP) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseSpaceQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.catalog.Query(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseSpaceQuery(v url.Values) (models.SpaceQuery, error) {
	var (
		q   models.SpaceQuery
		err error
	)
	if q.Page, err = intParam(v, "page"); err != nil {
		return q, err
	}
	if q.Size, err = intParam(v, "size"); err != nil {
		return q, err
	}
	if q.Page > 0 && q.Size == 0 {
		q.Size = models.DefaultPageSize
	}
	if q.MinCapacity, err = intParam(v, "min_capacity"); err != nil {
		return q, err
	}

	q.OrderBy = strings.TrimSpace(v.Get("order_by"))
	switch strings.ToLower(strings.TrimSpace(v.Get("order_dir"))) {
	case "", "asc":
	case "desc":
		q.Descending = true
	default:
		return q, errors.New("invalid order_dir; expected asc or desc")
	}
	q.Name = v.Get("name")

	if raw := strings.TrimSpace(v.Get("type_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, errors.New("invalid type_id")
		}
		q.TypeID = &id
	}
	if raw := strings.TrimSpace(v.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return q, errors.New("invalid active; expected true or false")
		}
		q.Active = &active
	}
	return q, nil
}

func intParam(v url.Values, name string) (int, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func (h *CatalogHTTP) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	space, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: space})
}

func (h *CatalogHTTP) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in service.SpaceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.catalog.Update(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: res.Space, Warning: res.Warning()})
}

func (h *CatalogHTTP) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p service.SpacePatch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.catalog.Patch(r.Context(), id, p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: res.Space, Warning: res.Warning()})
}

func (h *CatalogHTTP) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.catalog.Delete(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: res.Space, Warning: res.Warning()})
}

func (h *CatalogHTTP) handleResync(w http.ResponseWriter, r *http.Request) {
	n, err := h.catalog.Resync(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.Info().Int("spaces", n).Str("request_id", requestIDFrom(r.Context())).Msg("resync requested")
	writeJSON(w, http.StatusAccepted, dataResponse{Data: map[string]int{"published": n}})
}

func (h *CatalogHTTP) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var in service.SpaceTypeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, err := h.catalog.CreateSpaceType(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: st})
}

func (h *CatalogHTTP) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.ListSpaceTypes(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: types})
}

func (h *CatalogHTTP) handleGetType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := h.catalog.GetSpaceType(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: st})
}

func (h *CatalogHTTP) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in service.SpaceTypeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, err := h.catalog.UpdateSpaceType(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: st})
}

func (h *CatalogHTTP) handleDeleteType(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteSpaceType(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
