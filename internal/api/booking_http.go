package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reservas/internal/config"
	"reservas/internal/domain"
	"reservas/internal/models"
	"reservas/internal/service"

	"github.com/rs/zerolog"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"

	// createLimitPerMinute caps booking attempts per user.
	createLimitPerMinute = 30
)

// BookingService is what the booking handlers need from the core.
type BookingService interface {
	Create(ctx context.Context, req service.BookingRequest) (*models.Reservation, error)
	Modify(ctx context.Context, id int64, start, end time.Time, hours int) (*models.Reservation, error)
	Cancel(ctx context.Context, id int64) (*models.Reservation, error)
	Get(ctx context.Context, id int64) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Reservation, error)
	ListBySpace(ctx context.Context, spaceID int64, from, to *time.Time) ([]*models.Reservation, error)
	ListByRange(ctx context.Context, from, to time.Time, spaceID *int64) ([]*models.Reservation, error)
	Availability(ctx context.Context, spaceID int64, start, end time.Time) (*service.Availability, error)
	View(r *models.Reservation) service.ReservationView
}

// ReservationTypeService registers the kinds of reservation offered.
type ReservationTypeService interface {
	Register(ctx context.Context, in service.ReservationTypeInput) (*models.ReservationType, error)
	List(ctx context.Context) ([]*models.ReservationType, error)
}

type BookingHTTP struct {
	bookings BookingService
	types    ReservationTypeService
	idem     domain.IdempotencyStore
	logger   *zerolog.Logger
}

// NewBookingHTTPServer builds the booking API. types, verifier and idem may be
// nil; without types the reservation type routes are not mounted.
func NewBookingHTTPServer(cfg config.APIConfig, bookings BookingService, types ReservationTypeService, verifier domain.TokenVerifier, idem domain.IdempotencyStore, logger *zerolog.Logger) *Server {
	h := &BookingHTTP{bookings: bookings, types: types, idem: idem, logger: logger}
	if !cfg.Auth.Enabled {
		verifier = nil
	}
	auth := NewBearerAuth(verifier, newRateLimiter(cfg.RateLimit), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("POST /api/v1/reservations", auth.Wrap(h.handleCreate))
	mux.Handle("GET /api/v1/reservations", auth.Wrap(h.handleListByRange))
	mux.Handle("GET /api/v1/reservations/{id}", auth.Wrap(h.handleGet))
	mux.Handle("PATCH /api/v1/reservations/{id}", auth.Wrap(h.handleModify))
	mux.Handle("POST /api/v1/reservations/{id}/cancel", auth.Wrap(h.handleCancel))
	mux.Handle("GET /api/v1/users/{id}/reservations", auth.Wrap(h.handleListByUser))
	mux.Handle("GET /api/v1/spaces/{id}/reservations", auth.Wrap(h.handleListBySpace))
	mux.Handle("GET /api/v1/spaces/{id}/availability", auth.Wrap(h.handleAvailability))
	if types != nil {
		mux.Handle("POST /api/v1/reservation-types", auth.Wrap(h.handleRegisterType))
		mux.Handle("GET /api/v1/reservation-types", auth.Wrap(h.handleListTypes))
	}

	return newServer(cfg.HTTP.Port, requestIDMiddleware(loggingMiddleware(logger, mux)), logger)
}

type createRequest struct {
	UserID  int64     `json:"user_id"`
	SpaceID int64     `json:"space_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Hours   int       `json:"hours"`
}

type modifyRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Hours int       `json:"hours"`
}

type reservationResponse struct {
	service.ReservationView
	Total string `json:"total"`
}

type listResponse struct {
	Data []reservationResponse `json:"data"`
}

func (h *BookingHTTP) present(r *models.Reservation) reservationResponse {
	return reservationResponse{ReservationView: h.bookings.View(r), Total: r.Total.StringFixed(2)}
}

func (h *BookingHTTP) presentList(list []*models.Reservation) listResponse {
	out := listResponse{Data: make([]reservationResponse, 0, len(list))}
	for _, r := range list {
		out.Data = append(out.Data, h.present(r))
	}
	return out
}

func (h *BookingHTTP) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))

	if key != "" && h.idem != nil {
		if id, ok, err := h.idem.GetReservationID(ctx, key); err != nil {
			h.logger.Warn().Err(err).Msg("idempotency lookup failed")
		} else if ok {
			existing, err := h.bookings.Get(ctx, id)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set(replayHeader, "true")
			writeJSON(w, http.StatusOK, h.present(existing))
			return
		}
	}

	if h.idem != nil && body.UserID > 0 {
		allowed, err := h.idem.CheckRateLimit(ctx, fmt.Sprintf("create:user:%d", body.UserID), createLimitPerMinute, time.Minute)
		if err != nil {
			h.logger.Warn().Err(err).Msg("booking rate limit check failed")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many booking attempts")
			return
		}
	}

	res, err := h.bookings.Create(ctx, service.BookingRequest{
		UserID:  body.UserID,
		SpaceID: body.SpaceID,
		Start:   body.Start,
		End:     body.End,
		Hours:   body.Hours,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if key != "" && h.idem != nil {
		if err := h.idem.SetReservationID(ctx, key, res.ID, models.IdempotencyTTL); err != nil {
			h.logger.Warn().Err(err).Int64("reservation_id", res.ID).Msg("failed to store idempotency key")
		}
	}
	writeJSON(w, http.StatusCreated, h.present(res))
}

func (h *BookingHTTP) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(res))
}

func (h *BookingHTTP) handleModify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body modifyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.bookings.Modify(r.Context(), id, body.Start, body.End, body.Hours)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(res))
}

func (h *BookingHTTP) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.bookings.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.present(res))
}

func (h *BookingHTTP) handleListByUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := h.bookings.ListByUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presentList(list))
}

func (h *BookingHTTP) handleListBySpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, err := optionalTime(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := optionalTime(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.bookings.ListBySpace(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presentList(list))
}

func (h *BookingHTTP) handleListByRange(w http.ResponseWriter, r *http.Request) {
	from, to, ok := requiredWindow(w, r, "from", "to")
	if !ok {
		return
	}
	var spaceID *int64
	if raw := strings.TrimSpace(r.URL.Query().Get("space_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid space_id")
			return
		}
		spaceID = &id
	}
	list, err := h.bookings.ListByRange(r.Context(), from, to, spaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presentList(list))
}

type availabilityResponse struct {
	SpaceID   int64                 `json:"space_id"`
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Available bool                  `json:"available"`
	Conflicts []reservationResponse `json:"conflicts"`
}

func (h *BookingHTTP) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	start, end, ok := requiredWindow(w, r, "start", "end")
	if !ok {
		return
	}
	a, err := h.bookings.Availability(r.Context(), id, start, end)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		SpaceID:   a.SpaceID,
		Start:     a.Start,
		End:       a.End,
		Available: a.Available,
		Conflicts: h.presentList(a.Conflicts).Data,
	})
}

func (h *BookingHTTP) handleRegisterType(w http.ResponseWriter, r *http.Request) {
	var in service.ReservationTypeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rt, err := h.types.Register(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: rt})
}

func (h *BookingHTTP) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.types.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: types})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func optionalTime(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s; expected RFC 3339", name)
	}
	t = t.UTC()
	return &t, nil
}

func requiredWindow(w http.ResponseWriter, r *http.Request, fromName, toName string) (time.Time, time.Time, bool) {
	from, err := optionalTime(r, fromName)
	if err == nil && from == nil {
		err = errors.New(fromName + " is required")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, false
	}
	to, err := optionalTime(r, toName)
	if err == nil && to == nil {
		err = errors.New(toName + " is required")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return time.Time{}, time.Time{}, false
	}
	return *from, *to, true
}
