package api

import (
	"errors"
	"net/http"

	"reservas/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// httpStatus maps a domain error onto a response code.
func httpStatus(err error) int {
	if errors.Is(err, domain.ErrSlotTaken) {
		return http.StatusConflict
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

func grpcStatus(err error) error {
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindValidation:
		code = codes.InvalidArgument
		if errors.Is(err, domain.ErrSlotTaken) {
			code = codes.FailedPrecondition
		}
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindAuthentication:
		code = codes.Unauthenticated
	default:
		code = codes.Unavailable
	}
	return status.Error(code, publicMessage(err))
}

// publicMessage hides infrastructure and identity-provider details from clients.
func publicMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindInfrastructure:
		return domain.ErrInfrastructure.Message
	case domain.KindAuthentication:
		return domain.ErrUnauthenticated.Message
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), errorResponse{Error: publicMessage(err), Code: domain.CodeOf(err)})
}
