package domain

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindInfrastructure
	KindAuthentication
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInfrastructure:
		return "infrastructure"
	case KindAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// Error is the typed outcome of every failed core operation.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrStartInPast        = newError(KindValidation, "start_in_past", "start time is in the past")
	ErrEndBeforeStart     = newError(KindValidation, "end_before_start", "end time must be after start time")
	ErrBeyondLeadWindow   = newError(KindValidation, "beyond_lead_window", "start time is too far in the future")
	ErrHoursMismatch      = newError(KindValidation, "hours_mismatch", "requested hours do not match the interval")
	ErrHoursOutOfRange    = newError(KindValidation, "hours_out_of_range", "requested hours out of range")
	ErrSpaceInactive      = newError(KindValidation, "space_inactive", "space is not active")
	ErrSlotTaken          = newError(KindValidation, "slot_taken", "space already booked for this interval")
	ErrModifyWindowClosed = newError(KindValidation, "modify_window_closed", "reservation can no longer be modified")
	ErrCancelWindowClosed = newError(KindValidation, "cancel_window_closed", "reservation can no longer be cancelled")
	ErrAlreadyCancelled   = newError(KindValidation, "already_cancelled", "reservation is cancelled")
	ErrInvalidInput       = newError(KindValidation, "invalid_input", "invalid input")

	ErrSpaceNotFound       = newError(KindNotFound, "space_not_found", "space not found")
	ErrReservationNotFound = newError(KindNotFound, "reservation_not_found", "reservation not found")
	ErrSpaceTypeNotFound   = newError(KindNotFound, "space_type_not_found", "space type not found")

	ErrInfrastructure = newError(KindInfrastructure, "infrastructure", "infrastructure failure")

	ErrUnauthenticated = newError(KindAuthentication, "unauthenticated", "authentication failed")
)

// Infrastructure wraps a collaborator failure so callers can branch on its kind.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInfrastructure, Code: ErrInfrastructure.Code, Message: op, Err: err}
}

// Unauthenticated wraps an identity-provider failure.
func Unauthenticated(op string, err error) error {
	return &Error{Kind: KindAuthentication, Code: ErrUnauthenticated.Code, Message: op, Err: err}
}

// Invalid builds a validation error with a caller-specific message.
func Invalid(msg string) error {
	return &Error{Kind: KindValidation, Code: ErrInvalidInput.Code, Message: msg}
}

// KindOf returns the kind of the first domain error in the chain, or
// KindInfrastructure for anything unclassified.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the stable code of err, if any.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInfrastructure.Code
}
