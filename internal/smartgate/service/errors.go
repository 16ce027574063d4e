package service

import (
	"errors"
	"fmt"

	"github.com/smartgate/server/internal/smartgate/store"
)

// Kind classifies an Error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindResource
	KindPayment
	KindAuth
)

// Error is a business failure with a stable machine-readable code. Two
// Errors match under errors.Is when their codes are equal, so a sentinel
// refined with With still matches the sentinel.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e carrying a formatted message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidInput      = newError(KindValidation, "invalid_input", "")
	ErrGateRequired      = newError(KindValidation, "gate_required", "gate is required")
	ErrInvalidConfidence = newError(KindValidation, "invalid_confidence", "confidence must be within [0, 1]")
	ErrPlateRequired     = newError(KindValidation, "plate_required", "plate_text or image_base64 is required")
	ErrInvalidPlate      = newError(KindValidation, "invalid_plate", "plate is empty after normalisation")
	ErrInvalidRole       = newError(KindValidation, "invalid_role", "")
	ErrInvalidPlan       = newError(KindValidation, "invalid_plan", "")
	ErrInvalidAmount     = newError(KindValidation, "invalid_amount", "amount must be positive")
	ErrInvalidRate       = newError(KindValidation, "invalid_rate", "rates must not be negative")
	ErrInvalidStatus     = newError(KindValidation, "invalid_status", "status must be approved or rejected")
	ErrInvalidWindow     = newError(KindValidation, "invalid_window", "valid_to must be after valid_from")
	ErrInvalidDirection  = newError(KindValidation, "invalid_direction", "direction must be entry or exit")
	ErrUnsupportedSource = newError(KindValidation, "unsupported_source", "")

	ErrUserNotFound         = newError(KindNotFound, "user_not_found", "")
	ErrVehicleNotFound      = newError(KindNotFound, "vehicle_not_found", "")
	ErrPassNotFound         = newError(KindNotFound, "pass_not_found", "")
	ErrSessionNotFound      = newError(KindNotFound, "session_not_found", "")
	ErrVenueNotFound        = newError(KindNotFound, "venue_not_found", "")
	ErrGateNotFound         = newError(KindNotFound, "gate_not_found", "")
	ErrApplicationNotFound  = newError(KindNotFound, "application_not_found", "")
	ErrNotificationNotFound = newError(KindNotFound, "notification_not_found", "")
	ErrPaymentNotFound      = newError(KindNotFound, "payment_not_found", "")

	ErrAlreadyReviewed     = newError(KindConflict, "already_reviewed", "application was already decided")
	ErrInvalidSessionState = newError(KindConflict, "invalid_session_state", "")
	ErrDuplicate           = newError(KindConflict, "duplicate", "")
	ErrPassNotOwned        = newError(KindConflict, "pass_not_owned", "pass belongs to another user")

	ErrInsufficientFunds = newError(KindResource, "insufficient_funds", "wallet balance too low")

	ErrPaymentFailed = newError(KindPayment, "payment_failed", "")

	ErrInvalidCredentials = newError(KindAuth, "invalid_credentials", "invalid credentials")
)

// translate maps store sentinels onto service errors. notFound and conflict
// may be nil to leave that class untouched.
func translate(err error, notFound, conflict *Error) error {
	switch {
	case err == nil:
		return nil
	case notFound != nil && errors.Is(err, store.ErrNotFound):
		return notFound
	case conflict != nil && errors.Is(err, store.ErrConflict):
		return conflict
	}
	return err
}
