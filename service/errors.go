package service

import (
	"errors"
	"fmt"
	"net/http"

	"louyass/core"
)

// Error is a business rule failure carrying the HTTP status the API answers
// with and the French detail shown to the client
type Error struct {
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Detail, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same status and detail, so sentinel
// values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Detail == t.Detail
}

func badRequest(detail string) *Error {
	return &Error{Status: http.StatusBadRequest, Detail: detail}
}

func forbidden(detail string) *Error {
	return &Error{Status: http.StatusForbidden, Detail: detail}
}

func notFound(detail string) *Error {
	return &Error{Status: http.StatusNotFound, Detail: detail}
}

func conflict(detail string) *Error {
	return &Error{Status: http.StatusConflict, Detail: detail}
}

var (
	// ErrNoConfirmedAppointment is returned when a contract is created without
	// a confirmed viewing of the room by the tenant
	ErrNoConfirmedAppointment = conflict("Le locataire doit avoir un rendez-vous confirmé pour cette chambre")
	// ErrRoomLeased is returned when the room already carries an actif contract
	ErrRoomLeased = conflict("Cette chambre a déjà un contrat actif")
	// ErrForbidden is the generic access refusal
	ErrForbidden = forbidden("Action non autorisée")
	// ErrInvalidCredentials is returned for an unknown e-mail or a wrong password
	ErrInvalidCredentials = badRequest("Identifiants incorrects.")
	// ErrAccountLocked is returned while the account is locked out
	ErrAccountLocked = &Error{Status: http.StatusLocked, Detail: "Compte temporairement verrouillé. Réessayez plus tard."}
	// ErrMFARequired is returned when the account has MFA enabled and no code was sent
	ErrMFARequired = &Error{Status: http.StatusUnauthorized, Detail: "Code MFA requis"}
	// ErrInvalidMFACode is returned for a wrong TOTP code
	ErrInvalidMFACode = &Error{Status: http.StatusUnauthorized, Detail: "Code MFA invalide"}
)

// internal wraps an unexpected storage failure. The detail is generic; the
// cause is kept for logging.
func internal(op string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Detail: "Erreur interne du serveur", Err: fmt.Errorf("%s: %w", op, err)}
}

// notFoundOr maps sentinel to a 404 with detail and anything else to a 500
func notFoundOr(err, sentinel error, detail, op string) error {
	if errors.Is(err, sentinel) {
		return notFound(detail)
	}
	return internal(op, err)
}

// validatePage checks skip/limit bounds shared by list operations
func validatePage(skip, limit int) error {
	if skip < 0 {
		return badRequest("skip doit être positif ou nul")
	}
	if limit < 1 || limit > core.MaxPageLimit {
		return badRequest("limit doit être compris entre 1 et 200")
	}
	return nil
}
