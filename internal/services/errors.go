package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// The engine rejects every rule violation before any write, so each error
// category maps cleanly to one HTTP status. Anything not in the taxonomy is
// an internal error.

// ValidationError: malformed or invariant-violating input (unbalanced
// entries, duplicate account name, overpayment).
type ValidationError struct {
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// StateError: the operation is not valid for the entity's current lifecycle
// state, e.g. approving a non-DRAFT invoice.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

func NewStateError(format string, args ...any) *StateError {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError: the referenced entity does not exist or belongs to another
// company. Cross-company references deliberately look identical to missing
// rows.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// StoreUnavailableError: transient persistence failure, safe to retry.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// DataIntegrityError: a post-hoc detected violation of a supposed invariant,
// e.g. a trial balance that does not balance. Surfaced, never corrected.
type DataIntegrityError struct {
	Message string
}

func (e *DataIntegrityError) Error() string { return e.Message }

// ErrorResponse is the JSON error body shared by all handlers.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteError maps a domain error onto the HTTP response.
func WriteError(w http.ResponseWriter, err error) {
	var (
		validationErr *ValidationError
		stateErr      *StateError
		notFoundErr   *NotFoundError
		storeErr      *StoreUnavailableError
		integrityErr  *DataIntegrityError
	)

	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		resp.Details = validationErr.Details
	case errors.As(err, &stateErr):
		status = http.StatusConflict
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &storeErr):
		status = http.StatusServiceUnavailable
		resp.Error = "store temporarily unavailable, please retry"
		log.Error().Err(storeErr.Err).Msg("store unavailable")
	case errors.As(err, &integrityErr):
		log.Error().Err(err).Msg("data integrity violation")
	default:
		resp.Error = "internal error"
		log.Error().Err(err).Msg("unhandled error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// asValidationError converts validator.ValidationErrors into the taxonomy,
// preserving per-field details for the response body.
func asValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewValidationError("invalid request: %v", err)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
	return &ValidationError{Message: "validation failed", Details: details}
}

// storeError classifies driver-level failures. sql.ErrNoRows callers are
// expected to map to NotFoundError themselves; everything else is treated as
// a retryable store fault.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	return &StoreUnavailableError{Err: err}
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation on the named constraint (empty name matches any).
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
