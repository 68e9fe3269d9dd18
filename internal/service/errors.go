package service

import (
	"errors"

	"github.com/campusfix/backend/internal/store"
)

var (
	ErrNotFound             = store.ErrNotFound
	ErrAlreadyAssigned      = store.ErrAlreadyAssigned
	ErrCapacity             = store.ErrCapacity
	ErrStoreUnavailable     = store.ErrUnavailable
	ErrNoEligibleTechnician = errors.New("no eligible technician")
	ErrNotEligible          = errors.New("technician not eligible")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrDuplicateIncident    = store.ErrDuplicate
	ErrEvidenceRequired     = errors.New("completion evidence required")
	ErrTickInProgress       = errors.New("escalation tick already running")
	ErrInvalidInput         = errors.New("invalid input")
)

// ErrorCode maps an error to the stable code used in API envelopes and
// batch results.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyAssigned):
		return "ALREADY_ASSIGNED"
	case errors.Is(err, ErrNoEligibleTechnician):
		return "NO_ELIGIBLE_TECHNICIAN"
	case errors.Is(err, ErrNotEligible):
		return "NOT_ELIGIBLE"
	case errors.Is(err, ErrCapacity):
		return "CAPACITY_EXCEEDED"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, store.ErrConflict):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrDuplicateIncident):
		return "DUPLICATE_INCIDENT"
	case errors.Is(err, ErrEvidenceRequired):
		return "EVIDENCE_REQUIRED"
	case errors.Is(err, ErrTickInProgress):
		return "TICK_IN_PROGRESS"
	case errors.Is(err, ErrInvalidInput):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
