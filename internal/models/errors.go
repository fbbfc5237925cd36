package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrOwnershipViolation = errors.New("event belongs to another organizer")
	ErrInvalidState       = errors.New("operation not valid for current status")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("missing required field %s", e.Field)
}

// Refusal reasons returned alongside ok=false.
const (
	ReasonNotFound       = "event not found"
	ReasonNotOwner       = "event belongs to another organizer"
	ReasonNotApproved    = "event is not approved"
	ReasonNotPending     = "event is not pending"
	ReasonAlreadyHandled = "already handled"
	ReasonUnknownService = "unknown promotion service"
)
