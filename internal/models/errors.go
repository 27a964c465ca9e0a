package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the common lookup failures
var (
	ErrRentalNotFound   = &NotFoundError{Entity: "rental"}
	ErrVehicleNotFound  = &NotFoundError{Entity: "vehicle"}
	ErrCustomerNotFound = &NotFoundError{Entity: "customer"}
)

// ValidationError reports invalid input: bad date ordering, a return date
// outside the allowed window, non-positive amounts, missing required fields.
// No partial state is committed when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a named field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IllegalTransitionError reports a lifecycle transition not permitted from
// the order's current status. The order is left unchanged.
type IllegalTransitionError struct {
	From string
	To   string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError
func IsIllegalTransition(err error) bool {
	var te *IllegalTransitionError
	return errors.As(err, &te)
}

// NotFoundError reports an unknown rental, vehicle or customer id
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %d", e.Entity, e.ID)
}

// Is lets wrapped NotFoundErrors match their entity sentinel regardless of id
func (e *NotFoundError) Is(target error) bool {
	var nf *NotFoundError
	if !errors.As(target, &nf) {
		return false
	}
	return nf.Entity == e.Entity
}

// IsNotFound reports whether err is a NotFoundError of any entity
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
