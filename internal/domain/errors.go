package domain

import (
	"errors"
	"fmt"
)

var (
	// Validation errors
	ErrInvalidQuantity   = fmt.Errorf("quantity must be between 1 and %d", MaxTicketsPerRegistration)
	ErrInvalidEventID    = errors.New("invalid event id")
	ErrInvalidCapacity   = errors.New("capacity must be a positive integer")
	ErrEventUnavailable  = errors.New("exhibition is not open for registration")
	ErrTokenRequired     = errors.New("token is required")
	ErrNotificationState = errors.New("registration has no issued ticket to deliver")

	// Conflict errors
	ErrDuplicateRegistration = errors.New("already registered for this exhibition")
	ErrCapacityExceeded      = errors.New("not enough places left")
	ErrAlreadyCancelled      = errors.New("registration is already cancelled")
	ErrAlreadyValidated      = errors.New("ticket has already been used")
	ErrCapacityBelowReserved = errors.New("capacity cannot be lower than the number of reserved tickets")
	ErrTokenAlreadyIssued    = errors.New("ticket token has already been issued")
	ErrWriteConflict         = errors.New("concurrent update conflict, please retry")

	// Not found errors
	ErrExhibitionNotFound   = errors.New("exhibition not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrRegistrantNotFound   = errors.New("registrant not found")

	// Authorization errors
	ErrForbidden = errors.New("not allowed to act on this registration")
)

// CapacityExceededError reports how many places were left when a registration was refused.
type CapacityExceededError struct {
	Remaining int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("%s: %d remaining", ErrCapacityExceeded, e.Remaining)
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrEventUnavailable) ||
		errors.Is(err, ErrTokenRequired) ||
		errors.Is(err, ErrNotificationState)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrAlreadyValidated) ||
		errors.Is(err, ErrCapacityBelowReserved) ||
		errors.Is(err, ErrTokenAlreadyIssued) ||
		errors.Is(err, ErrWriteConflict)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrExhibitionNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrRegistrantNotFound)
}

func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrForbidden)
}
