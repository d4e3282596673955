// Package ledger arbitrates how many tickets remain for an exhibition.
// Every reservation and release of capacity goes through a Ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Handle identifies units reserved by a single Reserve call.
type Handle struct {
	ID       string
	EventID  int64
	Quantity int
}

type Ledger interface {
	// Reserve atomically consumes quantity units of the event's remaining capacity.
	Reserve(ctx context.Context, eventID int64, quantity int) (Handle, error)
	// Release gives the handle's units back. Releasing a handle twice is a no-op.
	Release(ctx context.Context, h Handle) error
	Remaining(ctx context.Context, eventID int64) (int, error)
	// SetCapacity changes the event's total capacity; it never drops below reserved units.
	SetCapacity(ctx context.Context, eventID int64, capacity int) error
}

var (
	ErrInsufficientCapacity  = errors.New("insufficient capacity")
	ErrEventNotAvailable     = errors.New("event is not available for reservations")
	ErrUnknownEvent          = errors.New("unknown event")
	ErrUnknownHandle         = errors.New("unknown reservation handle")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrCapacityBelowReserved = errors.New("capacity below reserved units")
)

type InsufficientCapacityError struct {
	EventID   int64
	Requested int
	Remaining int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("event %d: requested %d, %d remaining", e.EventID, e.Requested, e.Remaining)
}

func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}
