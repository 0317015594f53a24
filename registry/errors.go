package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrListNotFound is returned when the referenced list doesn't exist.
	ErrListNotFound = errors.New("registry: list not found")

	// ErrProductNotFound is returned when the referenced product doesn't exist.
	ErrProductNotFound = errors.New("registry: product not found")

	// ErrReservationNotFound is returned when the referenced reserved line or
	// reservation record doesn't exist.
	ErrReservationNotFound = errors.New("registry: reservation not found")

	// ErrNotOwner is returned when the requester does not own the reservation
	// they are attempting to mutate.
	ErrNotOwner = errors.New("registry: reservation belongs to another user")

	// ErrNoChange is returned when an update requests the quantity the
	// reservation already has.
	ErrNoChange = errors.New("registry: quantity unchanged")

	// ErrInvalidQuantity is returned for non-positive quantities. A
	// reservation cannot be reduced to zero via update; that path is cancel.
	ErrInvalidQuantity = errors.New("registry: quantity must be a positive amount")

	// ErrAlreadyReserved is returned when the requester already holds a
	// reserved line for the product. A retry of a committed reserve lands
	// here rather than double-charging the counters.
	ErrAlreadyReserved = errors.New("registry: product already reserved by this user")

	// ErrEmailRequired is returned when a guest reservation carries no email.
	ErrEmailRequired = errors.New("registry: email required to reserve without an account")

	// ErrAccountExists is returned when a guest reservation uses an email
	// that belongs to a registered account.
	ErrAccountExists = errors.New("registry: an account exists for this email, sign in to reserve")

	// ErrConflict is returned when a conditional write lost an optimistic
	// concurrency race. Callers may retry after re-reading state.
	ErrConflict = errors.New("registry: concurrent modification, retry")
)

// QuantityError reports a change that would violate the product counter
// invariant.
type QuantityError struct {
	// Requested is the signed delta that was applied.
	Requested int

	// Available is how many units were still claimable at the check.
	Available int
}

func (e *QuantityError) Error() string {
	if e.Requested < 0 {
		return fmt.Sprintf("registry: releasing %d would drive the reserved count negative", -e.Requested)
	}
	return fmt.Sprintf("registry: cannot claim %d more, only %d available", e.Requested, e.Available)
}

// StateError reports an operation that is invalid for the reservation
// record's current state. The message names the actual state so a stale
// emailed link fails with a precise reason.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("registry: cannot %s a reservation in state %q", e.Op, e.State)
}
