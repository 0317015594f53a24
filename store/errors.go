package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested item does not exist.
	ErrNotFound = errors.New("store: item not found")

	// ErrConditionFailed is returned when a conditional write was rejected
	// because its precondition no longer held. Safe to retry after
	// re-reading state.
	ErrConditionFailed = errors.New("store: condition failed")

	// ErrUnavailable wraps infrastructure failures from DynamoDB. Safe to
	// retry without re-deriving intent.
	ErrUnavailable = errors.New("store: storage unavailable")
)

// TransactionCanceledError is returned by Transact when one or more item
// preconditions failed. FailedIndexes holds the positions (in the submitted
// item slice) whose condition checks were rejected.
type TransactionCanceledError struct {
	FailedIndexes []int
}

func (e *TransactionCanceledError) Error() string {
	return fmt.Sprintf("store: transaction canceled, failed conditions at %v", e.FailedIndexes)
}

// Unwrap lets errors.Is(err, ErrConditionFailed) match transaction
// cancellations, since both represent a lost optimistic-concurrency race.
func (e *TransactionCanceledError) Unwrap() error {
	return ErrConditionFailed
}

// Failed reports whether the condition at index i was rejected.
func (e *TransactionCanceledError) Failed(i int) bool {
	for _, idx := range e.FailedIndexes {
		if idx == i {
			return true
		}
	}
	return false
}
