// Package registry implements the reservation core of the gift registry:
// the product counters, per-user reserved lines and globally addressable
// reservation records, and the transactional state transitions that keep
// the three in step.
//
// A product's counters obey one invariant at every observable point:
//
//	0 <= reserved, 0 <= purchased, reserved + purchased <= quantity
//
// Each state transition commits as a single 2-3 item DynamoDB transaction,
// conditioned on the snapshot the new values were computed from. A writer
// that lost the race gets [ErrConflict] and must re-read before retrying;
// no partial effect is ever observable.
package registry
