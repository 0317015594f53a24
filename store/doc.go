// Package store provides the DynamoDB access layer for the registry's
// single-table layout.
//
// Every record lives in one table addressed by a composite (pk, sk) key.
// The store exposes the small set of primitives the reservation core is
// built on:
//
//   - Get, Put, Update, Delete with optional condition expressions
//   - Query by partition key and sort-key prefix
//   - Transact, an all-or-nothing TransactWriteItems wrapper for the 2-3
//     item transactions that keep the denormalized records in step
//
// Conditional failures are mapped to typed errors so callers can tell a
// lost optimistic-concurrency race ([ErrConditionFailed], retryable after
// re-reading) from an infrastructure failure ([ErrUnavailable], retryable
// as-is). For transactions, [TransactionCanceledError] reports which items'
// preconditions failed so the caller can translate per item.
package store
