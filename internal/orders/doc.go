// Package orders implements the Order Reconciliation Engine.
//
// The engine:
//   - Turns snapshot and delta events into two sorted, day-scoped lists
//   - Keeps a creation-time ledger so partial deltas can be day-scoped
//   - Never fabricates visibility for ids it has no creation time for
//   - Is not safe for concurrent use; the router drives it from one goroutine
package orders
