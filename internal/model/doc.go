// Package model defines the order types shared across the display client.
//
// Conventions:
//   - Order IDs are int64 and double as the display sort key
//   - Statuses travel as lowercase strings ("new", "completed", ...)
//   - Raw wire records (RawOrder) are never used for state; Normalize turns
//     them into Order first
//   - Day scoping is evaluated in the location of the supplied "now"
package model
