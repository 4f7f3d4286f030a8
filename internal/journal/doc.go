// Package journal implements the optional Event Journal.
//
// The Event Journal:
//   - Consumes event records the Event Router copies into its journal buffer
//   - Batches them by size and flush interval
//   - Inserts into order_events with pgx batches, ON CONFLICT DO NOTHING
//   - Derives a stable uuid per record so a retried batch never duplicates rows
//
// The journal is append-only and never read back by the board. Failures are
// logged and counted, never propagated.
package journal
