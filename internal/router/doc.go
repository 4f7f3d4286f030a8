// Package router implements the Event Router component.
//
// The Event Router:
//   - Is the single consumer of the Connection Manager's event channel
//   - Applies order events to the reconciliation engine, one at a time
//   - Publishes the board whenever the order lists change
//   - Requests a notification sound when a new order is accepted
//   - Prunes orders that fall out of today on a rollover ticker
//   - Copies every event into a growable buffer for the journal
package router
