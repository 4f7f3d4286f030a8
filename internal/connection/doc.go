// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Holds one Socket.IO session to the order feed over a WebSocket
//   - Answers Engine.IO pings and drops sessions that go stale
//   - Emits a keep-alive "ping" event and requests a snapshot on connect
//   - Reconnects with capped exponential backoff and jitter
//   - Tags every session and timer with a generation so stale timers are no-ops
//   - Delivers typed events, in transport order, on a single channel
package connection
