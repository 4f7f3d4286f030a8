// Package display implements the Presentation Adapter component.
//
// The Presentation Adapter:
//   - Holds the board shown to staff: NEW and COMPLETED lists plus loading,
//     error and connected state
//   - Fans board changes out to subscribers (server-sent events)
//   - Forwards manual reconnect requests to the Connection Manager
//   - Serves the board, its stream, reconnect and health over HTTP
package display
