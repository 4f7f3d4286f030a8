// Package audio implements the Audio Capability Negotiator component.
//
// The Audio Capability Negotiator:
//   - Resolves {base}/sounds/{name}.{ext} for each preferred encoding
//   - Probes each asset with HEAD (ranged GET when HEAD is refused)
//   - Picks the first encoding the server serves as audio and the player supports
//   - Plays the new-order sound off the routing path, coalescing bursts
//   - Re-probes after a playback failure and degrades to silence otherwise
package audio
