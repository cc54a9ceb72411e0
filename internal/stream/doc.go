// Package stream implements the persistent stream connection manager.
//
// The Manager:
//   - Keeps one long-lived WebSocket stream per interactive agent session
//   - Fans each inbound frame out to every registered observer
//   - Replays recent output to late-joining observers from a ring buffer
//   - Reconnects transparently with exponential backoff, capped by attempts
//   - Keeps zero-observer connections warm under a configurable idle policy
//   - Probes connection health on a heartbeat interval
package stream
