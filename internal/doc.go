// Package internal holds plumbing private to examcore.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - coord: store error wrapping, per-call timeouts, retry and the circuit-breaker hook
//   - flows: session flow orchestrators behind Engine.Login, Validate and Logout
//   - logging: slog logger construction
//   - metrics: Prometheus collectors and snapshots
//   - rate: Redis-backed login throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public examcore API.
package internal
