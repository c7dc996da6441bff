// Package coord holds the Redis plumbing shared by the session, quota,
// cursor and exam stores: client construction, per-call timeouts, error
// classification, bounded retry and the circuit-breaker/metrics hooks.
//
// # What this package must NOT do
//
//   - Know about sessions, quotas, cursors or exams.
//   - Retry non-idempotent scripts on its own; callers opt in per call site.
package coord
